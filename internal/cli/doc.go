// Package cli реализует команды stepflow.
//
// # Обзор
//
// Команды делятся на две группы:
//   - локальные: run, step, task, plan — выполняют job из JSON-файла
//     в текущем процессе
//   - сервисные: serve, submit, show, history — работают через
//     RabbitMQ и PostgreSQL
//
// # Ключевые компоненты
//
// ## App
//
// Общее окружение команд: конфигурация из окружения, логгер, Output,
// исполнитель tasks и метрики. Создаётся лениво через appFn после
// парсинга PersistentFlags.
//
//	cmd := cli.NewRunCmd(appFn)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: stepflow run job.json --json | jq .
//
// ## Коды выхода
//
// Команды возвращают ErrRunHalted, ErrStepFailed и ErrTaskFailed,
// если выполнение завершилось с ошибкой. main превращает их в
// ненулевой код выхода.
package cli
