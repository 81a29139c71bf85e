// Package worker содержит исполнители tasks (domain.TaskRunner).
//
// # Обзор
//
// Планировщик не знает, как выполняется работа: он передаёт
// domain.TaskContext исполнителю и получает nil или ошибку.
// Пакет предоставляет готовые исполнители:
//
//   - ExecRunner — подпроцесс из params.command с отрендеренными аргументами
//   - DelayRunner — задержка на params.duration_sec (для проверки job)
//   - RunnerFunc — адаптер обычной функции
//
// # Registry
//
// Registry выбирает исполнитель для task: по имени шага, затем по
// params.runner ("exec", "delay"), затем исполнитель по умолчанию.
//
//	registry := worker.NewRegistry()
//	registry.RegisterStep("cmp", worker.RunnerFunc(compare))
//
//	s, err := scheduler.New(scheduler.Config{Job: job, Runner: registry})
//
// # Окружение подпроцесса
//
// ExecRunner добавляет к окружению:
//
//	STEPFLOW_STEP        — имя шага
//	STEPFLOW_TASK_INDEX  — индекс task
//	STEPFLOW_TASK_NUM    — количество tasks шага
//	STEPFLOW_WORKDIR     — рабочая директория job
//
// # Retry
//
// Планировщик не повторяет упавшие tasks. Повтор — политика вызывающего
// кода: NewRetryRunner оборачивает исполнитель и повторяет task с
// exponential backoff (github.com/cenkalti/backoff/v4). Ошибки
// конфигурации не повторяются.
package worker
