// Package orchestrator принимает запросы на выполнение job.
//
// Orchestrator отвечает за:
//   - Получение run.requested из очереди RabbitMQ
//   - Запуск каждого job в собственном scheduler.Scheduler
//   - Публикацию step.finished по мере завершения шагов
//   - Передачу итогового run в sink'и (PostgreSQL, run.finished)
//   - Учёт активных runs
//
// Сам порядок шагов, параллелизм и остановка при падении реализованы
// в пакете scheduler; оркестратор только связывает его с очередью.
package orchestrator
