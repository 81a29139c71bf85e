package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrNoRunner — не задан исполнитель tasks.
	ErrNoRunner = errors.New("no task runner configured")

	// ErrRunAlreadyActive — run с таким ID уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")

	// ErrNoConnection — нет соединения с RabbitMQ для потребления запросов.
	ErrNoConnection = errors.New("no rabbitmq connection")
)
