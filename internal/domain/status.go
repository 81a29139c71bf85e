package domain

// StepStatus — статус шага внутри одного запуска.
//
// Жизненный цикл:
//
//	INIT → RUNNING → SUCCESS
//	               ↘ FAILED
type StepStatus string

const (
	// StepStatusInit — шаг ещё не запущен (ждёт зависимостей или своей очереди).
	StepStatusInit StepStatus = "INIT"

	// StepStatusRunning — tasks шага выполняются.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusSuccess — все tasks шага завершились успешно.
	StepStatusSuccess StepStatus = "SUCCESS"

	// StepStatusFailed — хотя бы один task шага упал.
	StepStatusFailed StepStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSuccess, StepStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// TaskStatus — итоговый статус выполнения task.
type TaskStatus string

const (
	// TaskStatusSuccess — task выполнен успешно.
	TaskStatusSuccess TaskStatus = "SUCCESS"

	// TaskStatusFailed — task завершился с ошибкой (или паникой).
	TaskStatusFailed TaskStatus = "FAILED"
)

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// RunStatus — статус запуска целиком.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED (все шаги SUCCESS)
//	        ↘ HALTED    (есть упавший шаг, новые шаги не запускаются)
type RunStatus string

const (
	// RunStatusRunning — есть шаги в INIT или RUNNING.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted — все шаги завершились успешно.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusHalted — хотя бы один шаг упал, выполнение остановлено.
	RunStatusHalted RunStatus = "HALTED"
)

// IsTerminal возвращает true, если run завершён.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusHalted
}

// ParseStepStatus парсит строку в StepStatus.
// Неизвестные значения трактуются как INIT.
func ParseStepStatus(s string) StepStatus {
	switch s {
	case "RUNNING":
		return StepStatusRunning
	case "SUCCESS":
		return StepStatusSuccess
	case "FAILED":
		return StepStatusFailed
	default:
		return StepStatusInit
	}
}
