package scheduler

import (
	"errors"
	"fmt"
)

// Ошибки планировщика.
var (
	// ErrUnknownStep — шаг с таким именем отсутствует в запуске.
	ErrUnknownStep = errors.New("unknown step")

	// ErrTaskIndexOutOfRange — индекс task вне [0, task_num).
	ErrTaskIndexOutOfRange = errors.New("task index out of range")

	// ErrStepRunning — шаг уже выполняется.
	ErrStepRunning = errors.New("step is already running")

	// ErrAlreadyScheduled — Schedule уже вызывался для этого планировщика.
	ErrAlreadyScheduled = errors.New("scheduler already ran its job")

	// ErrNoRunner — не задан исполнитель tasks.
	ErrNoRunner = errors.New("task runner is required")

	// ErrNoJob — не задан JobSpec.
	ErrNoJob = errors.New("job spec is required")
)

// UnknownStepError — ссылка на несуществующий шаг или task.
//
// Возвращается синхронно из ScheduleOneStep/ScheduleOneTask
// и не влияет на другие шаги.
type UnknownStepError struct {
	Step  string
	Index int // -1, если ошибка относится к шагу целиком
	Total int
	Err   error
}

// Error реализует интерфейс error.
func (e *UnknownStepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Step)
	}
	return fmt.Sprintf("%v: step %s has tasks [0, %d), got %d", e.Err, e.Step, e.Total, e.Index)
}

// Unwrap возвращает базовую ошибку.
func (e *UnknownStepError) Unwrap() error {
	return e.Err
}
