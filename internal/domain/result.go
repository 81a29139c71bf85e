package domain

import "time"

// TaskResult — неизменяемый итог выполнения task.
type TaskResult struct {
	TaskID     TaskID     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Duration возвращает продолжительность выполнения.
func (r TaskResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed возвращает true для FAILED результата.
func (r TaskResult) Failed() bool {
	return r.Status != TaskStatusSuccess
}

// StepResult — итог выполнения шага: результаты всех его tasks.
//
// Статус вычисляется один раз в NewStepResult:
// FAILED, если упал хотя бы один task, иначе SUCCESS.
type StepResult struct {
	StepName string       `json:"step"`
	Status   StepStatus   `json:"status"`
	Tasks    []TaskResult `json:"tasks"`
}

// NewStepResult собирает StepResult и вычисляет его статус.
func NewStepResult(stepName string, tasks []TaskResult) StepResult {
	status := StepStatusSuccess
	for _, t := range tasks {
		if t.Failed() {
			status = StepStatusFailed
			break
		}
	}

	return StepResult{
		StepName: stepName,
		Status:   status,
		Tasks:    tasks,
	}
}

// Failed возвращает true, если шаг упал.
func (r StepResult) Failed() bool {
	return r.Status == StepStatusFailed
}

// FailedTasks возвращает результаты упавших tasks.
func (r StepResult) FailedTasks() []TaskResult {
	var failed []TaskResult
	for _, t := range r.Tasks {
		if t.Failed() {
			failed = append(failed, t)
		}
	}
	return failed
}
