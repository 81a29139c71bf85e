package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись об одном запуске планировщика.
//
// Run заполняется после завершения Schedule и передаётся в sink'и
// (БД, очередь) для хранения и отчётности.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// JobName — имя job из JobSpec.
	JobName string `json:"job_name"`

	// Status — статус run.
	Status RunStatus `json:"status"`

	// Steps — результаты шагов в порядке завершения.
	Steps []StepResult `json:"steps"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока run выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(jobName string) *Run {
	return &Run{
		ID:        uuid.New(),
		JobName:   jobName,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish фиксирует результаты шагов и итоговый статус.
func (r *Run) Finish(status RunStatus, steps []StepResult) {
	now := time.Now()
	r.Status = status
	r.Steps = steps
	r.FinishedAt = &now
}

// FailedSteps возвращает имена упавших шагов.
func (r *Run) FailedSteps() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Failed() {
			names = append(names, s.StepName)
		}
	}
	return names
}

// TaskCount возвращает общее количество выполненных tasks.
func (r *Run) TaskCount() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Tasks)
	}
	return n
}
