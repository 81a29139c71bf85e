package scheduler

import (
	"github.com/shaiso/stepflow/internal/domain"
)

// Всё состояние запуска — статусы шагов. Изменяется только под s.mu;
// критическая секция короткая и никогда не охватывает выполнение tasks.

// claimReady возвращает готовые шаги и атомарно переводит их в RUNNING.
//
// Если хотя бы один шаг упал, запуск остановлен и готовых шагов нет.
func (s *Scheduler) claimReady() []*domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := s.statusesLocked()
	for _, status := range statuses {
		if status == domain.StepStatusFailed {
			return nil
		}
	}

	names := s.graph.Ready(statuses)
	ready := make([]*domain.Step, 0, len(names))
	for _, name := range names {
		step := s.steps[name]
		step.SetStatus(domain.StepStatusRunning)
		ready = append(ready, step)
	}

	return ready
}

// beginStep переводит шаг в RUNNING без проверки зависимостей
// и возвращает предыдущий статус.
func (s *Scheduler) beginStep(step *domain.Step) (domain.StepStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := step.Status()
	if prev == domain.StepStatusRunning {
		return prev, ErrStepRunning
	}
	step.SetStatus(domain.StepStatusRunning)
	return prev, nil
}

// finishStep фиксирует итоговый статус шага.
func (s *Scheduler) finishStep(result domain.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step, ok := s.steps[result.StepName]; ok {
		step.SetStatus(result.Status)
	}
}

// statusesLocked собирает статусы всех шагов. Вызывается под s.mu.
func (s *Scheduler) statusesLocked() map[string]domain.StepStatus {
	statuses := make(map[string]domain.StepStatus, len(s.steps))
	for name, step := range s.steps {
		statuses[name] = step.Status()
	}
	return statuses
}

// StepStatus возвращает статус шага.
func (s *Scheduler) StepStatus(name string) (domain.StepStatus, bool) {
	step, ok := s.steps[name]
	if !ok {
		return "", false
	}
	return step.Status(), true
}

// Status возвращает статус запуска.
//
//	HALTED    — есть упавший шаг
//	COMPLETED — все шаги SUCCESS
//	RUNNING   — иначе
func (s *Scheduler) Status() domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statusLocked()
}

func (s *Scheduler) statusLocked() domain.RunStatus {
	statuses := s.statusesLocked()
	for _, status := range statuses {
		if status == domain.StepStatusFailed {
			return domain.RunStatusHalted
		}
	}
	if s.graph.IsComplete(statuses) {
		return domain.RunStatusCompleted
	}
	return domain.RunStatusRunning
}

// Stats возвращает статистику выполнения.
func (s *Scheduler) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := RunStats{TotalSteps: len(s.steps)}
	for _, step := range s.steps {
		switch step.Status() {
		case domain.StepStatusInit:
			stats.PendingSteps++
		case domain.StepStatusRunning:
			stats.RunningSteps++
		case domain.StepStatusSuccess:
			stats.CompletedSteps++
		case domain.StepStatusFailed:
			stats.FailedSteps++
		}
	}
	return stats
}

// RunStats — статистика выполнения запуска.
type RunStats struct {
	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`
	RunningSteps   int `json:"running_steps"`
	FailedSteps    int `json:"failed_steps"`
	PendingSteps   int `json:"pending_steps"`
}
