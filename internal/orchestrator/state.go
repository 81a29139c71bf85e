package orchestrator

import (
	"github.com/google/uuid"

	"github.com/shaiso/stepflow/internal/scheduler"
)

// Stats — счётчики оркестратора.
type Stats struct {
	ActiveRuns    int   `json:"active_runs"`
	CompletedRuns int64 `json:"completed_runs"`
	HaltedRuns    int64 `json:"halted_runs"`

	// Runs — прогресс шагов каждого активного run.
	Runs map[uuid.UUID]scheduler.RunStats `json:"runs"`
}

// addActiveRun добавляет run в активные.
func (o *Orchestrator) addActiveRun(s *scheduler.Scheduler) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[s.ID()]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[s.ID()] = s
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// isRunActive проверяет, выполняется ли run.
func (o *Orchestrator) isRunActive(runID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.activeRuns[runID]
	return exists
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// ActiveRuns возвращает ID активных runs.
func (o *Orchestrator) ActiveRuns() []uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(o.activeRuns))
	for id := range o.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

// GetActiveRunStats возвращает статистику по активному run.
func (o *Orchestrator) GetActiveRunStats(runID uuid.UUID) (scheduler.RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s, exists := o.activeRuns[runID]
	if !exists {
		return scheduler.RunStats{}, false
	}

	return s.Stats(), true
}

// Stats возвращает счётчики оркестратора и прогресс активных runs.
func (o *Orchestrator) Stats() Stats {
	ids := o.ActiveRuns()

	runs := make(map[uuid.UUID]scheduler.RunStats, len(ids))
	for _, id := range ids {
		// Run мог завершиться между ActiveRuns и GetActiveRunStats
		if stats, ok := o.GetActiveRunStats(id); ok {
			runs[id] = stats
		}
	}

	return Stats{
		ActiveRuns:    len(runs),
		CompletedRuns: o.completed.Load(),
		HaltedRuns:    o.halted.Load(),
		Runs:          runs,
	}
}
