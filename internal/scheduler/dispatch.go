package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// reportKind — тип отчёта, приходящего в цикл планировщика.
type reportKind int

const (
	// reportStep — шаг завершён (все его tasks отработали).
	reportStep reportKind = iota

	// reportTask — завершён одиночный task (ScheduleOneTask).
	reportTask
)

// report — сообщение о завершении работы.
// Заполнено ровно одно из полей step/task в зависимости от kind.
type report struct {
	kind reportKind
	step domain.StepResult
	task domain.TaskResult
}

// handleReport применяет отчёт к состоянию запуска.
func (s *Scheduler) handleReport(r report) {
	switch r.kind {
	case reportStep:
		s.finishStep(r.step)
		s.metrics.StepFinished(r.step)

		logger := telemetry.WithStep(s.logger, r.step.StepName)
		if r.step.Failed() {
			failed := r.step.FailedTasks()
			logger.Warn("step failed",
				"failed_tasks", len(failed),
				"tasks", len(r.step.Tasks),
				"error", failed[0].Error,
			)
		} else {
			logger.Info("step succeeded",
				"tasks", len(r.step.Tasks),
			)
		}

		if s.onStep != nil {
			s.onStep(r.step)
		}

	case reportTask:
		s.logger.Info("single task finished",
			"step", r.task.TaskID.Step,
			"task_index", r.task.TaskID.Index,
			"status", r.task.Status,
			"duration", r.task.Duration(),
		)
	}
}

// splitTasks делит шаг на tasks с контекстом из JobSpec.
func (s *Scheduler) splitTasks(step *domain.Step) []*domain.Task {
	def := s.graph.Node(step.Name).Step
	return step.SplitTasks(s.job.TaskTemplate(def))
}

// runStep выполняет все tasks шага не более чем по Concurrency одновременно
// и возвращается только после завершения всех tasks.
func (s *Scheduler) runStep(ctx context.Context, step *domain.Step) domain.StepResult {
	tasks := s.splitTasks(step)
	results := make([]domain.TaskResult, len(tasks))

	var g errgroup.Group
	g.SetLimit(step.Concurrency)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = s.executeTask(ctx, task)
			return nil
		})
	}

	// Ошибки tasks уже превращены в TaskResult, Wait всегда nil
	_ = g.Wait()

	return domain.NewStepResult(step.Name, results)
}

// executeTask выполняет task, учитывая общий потолок параллелизма.
func (s *Scheduler) executeTask(ctx context.Context, task *domain.Task) domain.TaskResult {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			return domain.TaskResult{
				TaskID: task.ID,
				Status: domain.TaskStatusFailed,
				Error:  fmt.Sprintf("wait for task slot: %v", err),
			}
		}
		defer s.limiter.Release(1)
	}

	s.metrics.TaskStarted()
	result := task.Execute(ctx, s.runner)
	s.metrics.TaskFinished(result)

	s.logger.Debug("task finished",
		"step", task.ID.Step,
		"task_index", task.ID.Index,
		"status", result.Status,
		"duration", result.Duration(),
	)

	return result
}
