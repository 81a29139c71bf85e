package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// Scheduler выполняет один job.
//
// Scheduler создаётся на каждый запуск: строит граф шагов, затем
// Schedule прогоняет цикл "готовые шаги → tasks → результаты" до
// завершения или остановки. Глобального состояния нет.
type Scheduler struct {
	id    uuid.UUID
	job   *domain.JobSpec
	graph *engine.Graph
	steps map[string]*domain.Step

	runner  domain.TaskRunner
	limiter *semaphore.Weighted
	onStep  func(domain.StepResult)

	// mu защищает переходы статусов шагов.
	mu        sync.Mutex
	scheduled atomic.Bool

	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	// Job — определение job.
	Job *domain.JobSpec

	// Runner — исполнитель tasks.
	Runner domain.TaskRunner

	// MaxParallelTasks — общий потолок одновременно выполняемых tasks
	// по всем шагам (0 — без ограничения, действует только concurrency шага).
	MaxParallelTasks int

	// OnStepFinished вызывается из цикла планировщика после каждого шага (опционально).
	OnStepFinished func(domain.StepResult)

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт Scheduler и строит граф шагов.
//
// Цикл в needs возвращается как *engine.CycleError до начала выполнения.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Job == nil {
		return nil, ErrNoJob
	}
	if cfg.Runner == nil {
		return nil, ErrNoRunner
	}

	graph, err := engine.BuildGraph(cfg.Job.Steps)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	if err := engine.Validate(cfg.Job); err != nil {
		return nil, fmt.Errorf("validate job: %w", err)
	}

	steps := make(map[string]*domain.Step, len(cfg.Job.Steps))
	for _, def := range cfg.Job.Steps {
		steps[def.Name] = domain.NewStep(def)
	}

	var limiter *semaphore.Weighted
	if cfg.MaxParallelTasks > 0 {
		limiter = semaphore.NewWeighted(int64(cfg.MaxParallelTasks))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()

	return &Scheduler{
		id:      id,
		job:     cfg.Job,
		graph:   graph,
		steps:   steps,
		runner:  cfg.Runner,
		limiter: limiter,
		onStep:  cfg.OnStepFinished,
		metrics: cfg.Metrics,
		logger:  telemetry.WithJob(telemetry.WithRunID(logger, id.String()), cfg.Job.Name),
	}, nil
}

// ID возвращает идентификатор запуска.
func (s *Scheduler) ID() uuid.UUID {
	return s.id
}

// Graph возвращает граф шагов (только для чтения).
func (s *Scheduler) Graph() *engine.Graph {
	return s.graph
}

// Schedule выполняет job до завершения или остановки.
//
// Цикл:
//  1. Забираем готовые шаги (все needs в SUCCESS) и запускаем их
//  2. Ждём отчёт о завершении любого шага
//  3. Обновляем статус шага и повторяем
//
// После падения шага новые шаги не запускаются, уже запущенные
// дорабатывают. Отмена ctx также прекращает запуск новых шагов.
// Упавшие шаги — это данные в результатах, а не ошибка: ошибка
// возвращается только при повторном вызове Schedule.
func (s *Scheduler) Schedule(ctx context.Context) ([]domain.StepResult, error) {
	if !s.scheduled.CompareAndSwap(false, true) {
		return nil, ErrAlreadyScheduled
	}

	s.logger.Info("job started",
		"steps", s.graph.Size(),
		"starts", s.graph.Starts(),
	)

	reports := make(chan report)
	inflight := 0
	results := make([]domain.StepResult, 0, len(s.steps))

	for {
		if ctx.Err() == nil {
			for _, step := range s.claimReady() {
				inflight++
				s.logger.Debug("step dispatched",
					"step", step.Name,
					"task_num", step.TaskNum,
					"concurrency", step.Concurrency,
				)
				go func(step *domain.Step) {
					reports <- report{kind: reportStep, step: s.runStep(ctx, step)}
				}(step)
			}
		}

		if inflight == 0 {
			break
		}

		r := <-reports
		inflight--
		s.handleReport(r)
		results = append(results, r.step)
	}

	status := s.Status()
	if status == domain.RunStatusRunning {
		// Остались невыполненные шаги, но запускать их больше нельзя (ctx отменён)
		status = domain.RunStatusHalted
	}
	s.metrics.RunFinished(status)

	s.logger.Info("job finished",
		"status", status,
		"steps_run", len(results),
		"stats", s.Stats(),
	)

	return results, nil
}

// Run выполняет Schedule и оформляет результат в domain.Run.
func (s *Scheduler) Run(ctx context.Context) (*domain.Run, error) {
	run := domain.NewRun(s.job.Name)
	run.ID = s.id

	results, err := s.Schedule(ctx)
	if err != nil {
		return nil, err
	}

	status := s.Status()
	if status == domain.RunStatusRunning {
		status = domain.RunStatusHalted
	}
	run.Finish(status, results)

	return run, nil
}

// ScheduleOneStep выполняет tasks одного шага без проверки зависимостей.
//
// Меняет статус только этого шага. Используется для повторного запуска
// шага (retry на уровне вызывающего кода) и отладки.
func (s *Scheduler) ScheduleOneStep(ctx context.Context, name string) (domain.StepResult, error) {
	step, ok := s.steps[name]
	if !ok {
		return domain.StepResult{}, &UnknownStepError{Step: name, Index: -1, Err: ErrUnknownStep}
	}

	prev, err := s.beginStep(step)
	if err != nil {
		return domain.StepResult{}, fmt.Errorf("step %s: %w", name, err)
	}

	logger := telemetry.WithStep(s.logger, name)
	if prev.IsTerminal() {
		logger.Info("step re-run", "previous_status", prev)
	} else {
		logger.Info("single step dispatched")
	}

	r := report{kind: reportStep, step: s.runStep(ctx, step)}
	s.handleReport(r)

	return r.step, nil
}

// ScheduleOneTask выполняет ровно один task шага.
//
// Зависимости и статусы шагов не проверяются и не меняются.
func (s *Scheduler) ScheduleOneTask(ctx context.Context, name string, index int) (domain.TaskResult, error) {
	step, ok := s.steps[name]
	if !ok {
		return domain.TaskResult{}, &UnknownStepError{Step: name, Index: -1, Err: ErrUnknownStep}
	}
	if index < 0 || index >= step.TaskNum {
		return domain.TaskResult{}, &UnknownStepError{
			Step:  name,
			Index: index,
			Total: step.TaskNum,
			Err:   ErrTaskIndexOutOfRange,
		}
	}

	task := s.splitTasks(step)[index]

	s.logger.Info("single task dispatched", "step", name, "task_index", index)

	r := report{kind: reportTask, task: s.executeTask(ctx, task)}
	s.handleReport(r)

	return r.task, nil
}
