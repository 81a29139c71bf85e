package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/scheduler"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPrefetch = 2
)

// StepPublisher публикует результаты шагов (mq.Publisher).
type StepPublisher interface {
	PublishStepFinished(ctx context.Context, runID uuid.UUID, jobName string, result domain.StepResult) error
}

// Orchestrator принимает запросы на выполнение job и выполняет их.
//
// Каждый job получает собственный Scheduler. Orchestrator:
//   - Получает run.requested из RabbitMQ (event-driven)
//   - Принимает job напрямую через Submit (cron, CLI)
//   - Публикует step.finished по мере завершения шагов
//   - Передаёт итоговый run в sink'и (БД, очередь)
//   - Отслеживает активные runs
type Orchestrator struct {
	runner           domain.TaskRunner
	maxParallelTasks int

	// Results
	publisher StepPublisher
	sinks     []scheduler.ResultSink
	metrics   *telemetry.Metrics

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	// Active runs — runs в процессе выполнения (runID → scheduler)
	activeRuns map[uuid.UUID]*scheduler.Scheduler
	mu         sync.RWMutex

	completed atomic.Int64
	halted    atomic.Int64

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    atomic.Bool
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Runner — исполнитель tasks (обязательно).
	Runner domain.TaskRunner

	// MaxParallelTasks — общий потолок tasks на один run (0 — без ограничения).
	MaxParallelTasks int

	// Publisher — публикация step.finished (опционально).
	Publisher StepPublisher

	// Sinks — получатели итогового run (опционально).
	Sinks []scheduler.ResultSink

	// Metrics (опционально).
	Metrics *telemetry.Metrics

	// Conn — соединение с RabbitMQ для run.requested (опционально).
	Conn *mq.Connection

	// Prefetch — сколько runs выполняется одновременно из очереди (default: 2).
	Prefetch int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Runner == nil {
		return nil, ErrNoRunner
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		runner:           cfg.Runner,
		maxParallelTasks: cfg.MaxParallelTasks,
		publisher:        cfg.Publisher,
		sinks:            cfg.Sinks,
		metrics:          cfg.Metrics,
		conn:             cfg.Conn,
		prefetch:         prefetch,
		activeRuns:       make(map[uuid.UUID]*scheduler.Scheduler),
		logger:           logger,
	}, nil
}

// Start запускает потребление run.requested. Не блокирует.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.conn == nil {
		return ErrNoConnection
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsRequested,
		Handler:  o.handleRunRequested,
		Prefetch: o.prefetch,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("run consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started", "prefetch", o.prefetch)
	return nil
}

// Stop останавливает Orchestrator и ждёт завершения обработчиков.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped",
		"active_runs", o.ActiveRunsCount(),
	)
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	return o.stopped.Load()
}

// Submit выполняет job и возвращает итоговый run.
//
// Упавший шаг не является ошибкой: run возвращается со статусом HALTED.
// Ошибки sink'ов логируются и возвращаются вместе с run.
func (o *Orchestrator) Submit(ctx context.Context, job *domain.JobSpec) (*domain.Run, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	var s *scheduler.Scheduler
	s, err := scheduler.New(scheduler.Config{
		Job:              job,
		Runner:           o.runner,
		MaxParallelTasks: o.maxParallelTasks,
		OnStepFinished: func(result domain.StepResult) {
			o.publishStep(ctx, s.ID(), job.Name, result)
		},
		Metrics: o.metrics,
		Logger:  o.logger,
	})
	if err != nil {
		return nil, err
	}

	if err := o.addActiveRun(s); err != nil {
		return nil, err
	}
	defer o.removeActiveRun(s.ID())

	run, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case domain.RunStatusCompleted:
		o.completed.Add(1)
	default:
		o.halted.Add(1)
	}

	if err := scheduler.SaveRun(ctx, run, o.sinks...); err != nil {
		o.logger.Error("failed to save run", "run_id", run.ID, "error", err)
		return run, err
	}

	return run, nil
}

// publishStep публикует step.finished; ошибки не влияют на выполнение.
func (o *Orchestrator) publishStep(ctx context.Context, runID uuid.UUID, jobName string, result domain.StepResult) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.PublishStepFinished(ctx, runID, jobName, result); err != nil {
		o.logger.Warn("failed to publish step.finished",
			"run_id", runID,
			"step", result.StepName,
			"error", err,
		)
	}
}
