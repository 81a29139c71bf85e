package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/stepflow/internal/domain"
)

// Submitter выполняет job (orchestrator.Orchestrator).
type Submitter interface {
	Submit(ctx context.Context, job *domain.JobSpec) (*domain.Run, error)
}

// CronTrigger периодически запускает один job по cron-выражению.
//
// Если предыдущий run ещё выполняется, очередной запуск пропускается.
type CronTrigger struct {
	job       *domain.JobSpec
	expr      string
	submitter Submitter
	cron      *cron.Cron
	logger    *slog.Logger

	runs    atomic.Int64
	skipped atomic.Int64
	running atomic.Bool
}

// Config — конфигурация CronTrigger.
type Config struct {
	// Job — запускаемый job.
	Job *domain.JobSpec

	// CronExpr — cron-выражение ("*/5 * * * *", "@hourly", "@every 10m").
	CronExpr string

	// Timezone — IANA зона для cron-выражения (default: UTC).
	Timezone string

	// Submitter — исполнитель job.
	Submitter Submitter

	// Logger
	Logger *slog.Logger
}

// New создаёт CronTrigger и проверяет cron-выражение.
func New(cfg Config) (*CronTrigger, error) {
	if cfg.Job == nil || cfg.Submitter == nil {
		return nil, fmt.Errorf("trigger: job and submitter are required")
	}
	if err := ValidateCronExpr(cfg.CronExpr); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job", cfg.Job.Name, "cron", cfg.CronExpr)

	t := &CronTrigger{
		job:       cfg.Job,
		expr:      cfg.CronExpr,
		submitter: cfg.Submitter,
		logger:    logger,
	}

	t.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loadLocation(cfg.Timezone)),
		cron.WithLogger(cronLogger{logger}),
	)

	return t, nil
}

// Start запускает cron и блокируется до отмены ctx.
// Перед возвратом дожидается завершения текущего run.
func (t *CronTrigger) Start(ctx context.Context) error {
	if _, err := t.cron.AddFunc(t.expr, func() { t.Tick(ctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	t.cron.Start()
	t.logger.Info("cron trigger started", "next_run", t.NextRun(time.Now()))

	<-ctx.Done()

	<-t.cron.Stop().Done()
	t.logger.Info("cron trigger stopped", "runs", t.runs.Load(), "skipped", t.skipped.Load())
	return ctx.Err()
}

// Tick выполняет один запуск job.
// Возвращает false, если запуск пропущен из-за незавершённого run.
func (t *CronTrigger) Tick(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		t.logger.Warn("previous run still in progress, skipping")
		return false
	}
	defer t.running.Store(false)

	t.runs.Add(1)

	run, err := t.submitter.Submit(ctx, t.job)
	if run == nil {
		t.logger.Error("scheduled run failed to start", "error", err)
		return true
	}

	if err != nil {
		t.logger.Warn("scheduled run finished with errors", "run_id", run.ID, "error", err)
	}

	t.logger.Info("scheduled run finished",
		"run_id", run.ID,
		"status", run.Status,
		"duration", run.Duration(),
	)
	return true
}

// NextRun возвращает время следующего запуска после from.
func (t *CronTrigger) NextRun(from time.Time) time.Time {
	schedule, err := cronParser.Parse(t.expr)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(from)
}

// Runs возвращает число выполненных запусков.
func (t *CronTrigger) Runs() int64 {
	return t.runs.Load()
}

// Skipped возвращает число пропущенных запусков.
func (t *CronTrigger) Skipped() int64 {
	return t.skipped.Load()
}

// cronLogger направляет логи robfig/cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
