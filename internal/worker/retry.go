package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

// Default retry configuration values.
const (
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
)

// RetryRunner оборачивает исполнитель и повторяет упавший task
// с exponential backoff.
//
// Планировщик сам task'и не повторяет: это политика вызывающего кода,
// и RetryRunner подключается только явно.
type RetryRunner struct {
	runner          domain.TaskRunner
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          *slog.Logger
}

// RetryConfig — конфигурация RetryRunner.
type RetryConfig struct {
	// MaxRetries — число повторов после первой попытки.
	MaxRetries int

	// InitialInterval — первая задержка (default: 1s).
	InitialInterval time.Duration

	// MaxInterval — потолок задержки (default: 30s).
	MaxInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// NewRetryRunner создаёт RetryRunner.
//
// При MaxRetries <= 0 возвращает runner как есть.
func NewRetryRunner(runner domain.TaskRunner, cfg RetryConfig) domain.TaskRunner {
	if cfg.MaxRetries <= 0 {
		return runner
	}

	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = defaultInitialInterval
	}

	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = defaultMaxInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryRunner{
		runner:          runner,
		maxRetries:      uint64(cfg.MaxRetries),
		initialInterval: initial,
		maxInterval:     maxInterval,
		logger:          logger,
	}
}

// Run выполняет task, повторяя его при ошибке.
//
// Ошибки конфигурации (неизвестный исполнитель, нет команды, неверные
// параметры, ошибки шаблона) не повторяются.
func (r *RetryRunner) Run(ctx context.Context, tc domain.TaskContext) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = r.maxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := r.runner.Run(ctx, tc)
		if err != nil && !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		r.logger.Debug("retrying task",
			"step", tc.Step,
			"task_index", tc.Index,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx), notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !retriable(err) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
}

func retriable(err error) bool {
	return !errors.Is(err, ErrUnknownRunner) &&
		!errors.Is(err, ErrMissingCommand) &&
		!errors.Is(err, ErrInvalidParam) &&
		!errors.Is(err, engine.ErrTemplateParse) &&
		!errors.Is(err, engine.ErrTemplateRender) &&
		!errors.Is(err, context.Canceled)
}
