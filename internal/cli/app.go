package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/repo"
	"github.com/shaiso/stepflow/internal/telemetry"
	"github.com/shaiso/stepflow/internal/worker"
)

// Ошибки команд: итог выполнения, которому соответствует ненулевой код выхода.
var (
	ErrRunHalted  = errors.New("run halted")
	ErrStepFailed = errors.New("step failed")
	ErrTaskFailed = errors.New("task failed")
)

// App — общее окружение команд: конфигурация, логгер, вывод.
type App struct {
	Config config.Config
	Logger *slog.Logger
	Out    *Output

	// Runner — исполнитель tasks (nil — реестр worker с retry из конфигурации).
	Runner domain.TaskRunner

	// Registerer — куда регистрируются метрики (nil — метрики выключены).
	Registerer prometheus.Registerer

	metrics *telemetry.Metrics
}

// LoadJob читает job и подставляет рабочую директорию по умолчанию.
func (a *App) LoadJob(path string) (*domain.JobSpec, error) {
	job, err := engine.LoadJobSpec(path)
	if err != nil {
		return nil, err
	}
	if job.Workdir == "" {
		job.Workdir = a.Config.Workdir
	}
	return job, nil
}

// TaskRunner возвращает исполнитель tasks.
func (a *App) TaskRunner() domain.TaskRunner {
	if a.Runner != nil {
		return a.Runner
	}

	exec := &worker.ExecRunner{Logger: a.Logger}
	registry := worker.NewRegistry()
	registry.Register("exec", exec)
	registry.SetDefault(exec)

	a.Runner = worker.NewRetryRunner(registry, worker.RetryConfig{
		MaxRetries:      a.Config.TaskRetries,
		InitialInterval: a.Config.RetryBackoff,
		Logger:          a.Logger,
	})
	return a.Runner
}

// Metrics возвращает метрики (nil, если Registerer не задан).
func (a *App) Metrics() *telemetry.Metrics {
	if a.metrics == nil && a.Registerer != nil {
		a.metrics = telemetry.NewMetrics(a.Registerer)
	}
	return a.metrics
}

// OpenResultRepo подключается к PostgreSQL, если задан DB_URL.
// Без DB_URL возвращает nil репозиторий.
func (a *App) OpenResultRepo(ctx context.Context) (*repo.ResultRepo, func(), error) {
	if a.Config.DBURL == "" {
		return nil, func() {}, nil
	}

	pool, err := repo.NewPool(ctx, a.Config.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	a.Logger.Info("database connected")
	return repo.NewResultRepo(pool), pool.Close, nil
}

// OpenMQ подключается к RabbitMQ и объявляет топологию.
func (a *App) OpenMQ(ctx context.Context) (*mq.Connection, *mq.Publisher, error) {
	conn, err := mq.NewConnection(a.Config.RabbitMQURL, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("setup topology: %w", err)
	}

	a.Logger.Info("RabbitMQ connected")
	return conn, mq.NewPublisher(conn, a.Logger), nil
}
