package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/orchestrator"
	"github.com/shaiso/stepflow/internal/scheduler"
	"github.com/shaiso/stepflow/internal/trigger"
)

// NewServeCmd создаёт команду запуска сервиса.
//
// Сервис выполняет job из очереди run.requested и, если заданы
// JOB_FILE и JOB_CRON, по расписанию. /metrics и /healthz
// доступны на METRICS_PORT.
func NewServeCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run jobs from RabbitMQ and on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), appFn())
		},
	}
}

func serve(ctx context.Context, app *App) error {
	logger := app.Logger
	logger.Info("starting stepflow service")

	var sinks []scheduler.ResultSink

	// DB (опционально)
	results, closeDB, err := app.OpenResultRepo(ctx)
	if err != nil {
		logger.Warn("database not available, results will not be stored", "error", err)
	} else {
		defer closeDB()
		if results != nil {
			sinks = append(sinks, results)
		}
	}

	// RabbitMQ (опционально)
	var stepPublisher orchestrator.StepPublisher
	conn, publisher, err := app.OpenMQ(ctx)
	if err != nil {
		logger.Warn("RabbitMQ not available, queue consumption disabled", "error", err)
		conn = nil
	} else {
		defer conn.Close()
		stepPublisher = publisher
		sinks = append(sinks, mq.PublisherSink{Publisher: publisher})
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Runner:           app.TaskRunner(),
		MaxParallelTasks: app.Config.MaxParallelTasks,
		Publisher:        stepPublisher,
		Sinks:            sinks,
		Metrics:          app.Metrics(),
		Conn:             conn,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if conn != nil {
		if err := orch.Start(ctx); err != nil {
			return err
		}
	}

	// Cron trigger (опционально)
	if app.Config.JobFile != "" {
		job, err := app.LoadJob(app.Config.JobFile)
		if err != nil {
			return err
		}

		trig, err := trigger.New(trigger.Config{
			Job:       job,
			CronExpr:  app.Config.JobCron,
			Submitter: orch,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			trig.Start(ctx) //nolint:errcheck
		}()
	}

	if conn == nil && app.Config.JobFile == "" {
		return errors.New("nothing to serve: RabbitMQ is unavailable and JOB_FILE is not set")
	}

	// HTTP mux: /healthz + /metrics + /stats
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Stats())
	})

	srv := &http.Server{
		Addr:              ":" + app.Config.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck

	orch.Stop()
	wg.Wait()

	logger.Info("stepflow service stopped")
	return nil
}
