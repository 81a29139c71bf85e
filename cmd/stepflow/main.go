// stepflow — планировщик выполнения job: DAG шагов, разбитых на tasks.
//
// Использование:
//
//	stepflow [--json] <command> [args] [flags]
//
// Команды:
//
//	run      Выполнить job из JSON-файла
//	step     Выполнить один шаг без проверки зависимостей
//	task     Выполнить один task шага
//	plan     Проверить job и вывести порядок шагов
//	serve    Выполнять job из RabbitMQ и по cron
//	submit   Поставить job в очередь
//	show     Показать сохранённый run
//	history  Список сохранённых runs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/cli"
	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool
	var app *cli.App

	rootCmd := &cobra.Command{
		Use:           "stepflow",
		Short:         "stepflow — job execution scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			app = &cli.App{
				Config:     cfg,
				Logger:     telemetry.SetupLogger(),
				Out:        cli.NewOutput(jsonOutput),
				Registerer: prometheus.DefaultRegisterer,
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	appFn := func() *cli.App { return app }

	rootCmd.AddCommand(
		cli.NewRunCmd(appFn),
		cli.NewStepCmd(appFn),
		cli.NewTaskCmd(appFn),
		cli.NewPlanCmd(appFn),
		cli.NewServeCmd(appFn),
		cli.NewSubmitCmd(appFn),
		cli.NewShowCmd(appFn),
		cli.NewHistoryCmd(appFn),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
