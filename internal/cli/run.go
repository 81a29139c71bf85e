package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/scheduler"
)

// NewRunCmd создаёт команду выполнения job.
func NewRunCmd(appFn func() *App) *cobra.Command {
	var maxParallel int

	cmd := &cobra.Command{
		Use:   "run JOB_FILE",
		Short: "Run a job until it completes or halts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			job, err := app.LoadJob(args[0])
			if err != nil {
				return err
			}

			results, closeDB, err := app.OpenResultRepo(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			var sinks []scheduler.ResultSink
			if results != nil {
				sinks = append(sinks, results)
			}

			if !cmd.Flags().Changed("max-parallel") {
				maxParallel = app.Config.MaxParallelTasks
			}

			run, err := scheduler.Execute(cmd.Context(), scheduler.Config{
				Job:              job,
				Runner:           app.TaskRunner(),
				MaxParallelTasks: maxParallel,
				Metrics:          app.Metrics(),
				Logger:           app.Logger,
			}, sinks...)
			if run == nil {
				return err
			}

			app.Out.PrintRun(run)

			if err != nil {
				app.Out.Error(err.Error())
			}
			if run.Status != domain.RunStatusCompleted {
				return fmt.Errorf("%w: failed steps %v", ErrRunHalted, run.FailedSteps())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Global limit of tasks in flight (0 = per-step concurrency only)")

	return cmd
}

// NewStepCmd создаёт команду выполнения одного шага без проверки зависимостей.
func NewStepCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "step JOB_FILE STEP",
		Short: "Run all tasks of a single step, ignoring its dependencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			s, err := newScheduler(app, args[0])
			if err != nil {
				return err
			}

			result, err := s.ScheduleOneStep(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			app.Out.PrintStepResult(result)

			if result.Failed() {
				return fmt.Errorf("%w: %s", ErrStepFailed, result.StepName)
			}
			return nil
		},
	}
}

// NewTaskCmd создаёт команду выполнения одного task.
func NewTaskCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "task JOB_FILE STEP INDEX",
		Short: "Run a single task of a step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid task index %q", args[2])
			}

			s, err := newScheduler(app, args[0])
			if err != nil {
				return err
			}

			result, err := s.ScheduleOneTask(cmd.Context(), args[1], index)
			if err != nil {
				return err
			}

			app.Out.PrintTaskResults(result, result)

			if result.Failed() {
				return fmt.Errorf("%w: %s", ErrTaskFailed, result.TaskID)
			}
			return nil
		},
	}
}

// NewPlanCmd создаёт команду вывода плана выполнения.
func NewPlanCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "plan JOB_FILE",
		Short: "Validate a job and print its steps in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			s, err := newScheduler(app, args[0])
			if err != nil {
				return err
			}

			app.Out.PrintPlan(s.Graph())
			return nil
		},
	}
}

func newScheduler(app *App, path string) (*scheduler.Scheduler, error) {
	job, err := app.LoadJob(path)
	if err != nil {
		return nil, err
	}

	return scheduler.New(scheduler.Config{
		Job:     job,
		Runner:  app.TaskRunner(),
		Metrics: app.Metrics(),
		Logger:  app.Logger,
	})
}
