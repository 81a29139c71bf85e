package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/mq"
	"github.com/shaiso/stepflow/internal/repo"
)

// NewSubmitCmd создаёт команду постановки job в очередь.
func NewSubmitCmd(appFn func() *App) *cobra.Command {
	var maxParallel int

	cmd := &cobra.Command{
		Use:   "submit JOB_FILE",
		Short: "Queue a job for the stepflow service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			job, err := app.LoadJob(args[0])
			if err != nil {
				return err
			}

			conn, publisher, err := app.OpenMQ(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			err = publisher.PublishRunRequested(cmd.Context(), mq.RunRequestedPayload{
				Job:              *job,
				MaxParallelTasks: maxParallel,
			})
			if err != nil {
				return err
			}

			app.Out.Success(fmt.Sprintf("Job %s queued (%d steps)", job.Name, len(job.Steps)))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "Global limit of tasks in flight for this run")

	return cmd
}

// NewShowCmd создаёт команду просмотра сохранённого run.
func NewShowCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			results, closeDB, err := openRequiredRepo(cmd, app)
			if err != nil {
				return err
			}
			defer closeDB()

			run, err := results.GetRun(cmd.Context(), id)
			if err != nil {
				return err
			}

			app.Out.PrintRun(run)
			return nil
		},
	}
}

// NewHistoryCmd создаёт команду списка последних runs.
func NewHistoryCmd(appFn func() *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [JOB_NAME]",
		Short: "List stored runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			jobName := ""
			if len(args) == 1 {
				jobName = args[0]
			}

			results, closeDB, err := openRequiredRepo(cmd, app)
			if err != nil {
				return err
			}
			defer closeDB()

			runs, err := results.ListRuns(cmd.Context(), jobName, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "JOB", "STATUS", "STARTED", "DURATION"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.JobName,
					string(r.Status),
					r.StartedAt.Format("2006-01-02 15:04:05"),
					formatDuration(r.Duration()),
				}
			}

			app.Out.Print(headers, rows, runs)
			app.Out.Success(strconv.Itoa(len(runs)) + " runs")
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}

// openRequiredRepo подключается к БД; без DB_URL возвращает ошибку.
func openRequiredRepo(cmd *cobra.Command, app *App) (*repo.ResultRepo, func(), error) {
	results, closeDB, err := app.OpenResultRepo(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		return nil, nil, errors.New("DB_URL is not set")
	}
	return results, closeDB, nil
}
