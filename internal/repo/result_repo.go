package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/stepflow/internal/domain"
)

// ResultRepo — репозиторий результатов запусков.
//
// Реализует scheduler.ResultSink: Save сохраняет run, результаты шагов
// и tasks в одной транзакции.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// Save сохраняет run целиком. Повторный Save того же run перезаписывает его.
func (r *ResultRepo) Save(ctx context.Context, run *domain.Run) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, job_name, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at
	`, run.ID, run.JobName, run.Status, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	// Перезаписываем результаты целиком (retry шага меняет его итог)
	if _, err := tx.Exec(ctx, `DELETE FROM step_results WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("delete step results: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM task_results WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("delete task results: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range stepRows(run) {
		batch.Queue(`
			INSERT INTO step_results (run_id, step, position, status)
			VALUES ($1, $2, $3, $4)
		`, run.ID, row.step, row.position, row.status)
	}
	for _, row := range taskRows(run) {
		batch.Queue(`
			INSERT INTO task_results (run_id, step, task_index, status, error, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, run.ID, row.step, row.index, row.status, nullString(row.err), nullTime(row.startedAt), nullTime(row.finishedAt))
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun возвращает run с результатами шагов и tasks.
func (r *ResultRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	var run domain.Run
	err := r.pool.QueryRow(ctx, `
		SELECT id, job_name, status, started_at, finished_at
		FROM runs
		WHERE id = $1
	`, id).Scan(&run.ID, &run.JobName, &run.Status, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	steps, err := r.listSteps(ctx, id)
	if err != nil {
		return nil, err
	}

	tasks, err := r.listTasks(ctx, id)
	if err != nil {
		return nil, err
	}

	for i := range steps {
		steps[i].Tasks = tasks[steps[i].StepName]
	}
	run.Steps = steps

	return &run, nil
}

// ListRuns возвращает последние runs job (без результатов шагов).
func (r *ResultRepo) ListRuns(ctx context.Context, jobName string, limit int) ([]domain.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_name, status, started_at, finished_at
		FROM runs
		WHERE ($1 = '' OR job_name = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(&run.ID, &run.JobName, &run.Status, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *ResultRepo) listSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT step, status
		FROM step_results
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	defer rows.Close()

	var steps []domain.StepResult
	for rows.Next() {
		var s domain.StepResult
		var status string
		if err := rows.Scan(&s.StepName, &status); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		s.Status = domain.ParseStepStatus(status)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *ResultRepo) listTasks(ctx context.Context, runID uuid.UUID) (map[string][]domain.TaskResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT step, task_index, status, error, started_at, finished_at
		FROM task_results
		WHERE run_id = $1
		ORDER BY step, task_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	tasks := make(map[string][]domain.TaskResult)
	for rows.Next() {
		var t domain.TaskResult
		var taskErr *string
		var startedAt, finishedAt *time.Time

		if err := rows.Scan(&t.TaskID.Step, &t.TaskID.Index, &t.Status, &taskErr, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		if taskErr != nil {
			t.Error = *taskErr
		}
		if startedAt != nil {
			t.StartedAt = *startedAt
		}
		if finishedAt != nil {
			t.FinishedAt = *finishedAt
		}
		tasks[t.TaskID.Step] = append(tasks[t.TaskID.Step], t)
	}
	return tasks, rows.Err()
}

// --- Helpers ---

type stepRow struct {
	step     string
	position int
	status   domain.StepStatus
}

type taskRow struct {
	step       string
	index      int
	status     domain.TaskStatus
	err        string
	startedAt  time.Time
	finishedAt time.Time
}

// stepRows раскладывает результаты шагов в строки step_results.
// position — порядок завершения шага в run.
func stepRows(run *domain.Run) []stepRow {
	rows := make([]stepRow, 0, len(run.Steps))
	for i, s := range run.Steps {
		rows = append(rows, stepRow{step: s.StepName, position: i, status: s.Status})
	}
	return rows
}

// taskRows раскладывает результаты tasks в строки task_results.
func taskRows(run *domain.Run) []taskRow {
	rows := make([]taskRow, 0, run.TaskCount())
	for _, s := range run.Steps {
		for _, t := range s.Tasks {
			rows = append(rows, taskRow{
				step:       t.TaskID.Step,
				index:      t.TaskID.Index,
				status:     t.Status,
				err:        t.Error,
				startedAt:  t.StartedAt,
				finishedAt: t.FinishedAt,
			})
		}
	}
	return rows
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
