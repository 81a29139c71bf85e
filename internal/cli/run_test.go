package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/stepflow/internal/config"
	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/worker"
)

const testJob = `{
  "name": "train",
  "steps": [
    {"name": "ppl", "task_num": 2, "concurrency": 2},
    {"name": "cmp", "task_num": 1, "needs": ["ppl"]}
  ]
}`

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recorder) Run(_ context.Context, tc domain.TaskContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := domain.TaskID{Step: tc.Step, Index: tc.Index}.String()
	r.calls = append(r.calls, id)
	if r.fail[tc.Step] {
		return errors.New("boom")
	}
	return nil
}

func writeJob(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(testJob), 0o644); err != nil {
		t.Fatalf("write job: %v", err)
	}
	return path
}

func testApp(runner domain.TaskRunner) (*App, *bytes.Buffer, *bytes.Buffer) {
	var out, msg bytes.Buffer
	return &App{
		Config: config.Config{Workdir: "."},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:    NewOutputTo(false, &out, &msg),
		Runner: runner,
	}, &out, &msg
}

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd.ExecuteContext(context.Background())
}

func TestRunCmd_Completed(t *testing.T) {
	rec := &recorder{}
	app, out, msg := testApp(rec)

	err := execute(NewRunCmd(func() *App { return app }), writeJob(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.calls) != 3 {
		t.Fatalf("expected 3 task executions, got %v", rec.calls)
	}
	if rec.calls[2] != "cmp/0" {
		t.Errorf("cmp should run last, got %v", rec.calls)
	}
	if !strings.Contains(out.String(), "cmp") {
		t.Errorf("output should list steps:\n%s", out.String())
	}
	if !strings.Contains(msg.String(), "COMPLETED") {
		t.Errorf("summary should report COMPLETED, got %q", msg.String())
	}
}

func TestRunCmd_Halted(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"ppl": true}}
	app, _, _ := testApp(rec)

	err := execute(NewRunCmd(func() *App { return app }), writeJob(t))
	if !errors.Is(err, ErrRunHalted) {
		t.Fatalf("expected ErrRunHalted, got %v", err)
	}

	for _, c := range rec.calls {
		if strings.HasPrefix(c, "cmp") {
			t.Errorf("cmp must not run after ppl failed, calls: %v", rec.calls)
		}
	}
}

func TestRunCmd_MissingFile(t *testing.T) {
	app, _, _ := testApp(&recorder{})

	err := execute(NewRunCmd(func() *App { return app }), filepath.Join(t.TempDir(), "none.json"))
	if err == nil {
		t.Fatal("expected error for missing job file")
	}
}

func TestStepCmd_IgnoresNeeds(t *testing.T) {
	rec := &recorder{}
	app, _, msg := testApp(rec)

	err := execute(NewStepCmd(func() *App { return app }), writeJob(t), "cmp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "cmp/0" {
		t.Errorf("expected only cmp/0, got %v", rec.calls)
	}
	if !strings.Contains(msg.String(), "Step cmp SUCCESS") {
		t.Errorf("unexpected summary %q", msg.String())
	}
}

func TestStepCmd_Failed(t *testing.T) {
	app, _, _ := testApp(&recorder{fail: map[string]bool{"ppl": true}})

	err := execute(NewStepCmd(func() *App { return app }), writeJob(t), "ppl")
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("expected ErrStepFailed, got %v", err)
	}
}

func TestTaskCmd(t *testing.T) {
	rec := &recorder{}
	app, out, _ := testApp(rec)

	err := execute(NewTaskCmd(func() *App { return app }), writeJob(t), "ppl", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0] != "ppl/1" {
		t.Errorf("expected only ppl/1, got %v", rec.calls)
	}
	if !strings.Contains(out.String(), "ppl/1") {
		t.Errorf("output should contain task id:\n%s", out.String())
	}
}

func TestTaskCmd_BadIndex(t *testing.T) {
	app, _, _ := testApp(&recorder{})
	cmdFn := func() *App { return app }

	if err := execute(NewTaskCmd(cmdFn), writeJob(t), "ppl", "x"); err == nil {
		t.Error("expected error for non-numeric index")
	}
	if err := execute(NewTaskCmd(cmdFn), writeJob(t), "ppl", "5"); err == nil {
		t.Error("expected error for out-of-range index")
	}
}

func TestPlanCmd(t *testing.T) {
	rec := &recorder{}
	app, out, _ := testApp(rec)

	if err := execute(NewPlanCmd(func() *App { return app }), writeJob(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("plan must not execute tasks, got %v", rec.calls)
	}
	if !strings.Contains(out.String(), "CONCURRENCY") {
		t.Errorf("unexpected plan output:\n%s", out.String())
	}
}

func TestApp_TaskRunnerDefault(t *testing.T) {
	app := &App{
		Config: config.Config{TaskRetries: 0},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	runner := app.TaskRunner()
	if _, ok := runner.(*worker.Registry); !ok {
		t.Errorf("without retries the registry should be used directly, got %T", runner)
	}
	if app.TaskRunner() != runner {
		t.Error("TaskRunner should be built once")
	}
}

func TestApp_OpenResultRepoWithoutDB(t *testing.T) {
	app, _, _ := testApp(&recorder{})

	results, closeDB, err := app.OpenResultRepo(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeDB()
	if results != nil {
		t.Error("without DB_URL no repository should be opened")
	}
}
