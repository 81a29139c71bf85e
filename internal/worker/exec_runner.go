package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

// Переменные окружения, которые получает подпроцесс task.
const (
	EnvStep      = "STEPFLOW_STEP"
	EnvTaskIndex = "STEPFLOW_TASK_INDEX"
	EnvTaskNum   = "STEPFLOW_TASK_NUM"
	EnvWorkdir   = "STEPFLOW_WORKDIR"
)

// maxStderrTail — сколько байт stderr попадает в текст ошибки.
const maxStderrTail = 2048

// ExecRunner — исполнитель вида "exec": запускает подпроцесс.
//
// Params:
//   - command (string | []string): команда. Строка выполняется через Shell,
//     список — напрямую (первый элемент — программа).
//   - args ([]string): дополнительные аргументы (только для списка).
//
// Каждый аргумент рендерится как Go template с TaskContext
// ({{ .Index }}, {{ .Params.model }} и т.д.). Ненулевой код выхода — ошибка.
type ExecRunner struct {
	// Shell — интерпретатор для строковой команды (default: /bin/sh).
	Shell string

	// Env — дополнительные переменные окружения (KEY=VALUE).
	Env []string

	// Stdout — куда писать stdout подпроцесса (default: отбрасывается).
	Stdout io.Writer

	// Logger
	Logger *slog.Logger
}

// Run выполняет команду task.
func (r *ExecRunner) Run(ctx context.Context, tc domain.TaskContext) error {
	argv, err := r.command(tc)
	if err != nil {
		return err
	}

	argv, err = engine.RenderArgs(argv, tc)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = tc.Workdir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Env = append(cmd.Env, TaskEnv(tc)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if r.Stdout != nil {
		cmd.Stdout = r.Stdout
	}

	r.logger().Debug("exec task",
		"step", tc.Step,
		"task_index", tc.Index,
		"command", argv[0],
		"args", len(argv)-1,
	)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with code %d: %s",
				ErrExecutionFailed, argv[0], exitErr.ExitCode(), tail(stderr.Bytes()))
		}
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	return nil
}

// command собирает argv из params.command и params.args.
func (r *ExecRunner) command(tc domain.TaskContext) ([]string, error) {
	raw, ok := tc.Params["command"]
	if !ok {
		return nil, fmt.Errorf("%w: step %s", ErrMissingCommand, tc.Step)
	}

	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: step %s", ErrMissingCommand, tc.Step)
		}
		shell := r.Shell
		if shell == "" {
			shell = "/bin/sh"
		}
		return []string{shell, "-c", v}, nil

	default:
		argv, err := toStrings("command", raw)
		if err != nil {
			return nil, err
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("%w: step %s", ErrMissingCommand, tc.Step)
		}

		if extra, ok := tc.Params["args"]; ok {
			args, err := toStrings("args", extra)
			if err != nil {
				return nil, err
			}
			argv = append(argv, args...)
		}
		return argv, nil
	}
}

func (r *ExecRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// TaskEnv возвращает переменные окружения с контекстом task.
func TaskEnv(tc domain.TaskContext) []string {
	return []string{
		EnvStep + "=" + tc.Step,
		EnvTaskIndex + "=" + strconv.Itoa(tc.Index),
		EnvTaskNum + "=" + strconv.Itoa(tc.Total),
		EnvWorkdir + "=" + tc.Workdir,
	}
}

// toStrings приводит значение из JSON (string, []any, []string) к []string.
func toStrings(name string, v any) ([]string, error) {
	switch val := v.(type) {
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64, int, bool:
				out = append(out, fmt.Sprint(s))
			default:
				return nil, fmt.Errorf("%w: %s items must be scalars, got %T", ErrInvalidParam, name, item)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list, got %T", ErrInvalidParam, name, v)
	}
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxStderrTail {
		b = b[len(b)-maxStderrTail:]
	}
	return string(b)
}
