package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
)

// DelayRunner — исполнитель вида "delay".
//
// Ожидает указанное количество секунд. Поддерживает отмену через context.
// Полезен для проверки job без реальной нагрузки.
//
// Params:
//   - duration_sec (number): длительность задержки в секундах (default: 1)
type DelayRunner struct{}

// Run выполняет задержку.
func (r *DelayRunner) Run(ctx context.Context, tc domain.TaskContext) error {
	durationSec := 1.0
	if val, ok := tc.Params["duration_sec"]; ok {
		switch v := val.(type) {
		case float64:
			durationSec = v
		case int:
			durationSec = float64(v)
		default:
			return fmt.Errorf("%w: duration_sec must be a number, got %T", ErrInvalidParam, val)
		}
	}

	if durationSec < 0 {
		durationSec = 0
	}

	timer := time.NewTimer(time.Duration(durationSec * float64(time.Second)))
	defer timer.Stop()

	// Context-aware ожидание
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
