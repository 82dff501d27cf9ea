package action

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusflow/chorus/model"
)

// WaitExecutor suspends the action for config duration_seconds. Cancellation
// of the driving execution interrupts the wait.
type WaitExecutor struct{}

var _ Executor = new(WaitExecutor)

func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{}
}

func (e *WaitExecutor) Type() model.ActionType {
	return model.ACTION_TYPE_WAIT
}

func (e *WaitExecutor) Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error) {
	seconds, ok := configFloat(config, "duration_seconds")
	if !ok || seconds < 0 {
		return nil, fmt.Errorf("wait action requires a non-negative duration_seconds")
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{"waited_seconds": seconds}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
