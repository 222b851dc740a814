package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/token"
)

// Dispatcher runs a named contract action.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// DrainReport counts the outcome of one drain.
type DrainReport struct {
	Ran    int `json:"ran"`
	Failed int `json:"failed"`
	Paid   int `json:"paid"`
}

// Runner executes queued actions, each signed by its authority.
type Runner struct {
	queue      Queue
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewRunner constructs a runner.
func NewRunner(queue Queue, dispatcher Dispatcher, logger *slog.Logger) *Runner {
	return &Runner{queue: queue, dispatcher: dispatcher, logger: logger}
}

// Drain pops and dispatches actions until the queue is empty. A failed action
// is logged and dropped; the failures are returned joined.
func (r *Runner) Drain(ctx context.Context) (DrainReport, error) {
	var (
		report DrainReport
		errs   []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		action, ok, err := r.queue.Pop(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			return report, errors.Join(errs...)
		}

		out, err := r.dispatcher.Dispatch(auth.WithSigners(ctx, action.Authority), action.Name, action.Args)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("action %s %s: %w", action.Name, action.ID, err))
			r.logger.Error("deferred action failed",
				slog.String("action_id", action.ID.String()),
				slog.String("action", action.Name),
				slog.String("authority", action.Authority),
				slog.Any("error", err),
			)
			continue
		}
		report.Ran++
		if p, ok := out.(token.PayoutResult); ok && !p.Paid.IsZero() {
			report.Paid++
		}
		r.logger.Debug("deferred action ran",
			slog.String("action_id", action.ID.String()),
			slog.String("action", action.Name),
		)
	}
}
