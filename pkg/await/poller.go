package await

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/promptwait/promptwait/internal/shared/logging"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// ExecutionPoller polls a worker-scoped execution until it reaches a terminal
// state. The returned status is the last observation made, even when Await
// ends with an error, so callers can attach it to diagnostics.
type ExecutionPoller struct {
	boundary Boundary
	clock    clock.Clock
	logger   logging.Logger
}

func NewExecutionPoller(boundary Boundary, logger logging.Logger) *ExecutionPoller {
	return newExecutionPoller(boundary, clock.New(), logger)
}

func newExecutionPoller(boundary Boundary, clk clock.Clock, logger logging.Logger) *ExecutionPoller {
	return &ExecutionPoller{boundary: boundary, clock: clk, logger: logger}
}

// Await blocks until the execution is done or failed, the unknown streak runs
// out, or ctx ends. queued, submitted and running continue the loop. Progress
// may regress between polls (multi-stage jobs); that is tolerated, not an
// error. cfg.OnProgress, when set, sees every observation.
func (p *ExecutionPoller) Await(ctx context.Context, executionID string, cfg Config) (gateway.ExecutionStatus, error) {
	cfg = cfg.withDefaults()

	var last gateway.ExecutionStatus
	unknownStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			return last, asFailure(err, KindTimeout)
		}

		status, err := p.boundary.GetStatus(ctx, executionID)
		if err != nil {
			return last, asFailure(err, KindTransientNetwork)
		}
		last = status
		if cfg.OnProgress != nil {
			cfg.OnProgress(status)
		}

		switch status.State {
		case gateway.StateDone:
			return status, nil
		case gateway.StateFailed:
			message := status.Message
			if message == "" {
				message = fmt.Sprintf("execution %s failed", executionID)
			}
			return status, newFailure(KindExecutionFailed, "", message, nil)
		case gateway.StateUnknown:
			// Historically "not found in any queue, but not confirmed failed
			// either". Keep polling, but not forever.
			unknownStreak++
			p.logger.Debug("Ambiguous execution state", "execution_id", executionID, "streak", unknownStreak)
			if unknownStreak >= cfg.MaxUnknownStreak {
				return status, newFailure(
					KindAmbiguousState,
					ReasonUnknownStreak,
					fmt.Sprintf("execution %s reported unknown on %d consecutive polls", executionID, unknownStreak),
					nil,
				)
			}
		default:
			unknownStreak = 0
		}

		if err := sleep(ctx, p.clock, cfg.PollInterval); err != nil {
			return last, asFailure(err, KindTimeout)
		}
	}
}
