package await

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/promptwait/promptwait/internal/shared/logging"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// TicketResolver polls a pre-queue ticket until the gateway assigns a worker
// or the ticket fails. It owns the ticket for the whole of its lifetime; once
// an execution handle exists the ticket is discarded.
type TicketResolver struct {
	boundary Boundary
	clock    clock.Clock
	logger   logging.Logger
}

func NewTicketResolver(boundary Boundary, logger logging.Logger) *TicketResolver {
	return newTicketResolver(boundary, clock.New(), logger)
}

func newTicketResolver(boundary Boundary, clk clock.Clock, logger logging.Logger) *TicketResolver {
	return &TicketResolver{boundary: boundary, clock: clk, logger: logger}
}

// Resolve blocks until the ticket carries an execution id, the ticket fails,
// or ctx ends. A ticket 404 is not immediately terminal: the boundary does not
// distinguish "expired" from "not propagated yet", so up to cfg.NotFoundGrace
// consecutive not-found responses are tolerated before declaring failure.
func (r *TicketResolver) Resolve(ctx context.Context, ticketID string, cfg Config) (gateway.ExecutionHandle, error) {
	cfg = cfg.withDefaults()
	notFoundStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			return gateway.ExecutionHandle{}, asFailure(err, KindTimeout)
		}

		ticket, err := r.boundary.GetTicket(ctx, ticketID)
		switch {
		case gateway.IsNotFound(err):
			notFoundStreak++
			r.logger.Debug("Ticket not found", "ticket_id", ticketID, "streak", notFoundStreak)
			if notFoundStreak >= cfg.NotFoundGrace {
				return gateway.ExecutionHandle{}, newFailure(
					KindTicketFailed,
					ReasonTicketLost,
					fmt.Sprintf("ticket %s unknown to gateway after %d polls", ticketID, notFoundStreak),
					err,
				)
			}
		case err != nil:
			return gateway.ExecutionHandle{}, asFailure(err, KindTransientNetwork)
		default:
			notFoundStreak = 0
			if ticket.ExecutionID != "" {
				r.logger.Info("Ticket resolved",
					"ticket_id", ticketID,
					"execution_id", ticket.ExecutionID,
					"worker_ref", ticket.WorkerRef,
				)
				return gateway.ExecutionHandle{ExecutionID: ticket.ExecutionID, WorkerRef: ticket.WorkerRef}, nil
			}
			if ticket.Status == gateway.TicketFailed {
				return gateway.ExecutionHandle{}, newFailure(
					KindTicketFailed,
					ReasonTicketDenied,
					fmt.Sprintf("gateway reported ticket %s failed", ticketID),
					nil,
				)
			}
			// Still queued. The status string is the whole signal; there is
			// no position or ETA to report.
		}

		if err := sleep(ctx, r.clock, cfg.PollInterval); err != nil {
			return gateway.ExecutionHandle{}, asFailure(err, KindTimeout)
		}
	}
}

// sleep waits one poll interval, unblocking promptly on cancellation.
func sleep(ctx context.Context, clk clock.Clock, interval time.Duration) error {
	timer := clk.Timer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
