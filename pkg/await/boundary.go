package await

import (
	"context"

	"github.com/promptwait/promptwait/pkg/gateway"
)

// Boundary is the gateway surface the awaiter drives. *gateway.Client
// implements it; tests substitute scripted fakes.
type Boundary interface {
	Submit(ctx context.Context, job gateway.JobSubmission) (gateway.SubmitResult, error)
	GetTicket(ctx context.Context, ticketID string) (gateway.QueueTicket, error)
	GetStatus(ctx context.Context, executionID string) (gateway.ExecutionStatus, error)
	GetResult(ctx context.Context, executionID string) (gateway.ResultDocument, error)
}

var _ Boundary = (*gateway.Client)(nil)
