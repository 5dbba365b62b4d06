package await

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptwait/promptwait/pkg/gateway"
)

// FailureKind classifies every way a run can end short of done.
type FailureKind string

const (
	// KindSubmissionRejected is a boundary rejection of the initial submit:
	// malformed job or no capacity. Never retried.
	KindSubmissionRejected FailureKind = "submission_rejected"

	// KindTicketFailed means the pre-queue ticket terminated without ever
	// yielding an execution handle.
	KindTicketFailed FailureKind = "ticket_failed"

	// KindTransientNetwork means bounded in-place retries of a poll call were
	// exhausted without reaching the boundary.
	KindTransientNetwork FailureKind = "transient_network"

	// KindAmbiguousState means the boundary answered "unknown" too many polls
	// in a row to keep waiting.
	KindAmbiguousState FailureKind = "ambiguous_state"

	// KindTimeout means the overall budget ran out, or the caller cancelled.
	// A defined outcome, not a defect.
	KindTimeout FailureKind = "timeout"

	// KindExecutionFailed means the boundary reported the job failed; the
	// message carries the boundary's diagnostic verbatim.
	KindExecutionFailed FailureKind = "execution_failed"
)

// Reasons attached to failures whose kind alone is not specific enough.
const (
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonUnknownStreak = "ambiguous-state-streak"
	ReasonTicketLost    = "not-found"
	ReasonTicketDenied  = "rejected"
)

// Failure is the terminal error of a run. It is always returned inside the
// Outcome, never past the orchestrator as a bare error.
type Failure struct {
	Kind    FailureKind
	Reason  string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Err.Error())
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(kind FailureKind, reason, message string, err error) *Failure {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Failure{Kind: kind, Reason: reason, Message: message, Err: err}
}

// asFailure coerces an arbitrary stage error into a *Failure, classifying
// cancellation and transport errors that were not already typed.
func asFailure(err error, fallback FailureKind) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	var subErr *gateway.SubmissionError
	if errors.As(err, &subErr) {
		return newFailure(KindSubmissionRejected, "", subErr.Reason, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newFailure(KindTimeout, ReasonTimeout, "overall timeout exhausted", err)
	}
	if errors.Is(err, context.Canceled) {
		return newFailure(KindTimeout, ReasonCanceled, "run canceled", err)
	}
	return newFailure(fallback, "", "", err)
}

// finalStateFor maps a failure to the Outcome's terminal state: budget and
// ambiguity problems end as unknown, everything else as failed.
func finalStateFor(f *Failure) gateway.State {
	switch f.Kind {
	case KindTimeout, KindAmbiguousState:
		return gateway.StateUnknown
	default:
		return gateway.StateFailed
	}
}
