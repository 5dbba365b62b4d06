package gateway

import "fmt"

// State is the execution-side status the boundary reports for a job. It is a
// closed set: anything else on the wire is a protocol error, not a new state.
type State string

const (
	StateQueued    State = "queued"
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateUnknown   State = "unknown"
)

// ParseState validates a raw status string against the closed set.
func ParseState(raw string) (State, error) {
	switch s := State(raw); s {
	case StateQueued, StateSubmitted, StateRunning, StateDone, StateFailed, StateUnknown:
		return s, nil
	}
	return "", fmt.Errorf("unrecognized execution state %q", raw)
}

// Terminal reports whether no further polling is meaningful for this state.
// Exactly done and failed are terminal; unknown is not.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TicketStatus is the lifecycle status of a gateway pre-queue ticket.
type TicketStatus string

const (
	TicketQueued   TicketStatus = "queued"
	TicketResolved TicketStatus = "resolved"
	TicketFailed   TicketStatus = "failed"
)

// ParseTicketStatus validates a raw ticket status string against the closed set.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	switch s := TicketStatus(raw); s {
	case TicketQueued, TicketResolved, TicketFailed:
		return s, nil
	}
	return "", fmt.Errorf("unrecognized ticket status %q", raw)
}
