package await

import (
	"time"

	"github.com/promptwait/promptwait/pkg/gateway"
)

// ResultArtifact is one output file produced by one node of the job graph.
// Locator is self-sufficient: it can be dereferenced against the gateway's
// view endpoint later without the in-memory Outcome.
type ResultArtifact struct {
	NodeID   string `json:"node_id"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"`
	Locator  string `json:"locator"`
}

// Outcome is the terminal record of one Run: produced exactly once, immutable.
//
// Invariants: FinalState done implies a non-nil (possibly empty) Artifacts
// list and a nil Err; failed and unknown imply nil Artifacts and a populated
// Err. TicketID is set iff the submission took the priority path.
type Outcome struct {
	ExecutionID string           `json:"execution_id,omitempty"`
	TicketID    string           `json:"ticket_id,omitempty"`
	FinalState  gateway.State    `json:"final_state"`
	Artifacts   []ResultArtifact `json:"artifacts,omitempty"`
	Err         *Failure         `json:"-"`
	Elapsed     time.Duration    `json:"elapsed"`

	// LastStatus is the last observation before the run ended, attached for
	// diagnostics on timeout and ambiguous endings.
	LastStatus *gateway.ExecutionStatus `json:"-"`
}

// Done reports whether the run completed successfully.
func (o Outcome) Done() bool {
	return o.FinalState == gateway.StateDone
}

// Reason is the short machine-readable reason for a non-done outcome, empty
// for done.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	if o.Err.Reason != "" {
		return o.Err.Reason
	}
	return string(o.Err.Kind)
}

// Message is a human-readable summary suitable for direct display.
func (o Outcome) Message() string {
	if o.Err == nil {
		return "completed"
	}
	return o.Err.Error()
}
