package gateway

import "encoding/json"

// JobSubmission is the caller-facing submission payload. Graph is the opaque
// worker-native job graph. A nil Priority bypasses the gateway pre-queue and
// submits straight to a worker; any integer value enters the priority path
// (larger is served sooner, ties broken by arrival order).
type JobSubmission struct {
	Graph    json.RawMessage
	ClientID string
	Priority *int
}

// QueueTicket is the gateway-issued placeholder for a job waiting in the
// pre-queue. It never carries progress or results; it exists only until it
// resolves to an ExecutionHandle or fails.
type QueueTicket struct {
	TicketID    string
	Status      TicketStatus
	ExecutionID string
	WorkerRef   string
}

// ExecutionHandle is the worker-scoped identity of an assigned job. Once it
// exists, it is the only identifier used for status and result queries.
type ExecutionHandle struct {
	ExecutionID string
	WorkerRef   string
}

// ExecutionStatus is one observation of a running job. Progress, when present,
// is 0-100; the boundary does not guarantee monotonicity.
type ExecutionStatus struct {
	ExecutionID string
	State       State
	Progress    *int
	Message     string
}

// SubmitResult is the tagged union a submission yields: exactly one of Handle
// or Ticket is non-nil, depending on whether the gateway assigned a worker
// immediately or parked the job in its pre-queue.
type SubmitResult struct {
	Handle *ExecutionHandle
	Ticket *QueueTicket

	// QueuePosition is the worker-native queue number, when the boundary
	// reports one on the immediate path.
	QueuePosition *int
}

// Queued reports whether the submission landed in the gateway pre-queue.
func (r SubmitResult) Queued() bool {
	return r.Ticket != nil
}

// ResultDocument is the raw result body: node id -> outputs produced by that
// node. It may be empty even for a completed job.
type ResultDocument map[string]NodeResult

// NodeResult lists the output files one node of the job graph produced.
type NodeResult struct {
	Outputs []OutputFile `json:"outputs"`
}

// OutputFile locates one produced file on the worker side.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type submitRequest struct {
	Job      json.RawMessage `json:"job"`
	ClientID string          `json:"client_id,omitempty"`
	Priority *int            `json:"priority,omitempty"`
}

type submitResponse struct {
	ExecutionID   string `json:"execution_id,omitempty"`
	WorkerRef     string `json:"worker_ref,omitempty"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	TicketID      string `json:"ticket_id,omitempty"`
	Status        string `json:"status,omitempty"`
}

type ticketResponse struct {
	TicketID    string `json:"ticket_id"`
	Status      string `json:"status"`
	ExecutionID string `json:"execution_id,omitempty"`
	WorkerRef   string `json:"worker_ref,omitempty"`
}

type statusResponse struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
	Progress    *int   `json:"progress,omitempty"`
	Message     string `json:"message,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
