package await

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promptwait/promptwait/internal/shared/logging"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// fakeBoundary is a scripted gateway. Each Get call consumes the next step of
// its script; when a script runs out, the last step repeats, which models the
// boundary's idempotent terminal responses.
type fakeBoundary struct {
	mu sync.Mutex

	submitResult gateway.SubmitResult
	submitErr    error

	ticketScript []ticketStep
	statusScript []statusStep

	resultDoc gateway.ResultDocument
	resultErr error

	submitCalls int
	ticketCalls int
	statusCalls int
	resultCalls int
}

type ticketStep struct {
	ticket gateway.QueueTicket
	err    error
}

type statusStep struct {
	status gateway.ExecutionStatus
	err    error
}

func (f *fakeBoundary) Submit(ctx context.Context, job gateway.JobSubmission) (gateway.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	return f.submitResult, f.submitErr
}

func (f *fakeBoundary) GetTicket(ctx context.Context, ticketID string) (gateway.QueueTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.ticketScript[min(f.ticketCalls, len(f.ticketScript)-1)]
	f.ticketCalls++
	return step.ticket, step.err
}

func (f *fakeBoundary) GetStatus(ctx context.Context, executionID string) (gateway.ExecutionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.statusScript[min(f.statusCalls, len(f.statusScript)-1)]
	f.statusCalls++
	return step.status, step.err
}

func (f *fakeBoundary) GetResult(ctx context.Context, executionID string) (gateway.ResultDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	return f.resultDoc, f.resultErr
}

func intPtr(v int) *int { return &v }

func running(id string, progress int) statusStep {
	return statusStep{status: gateway.ExecutionStatus{ExecutionID: id, State: gateway.StateRunning, Progress: intPtr(progress)}}
}

func terminal(id string, state gateway.State, message string) statusStep {
	return statusStep{status: gateway.ExecutionStatus{ExecutionID: id, State: state, Message: message}}
}

func fastConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		OverallTimeout: 5 * time.Second,
	}
}

func testOrchestrator(boundary Boundary) *Orchestrator {
	return NewOrchestrator(boundary, logging.NopLogger{})
}

func immediateSubmit(executionID string) gateway.SubmitResult {
	return gateway.SubmitResult{Handle: &gateway.ExecutionHandle{ExecutionID: executionID, WorkerRef: "worker-a"}}
}

func queuedSubmit(ticketID string) gateway.SubmitResult {
	return gateway.SubmitResult{Ticket: &gateway.QueueTicket{TicketID: ticketID, Status: gateway.TicketQueued}}
}

func TestRunImmediatePathToCompletion(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: []statusStep{
			running("p1", 10),
			running("p1", 60),
			terminal("p1", gateway.StateDone, ""),
		},
		resultDoc: gateway.ResultDocument{
			"3": {Outputs: []gateway.OutputFile{{Filename: "a.png", Type: "output"}}},
			"7": {Outputs: []gateway.OutputFile{{Filename: "b.png", Type: "output"}}},
		},
	}

	var seen []gateway.ExecutionStatus
	cfg := fastConfig()
	cfg.OnProgress = func(s gateway.ExecutionStatus) { seen = append(seen, s) }

	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)

	require.True(t, outcome.Done())
	require.Equal(t, gateway.StateDone, outcome.FinalState)
	require.Equal(t, "p1", outcome.ExecutionID)
	require.Len(t, outcome.Artifacts, 2)
	require.Nil(t, outcome.Err)
	require.Equal(t, "completed", outcome.Message())

	// Without priority the run never enters the ticketed state.
	require.Empty(t, outcome.TicketID)
	require.Zero(t, boundary.ticketCalls)

	// Progress is observable on every poll, including the terminal one.
	require.Len(t, seen, 3)
	require.Equal(t, 10, *seen[0].Progress)
	require.Equal(t, 60, *seen[1].Progress)
	require.Equal(t, gateway.StateDone, seen[2].State)
}

func TestRunPriorityPathResolvesTicketFirst(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: queuedSubmit("t1"),
		ticketScript: []ticketStep{
			{ticket: gateway.QueueTicket{TicketID: "t1", Status: gateway.TicketQueued}},
			{ticket: gateway.QueueTicket{TicketID: "t1", Status: gateway.TicketQueued}},
			{ticket: gateway.QueueTicket{TicketID: "t1", Status: gateway.TicketResolved, ExecutionID: "p2", WorkerRef: "worker-b"}},
		},
		statusScript: []statusStep{terminal("p2", gateway.StateDone, "")},
		resultDoc:    gateway.ResultDocument{},
	}

	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, fastConfig())

	require.True(t, outcome.Done())
	require.Equal(t, "t1", outcome.TicketID)
	require.Equal(t, "p2", outcome.ExecutionID)
	require.Equal(t, 3, boundary.ticketCalls)

	// done with zero artifacts is a valid completion, never an error.
	require.NotNil(t, outcome.Artifacts)
	require.Empty(t, outcome.Artifacts)
}

func TestRunTimeoutPreservesLastStatus(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: []statusStep{running("p1", 42)},
	}

	cfg := Config{PollInterval: 5 * time.Millisecond, OverallTimeout: 40 * time.Millisecond}
	start := time.Now()
	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)
	elapsed := time.Since(start)

	require.Equal(t, gateway.StateUnknown, outcome.FinalState)
	require.Equal(t, ReasonTimeout, outcome.Reason())
	require.NotNil(t, outcome.Err)
	require.Equal(t, KindTimeout, outcome.Err.Kind)
	require.Nil(t, outcome.Artifacts)
	require.Zero(t, boundary.resultCalls)

	require.NotNil(t, outcome.LastStatus)
	require.Equal(t, 42, *outcome.LastStatus.Progress)

	// The run may overshoot the budget by at most one interval (plus slack
	// for the scheduler).
	require.Less(t, elapsed, cfg.OverallTimeout+cfg.PollInterval+250*time.Millisecond)
}

func TestRunTicketFailureSkipsStatusPolling(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: queuedSubmit("t1"),
		ticketScript: []ticketStep{
			{ticket: gateway.QueueTicket{TicketID: "t1", Status: gateway.TicketFailed}},
		},
	}

	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, fastConfig())

	require.Equal(t, gateway.StateFailed, outcome.FinalState)
	require.Equal(t, "t1", outcome.TicketID)
	require.Empty(t, outcome.ExecutionID)
	require.NotNil(t, outcome.Err)
	require.Equal(t, KindTicketFailed, outcome.Err.Kind)
	require.Equal(t, ReasonTicketDenied, outcome.Reason())
	require.Zero(t, boundary.statusCalls, "GetStatus must never be called for a failed ticket")
}

func TestRunAmbiguousStateStreakAborts(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: []statusStep{
			{status: gateway.ExecutionStatus{ExecutionID: "p1", State: gateway.StateUnknown}},
		},
	}

	cfg := fastConfig()
	cfg.MaxUnknownStreak = 5
	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)

	require.Equal(t, gateway.StateUnknown, outcome.FinalState)
	require.Equal(t, ReasonUnknownStreak, outcome.Reason())
	require.Equal(t, KindAmbiguousState, outcome.Err.Kind)
	require.Equal(t, 5, boundary.statusCalls)
}

func TestRunUnknownStreakResetsOnKnownState(t *testing.T) {
	script := make([]statusStep, 0, 10)
	for i := 0; i < 4; i++ {
		script = append(script, statusStep{status: gateway.ExecutionStatus{ExecutionID: "p1", State: gateway.StateUnknown}})
	}
	script = append(script, running("p1", 50))
	for i := 0; i < 4; i++ {
		script = append(script, statusStep{status: gateway.ExecutionStatus{ExecutionID: "p1", State: gateway.StateUnknown}})
	}
	script = append(script, terminal("p1", gateway.StateDone, ""))

	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: script,
		resultDoc:    gateway.ResultDocument{},
	}

	cfg := fastConfig()
	cfg.MaxUnknownStreak = 5
	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)

	require.True(t, outcome.Done())
	require.Equal(t, 10, boundary.statusCalls)
}

func TestRunExecutionFailedCarriesBoundaryMessage(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: []statusStep{
			running("p1", 30),
			terminal("p1", gateway.StateFailed, "CUDA out of memory"),
		},
	}

	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, fastConfig())

	require.Equal(t, gateway.StateFailed, outcome.FinalState)
	require.Equal(t, KindExecutionFailed, outcome.Err.Kind)
	require.Equal(t, "CUDA out of memory", outcome.Err.Message)
	require.Nil(t, outcome.Artifacts)
	require.Zero(t, boundary.resultCalls)
}

func TestRunSubmissionRejected(t *testing.T) {
	boundary := &fakeBoundary{
		submitErr: &gateway.SubmissionError{StatusCode: http.StatusServiceUnavailable, Reason: "no available worker"},
	}

	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, fastConfig())

	require.Equal(t, gateway.StateFailed, outcome.FinalState)
	require.Equal(t, KindSubmissionRejected, outcome.Err.Kind)
	require.Contains(t, outcome.Message(), "no available worker")
	require.Zero(t, boundary.ticketCalls)
	require.Zero(t, boundary.statusCalls)
}

func TestRunCancellationUnblocksPromptly(t *testing.T) {
	boundary := &fakeBoundary{
		submitResult: immediateSubmit("p1"),
		statusScript: []statusStep{running("p1", 10)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	cfg := Config{PollInterval: 10 * time.Second, OverallTimeout: time.Hour}
	start := time.Now()
	outcome := testOrchestrator(boundary).Run(ctx, gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)

	require.Equal(t, gateway.StateUnknown, outcome.FinalState)
	require.Equal(t, ReasonCanceled, outcome.Reason())
	require.Less(t, time.Since(start), time.Second, "cancel must not wait out a full poll interval")
}

func TestRunInvalidArtifactGlobFailsBeforeSubmit(t *testing.T) {
	boundary := &fakeBoundary{submitResult: immediateSubmit("p1")}

	cfg := fastConfig()
	cfg.ArtifactGlob = "[unclosed"
	outcome := testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, cfg)

	require.Equal(t, gateway.StateFailed, outcome.FinalState)
	require.Equal(t, KindSubmissionRejected, outcome.Err.Kind)
	require.Zero(t, boundary.submitCalls)
}

func TestRunsAreIndependent(t *testing.T) {
	newBoundary := func(id string) *fakeBoundary {
		return &fakeBoundary{
			submitResult: immediateSubmit(id),
			statusScript: []statusStep{running(id, 50), terminal(id, gateway.StateDone, "")},
			resultDoc:    gateway.ResultDocument{},
		}
	}

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			boundary := newBoundary("p1")
			outcomes[i] = testOrchestrator(boundary).Run(context.Background(), gateway.JobSubmission{Graph: []byte(`{"1":{}}`)}, fastConfig())
		}(i)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		require.True(t, outcome.Done())
	}
}
