package await

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/promptwait/promptwait/internal/shared/logging"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// Orchestrator composes submission, ticket resolution, execution polling and
// result fetching behind one blocking call. Each Run is an independent linear
// sequence; a single Orchestrator may serve concurrent Runs because it holds
// no per-run state.
type Orchestrator struct {
	boundary Boundary
	clock    clock.Clock
	logger   logging.Logger

	resolver *TicketResolver
	poller   *ExecutionPoller
	fetcher  *ResultFetcher
}

func NewOrchestrator(boundary Boundary, logger logging.Logger) *Orchestrator {
	return newOrchestrator(boundary, clock.New(), logger)
}

func newOrchestrator(boundary Boundary, clk clock.Clock, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		boundary: boundary,
		clock:    clk,
		logger:   logger,
		resolver: newTicketResolver(boundary, clk, logger),
		poller:   newExecutionPoller(boundary, clk, logger),
		fetcher:  NewResultFetcher(boundary),
	}
}

// Run drives one job from submission to a terminal Outcome:
//
//	submit -> [resolve ticket] -> await execution -> [fetch result]
//
// cfg.OverallTimeout budgets all stages together: a job that spends its whole
// budget queued still reports a timeout outcome. Run never returns an error;
// every failure is folded into the Outcome.
func (o *Orchestrator) Run(ctx context.Context, job gateway.JobSubmission, cfg Config) Outcome {
	cfg = cfg.withDefaults()
	start := o.clock.Now()

	if cfg.ArtifactGlob != "" && !doublestar.ValidatePattern(cfg.ArtifactGlob) {
		return o.finish(Outcome{}, newFailure(KindSubmissionRejected, "", "invalid artifact glob pattern "+cfg.ArtifactGlob, nil), start)
	}

	runCtx, cancel := o.clock.WithTimeout(ctx, cfg.OverallTimeout)
	defer cancel()

	submitted, err := o.boundary.Submit(runCtx, job)
	if err != nil {
		return o.finish(Outcome{}, asFailure(err, KindSubmissionRejected), start)
	}

	outcome := Outcome{}
	handle := submitted.Handle
	if submitted.Queued() {
		outcome.TicketID = submitted.Ticket.TicketID
		o.logger.Info("Job queued at gateway", "ticket_id", outcome.TicketID)

		resolved, err := o.resolver.Resolve(runCtx, outcome.TicketID, cfg)
		if err != nil {
			return o.finish(outcome, asFailure(err, KindTicketFailed), start)
		}
		handle = &resolved
	}
	if handle == nil {
		return o.finish(outcome, newFailure(KindSubmissionRejected, "", "submit response carried no identifier", nil), start)
	}
	outcome.ExecutionID = handle.ExecutionID
	o.logger.Info("Awaiting execution", "execution_id", handle.ExecutionID, "worker_ref", handle.WorkerRef)

	status, err := o.poller.Await(runCtx, handle.ExecutionID, cfg)
	if status.ExecutionID != "" {
		outcome.LastStatus = &status
	}
	if err != nil {
		return o.finish(outcome, asFailure(err, KindTransientNetwork), start)
	}

	artifacts, err := o.fetcher.Fetch(runCtx, handle.ExecutionID, cfg)
	if err != nil {
		return o.finish(outcome, asFailure(err, KindTransientNetwork), start)
	}

	outcome.FinalState = gateway.StateDone
	outcome.Artifacts = artifacts
	outcome.Elapsed = o.clock.Since(start)
	o.logger.Info("Run completed",
		"execution_id", outcome.ExecutionID,
		"artifacts", len(artifacts),
		"elapsed", outcome.Elapsed.String(),
	)
	return outcome
}

func (o *Orchestrator) finish(outcome Outcome, failure *Failure, start time.Time) Outcome {
	outcome.FinalState = finalStateFor(failure)
	outcome.Artifacts = nil
	outcome.Err = failure
	outcome.Elapsed = o.clock.Since(start)
	o.logger.Warn("Run ended without completion",
		"execution_id", outcome.ExecutionID,
		"ticket_id", outcome.TicketID,
		"final_state", string(outcome.FinalState),
		"kind", string(failure.Kind),
		"reason", failure.Reason,
		"message", failure.Message,
	)
	return outcome
}
