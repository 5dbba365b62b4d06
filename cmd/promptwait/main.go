package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptwait/promptwait/internal/shared/config"
	"github.com/promptwait/promptwait/internal/shared/logging"
	"github.com/promptwait/promptwait/pkg/await"
	"github.com/promptwait/promptwait/pkg/gateway"
)

// outcomeReport is the stdout shape: everything a scripted caller needs to
// decide what happened and where the files are.
type outcomeReport struct {
	FinalState  string                 `json:"final_state"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	TicketID    string                 `json:"ticket_id,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Message     string                 `json:"message"`
	ElapsedMs   int64                  `json:"elapsed_ms"`
	Artifacts   []await.ResultArtifact `json:"artifacts"`
}

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: promptwait.yaml in ./config or .)")
		graphPath  = flag.String("graph", "", "path to the job graph JSON file (required)")
		clientID   = flag.String("client-id", "", "correlation id; generated when empty")
		queue      = flag.Bool("queue", false, "submit through the gateway pre-queue using -priority")
		priority   = flag.Int("priority", 0, "pre-queue priority; higher is served sooner")
		artifacts  = flag.String("artifacts", "", "keep only artifacts whose filename matches this glob")
		timeout    = flag.Duration("timeout", 0, "override the overall run timeout")
	)
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "promptwait: %v\n", err)
		os.Exit(2)
	}
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	if *graphPath == "" {
		logger.Error("Missing required -graph flag")
		flag.Usage()
		os.Exit(2)
	}
	graph, err := os.ReadFile(*graphPath)
	if err != nil {
		logger.Fatal("Reading job graph", "path", *graphPath, "error", err.Error())
	}

	client, err := gateway.NewClient(cfg.Gateway, logger)
	if err != nil {
		logger.Fatal("Creating gateway client", "error", err.Error())
	}

	awaitCfg := cfg.Await
	if *artifacts != "" {
		awaitCfg.ArtifactGlob = *artifacts
	}
	if *timeout > 0 {
		awaitCfg.OverallTimeout = *timeout
	}
	awaitCfg.OnProgress = func(status gateway.ExecutionStatus) {
		args := []any{"execution_id", status.ExecutionID, "state", string(status.State)}
		if status.Progress != nil {
			args = append(args, "progress", *status.Progress)
		}
		if status.Message != "" {
			args = append(args, "message", status.Message)
		}
		logger.Info("Execution progress", args...)
	}

	job := gateway.JobSubmission{Graph: graph, ClientID: *clientID}
	if *queue {
		job.Priority = priority
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome := await.NewOrchestrator(client, logger).Run(ctx, job, awaitCfg)

	report := outcomeReport{
		FinalState:  string(outcome.FinalState),
		ExecutionID: outcome.ExecutionID,
		TicketID:    outcome.TicketID,
		Reason:      outcome.Reason(),
		Message:     outcome.Message(),
		ElapsedMs:   outcome.Elapsed.Milliseconds(),
		Artifacts:   outcome.Artifacts,
	}
	if report.Artifacts == nil {
		report.Artifacts = []await.ResultArtifact{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatal("Writing outcome", "error", err.Error())
	}

	if !outcome.Done() {
		os.Exit(1)
	}
}
