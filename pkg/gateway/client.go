package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/promptwait/promptwait/internal/shared/logging"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryMaxTries  = 3
	DefaultRetryBaseDelay = 200 * time.Millisecond
	DefaultRetryMaxDelay  = 2 * time.Second
)

// Config holds the connection settings for one gateway.
type Config struct {
	// BaseURL is the gateway root, e.g. "http://gateway:8188".
	BaseURL string `mapstructure:"base_url"`

	// Username and Password enable HTTP basic auth for gateways fronted by a
	// reverse proxy. Both empty disables auth.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RetryMaxTries bounds in-place retries of transient failures on poll
	// calls. The initial attempt counts toward the total.
	RetryMaxTries  int           `mapstructure:"retry_max_tries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryMaxTries <= 0 {
		c.RetryMaxTries = DefaultRetryMaxTries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return c
}

// Client talks to the gateway over its four fixed routes. It is safe for
// concurrent use; all state is immutable after construction.
type Client struct {
	base   *url.URL
	httpc  *http.Client
	cfg    Config
	logger logging.Logger
}

func NewClient(cfg Config, logger logging.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}
	return &Client{
		base:   base,
		httpc:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Submit posts the job graph. With a priority set, the gateway parks the job
// in its pre-queue and answers with a ticket; without one, it assigns a worker
// immediately and answers with an execution id. Submission failures are fatal
// and never retried here.
func (c *Client) Submit(ctx context.Context, job JobSubmission) (SubmitResult, error) {
	if len(bytes.TrimSpace(job.Graph)) == 0 {
		return SubmitResult{}, &SubmissionError{StatusCode: http.StatusBadRequest, Reason: "job graph is empty"}
	}
	clientID := job.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	req := submitRequest{Job: job.Graph, ClientID: clientID, Priority: job.Priority}

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/jobs", req, &resp, false); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return SubmitResult{}, &SubmissionError{StatusCode: apiErr.StatusCode, Reason: apiErr.Message}
		}
		return SubmitResult{}, err
	}

	// The discriminant is which identifier the boundary returned. Both or
	// neither is a protocol violation.
	switch {
	case resp.ExecutionID != "" && resp.TicketID != "":
		return SubmitResult{}, fmt.Errorf("ambiguous submit response: both execution_id %q and ticket_id %q", resp.ExecutionID, resp.TicketID)
	case resp.ExecutionID != "":
		return SubmitResult{
			Handle:        &ExecutionHandle{ExecutionID: resp.ExecutionID, WorkerRef: resp.WorkerRef},
			QueuePosition: resp.QueuePosition,
		}, nil
	case resp.TicketID != "":
		status := TicketQueued
		if resp.Status != "" {
			parsed, err := ParseTicketStatus(resp.Status)
			if err != nil {
				return SubmitResult{}, err
			}
			status = parsed
		}
		return SubmitResult{Ticket: &QueueTicket{TicketID: resp.TicketID, Status: status}}, nil
	}
	return SubmitResult{}, errors.New("submit response carried neither execution_id nor ticket_id")
}

// GetTicket fetches the current state of a pre-queue ticket. A 404 surfaces as
// an *APIError the caller can detect with IsNotFound.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (QueueTicket, error) {
	var resp ticketResponse
	path := "/api/tickets/" + url.PathEscape(ticketID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return QueueTicket{}, err
	}
	status, err := ParseTicketStatus(resp.Status)
	if err != nil {
		return QueueTicket{}, err
	}
	return QueueTicket{
		TicketID:    resp.TicketID,
		Status:      status,
		ExecutionID: resp.ExecutionID,
		WorkerRef:   resp.WorkerRef,
	}, nil
}

// GetStatus fetches one status observation for an execution.
func (c *Client) GetStatus(ctx context.Context, executionID string) (ExecutionStatus, error) {
	var resp statusResponse
	path := "/api/executions/" + url.PathEscape(executionID) + "/status"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return ExecutionStatus{}, err
	}
	state, err := ParseState(resp.State)
	if err != nil {
		return ExecutionStatus{}, err
	}
	return ExecutionStatus{
		ExecutionID: resp.ExecutionID,
		State:       state,
		Progress:    resp.Progress,
		Message:     resp.Message,
	}, nil
}

// GetResult fetches the raw result document for a completed execution. An
// empty or missing body is a valid zero-artifact result, not an error.
func (c *Client) GetResult(ctx context.Context, executionID string) (ResultDocument, error) {
	var doc ResultDocument
	path := "/api/executions/" + url.PathEscape(executionID) + "/result"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &doc, true); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = ResultDocument{}
	}
	return doc, nil
}

// doJSON performs one boundary call, optionally retrying transient failures
// (connection errors, 5xx) in place with bounded exponential backoff.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, retryable bool) error {
	attempt := 0
	op := func() error {
		attempt++
		err := c.doOnce(ctx, method, path, in, out)
		if err == nil {
			return nil
		}
		if !retryable || !IsTemporary(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Transient gateway error, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"error", err.Error(),
		)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxInterval = c.cfg.RetryMaxDelay
	bo.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.RetryMaxTries-1)), ctx))
}

func (c *Client) doOnce(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" || c.cfg.Password != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// errorMessage pulls a display-ready detail out of an error body, falling back
// to the raw body when it is not the structured shape.
func errorMessage(payload []byte) string {
	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(payload))
}
