package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/helixir/deep-research-service/internal/observability"
)

// Signal and query names understood by the research workflow. They live here
// so the HTTP layer can reach a running workflow without importing workflows.
const (
	// SignalCancel cancels the stage in flight and fails the workflow.
	SignalCancel = "cancel"

	// SignalStop ends the workflow after the stage in flight completes.
	SignalStop = "stop"

	// QueryProgress returns a WorkflowProgress snapshot.
	QueryProgress = "progress"
)

// ResearchWorkflowName is the registered name of the research workflow.
const ResearchWorkflowName = "DeepResearchWorkflow"

const (
	// DefaultWorkflowExecutionTimeout bounds one research run end to end.
	DefaultWorkflowExecutionTimeout = 4 * time.Hour

	// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
	DefaultHealthCheckTimeout = 5 * time.Second
)

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a run for the same session is in flight.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrQueryFailed indicates the workflow query failed.
	ErrQueryFailed = errors.New("query failed")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNamespaceNotFound indicates the namespace does not exist.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrInvalidArgument indicates the server rejected a request argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// TemporalError wraps a Temporal error with the operation and workflow it concerns.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	RunID      string
	Err        error
}

func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s", e.WorkflowID)
		if e.RunID != "" {
			msg += fmt.Sprintf(", runID=%s", e.RunID)
		}
		msg += "]"
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's Kind.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrapTemporalError maps an SDK or service error onto one of the sentinels above.
func wrapTemporalError(op string, err error, workflowID, runID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{Op: op, WorkflowID: workflowID, RunID: runID, Err: err}

	var (
		notFound          *serviceerror.NotFound
		alreadyStarted    *serviceerror.WorkflowExecutionAlreadyStarted
		namespaceNotFound *serviceerror.NamespaceNotFound
		invalidArgument   *serviceerror.InvalidArgument
		deadlineExceeded  *serviceerror.DeadlineExceeded
		queryFailed       *serviceerror.QueryFailed
	)

	switch {
	case errors.As(err, &notFound):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStarted):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &namespaceNotFound):
		te.Kind = ErrNamespaceNotFound
	case errors.As(err, &invalidArgument):
		te.Kind = ErrInvalidArgument
	case errors.As(err, &deadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrDeadlineExceeded
	case errors.As(err, &queryFailed):
		te.Kind = ErrQueryFailed
	case errors.Is(err, context.Canceled):
		te.Kind = ErrClientClosed
	default:
		te.Kind = ErrConnectionFailed
	}

	return te
}

// IsWorkflowNotFound checks if the error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted checks if the error indicates a workflow already started.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the task queue research workflows are started on.
	TaskQueue string

	// HealthCheckTimeout defaults to DefaultHealthCheckTimeout.
	HealthCheckTimeout time.Duration
}

// NewClient dials the Temporal server, routing SDK logs through logger.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// ResearchWorkflowInput starts or resumes a research session. When Topic is set
// the workflow plans a new session under SessionID, otherwise it loads the
// persisted session with that ID.
type ResearchWorkflowInput struct {
	SessionID string `json:"session_id"`
	Topic     string `json:"topic,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Model     string `json:"model,omitempty"`
	// Stage limits a run on an existing session: empty runs the final report
	// only and "all" runs every stage.
	Stage string `json:"stage,omitempty"`
}

// WorkflowProgress is the answer to QueryProgress.
type WorkflowProgress struct {
	SessionID       string   `json:"session_id"`
	Status          string   `json:"status"`
	Stage           string   `json:"stage"`
	CompletedStages []string `json:"completed_stages"`
	SearchRecords   int      `json:"search_records"`
	CategoryReports int      `json:"category_reports"`
	ReportLength    int      `json:"report_length"`
	Error           string   `json:"error,omitempty"`
}

// StopSignal is the payload of SignalStop.
type StopSignal struct {
	Reason string `json:"reason"`
}

// Workflow progress statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// WorkflowID returns the workflow ID used for a session. One session has at
// most one run in flight.
func WorkflowID(sessionID string) string {
	return "research-" + sessionID
}

// WorkflowDescription contains information about a workflow execution.
type WorkflowDescription struct {
	WorkflowID string     `json:"workflow_id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	CloseTime  *time.Time `json:"close_time,omitempty"`
}

// ResearchClient starts and inspects research workflows.
type ResearchClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	healthCheckTimeout time.Duration
	closed             bool
}

// NewResearchClient wraps c.
func NewResearchClient(c client.Client, cfg ClientConfig) *ResearchClient {
	healthTimeout := cfg.HealthCheckTimeout
	if healthTimeout == 0 {
		healthTimeout = DefaultHealthCheckTimeout
	}
	return &ResearchClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		healthCheckTimeout: healthTimeout,
	}
}

// Close closes the underlying Temporal client connection.
func (c *ResearchClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *ResearchClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Health checks the connection health to the Temporal server.
func (c *ResearchClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "", "")
	}
	return nil
}

// StartResearch starts a research workflow for input.SessionID.
func (c *ResearchClient) StartResearch(ctx context.Context, input ResearchWorkflowInput) (workflowID, runID string, err error) {
	workflowID = WorkflowID(input.SessionID)
	if c.isClosed() {
		return "", "", &TemporalError{Op: "StartResearch", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: DefaultWorkflowExecutionTimeout,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, ResearchWorkflowName, input)
	if err != nil {
		return "", "", wrapTemporalError("StartResearch", err, workflowID, "")
	}
	return workflowID, run.GetRunID(), nil
}

// Progress queries the latest run for sessionID.
func (c *ResearchClient) Progress(ctx context.Context, sessionID string) (*WorkflowProgress, error) {
	workflowID := WorkflowID(sessionID)
	if c.isClosed() {
		return nil, &TemporalError{Op: "Progress", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	resp, err := c.client.QueryWorkflow(ctx, workflowID, "", QueryProgress)
	if err != nil {
		return nil, wrapTemporalError("Progress", err, workflowID, "")
	}

	var progress WorkflowProgress
	if err := resp.Get(&progress); err != nil {
		return nil, &TemporalError{
			Op:         "Progress",
			Kind:       ErrQueryFailed,
			WorkflowID: workflowID,
			Err:        fmt.Errorf("decode query result: %w", err),
		}
	}
	return &progress, nil
}

// Stop asks the run for sessionID to finish after its current stage.
func (c *ResearchClient) Stop(ctx context.Context, sessionID, reason string) error {
	return c.signal(ctx, "Stop", sessionID, SignalStop, StopSignal{Reason: reason})
}

// Cancel interrupts the run for sessionID.
func (c *ResearchClient) Cancel(ctx context.Context, sessionID string) error {
	return c.signal(ctx, "Cancel", sessionID, SignalCancel, nil)
}

func (c *ResearchClient) signal(ctx context.Context, op, sessionID, name string, arg any) error {
	workflowID := WorkflowID(sessionID)
	if c.isClosed() {
		return &TemporalError{Op: op, Kind: ErrClientClosed, WorkflowID: workflowID}
	}
	if err := c.client.SignalWorkflow(ctx, workflowID, "", name, arg); err != nil {
		return wrapTemporalError(op, err, workflowID, "")
	}
	return nil
}

// Describe returns execution details of the latest run for sessionID.
func (c *ResearchClient) Describe(ctx context.Context, sessionID string) (*WorkflowDescription, error) {
	workflowID := WorkflowID(sessionID)
	if c.isClosed() {
		return nil, &TemporalError{Op: "Describe", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	resp, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, wrapTemporalError("Describe", err, workflowID, "")
	}

	info := resp.GetWorkflowExecutionInfo()
	desc := &WorkflowDescription{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     info.GetStatus().String(),
		StartTime:  info.GetStartTime().AsTime(),
	}
	if info.GetCloseTime() != nil {
		closeTime := info.GetCloseTime().AsTime()
		desc.CloseTime = &closeTime
	}
	return desc, nil
}

// TaskQueue returns the configured task queue name.
func (c *ResearchClient) TaskQueue() string {
	return c.taskQueue
}
