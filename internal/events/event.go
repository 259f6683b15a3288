// Package events publishes research pipeline stage events.
//
// Events are informational: a failed publish is logged and counted, never
// propagated into the pipeline.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state reported by a stage event.
type Status string

// Stage event statuses.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageEvent describes a transition of one pipeline stage for one session.
type StageEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	Source     string         `json:"source"`
	SessionID  string         `json:"session_id"`
	Stage      string         `json:"stage"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	SessionID string
	Stage     string
	Status    Status
	Err       error
	Details   map[string]any
	TraceID   string
}

// Emitter builds StageEvents enriched with service context.
type Emitter struct {
	config EmitterConfig
	now    func() time.Time
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = "deep-research-service"
	}
	return &Emitter{config: config, now: time.Now}
}

// Emit creates a StageEvent from the given parameters.
func (e *Emitter) Emit(params EmitParams) (StageEvent, error) {
	if params.SessionID == "" {
		return StageEvent{}, fmt.Errorf("session_id is required")
	}
	if params.Stage == "" {
		return StageEvent{}, fmt.Errorf("stage is required")
	}
	switch params.Status {
	case StatusStarted, StatusCompleted, StatusFailed:
	default:
		return StageEvent{}, fmt.Errorf("invalid status %q", params.Status)
	}

	event := StageEvent{
		EventID:    uuid.NewString(),
		EventType:  fmt.Sprintf("research.%s.%s", params.Stage, params.Status),
		Source:     e.config.ServiceName,
		SessionID:  params.SessionID,
		Stage:      params.Stage,
		Status:     params.Status,
		Details:    params.Details,
		TraceID:    params.TraceID,
		OccurredAt: e.now().UTC(),
	}
	if params.Err != nil {
		event.Error = params.Err.Error()
	}
	return event, nil
}
