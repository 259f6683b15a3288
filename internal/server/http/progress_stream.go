package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/deep-research-service/internal/temporal"
)

const (
	// sseQueryInterval is how often the workflow's progress query is polled.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType  string                     `json:"event_type"`
	ResearchID string                     `json:"research_id"`
	Progress   *temporal.WorkflowProgress `json:"progress,omitempty"`
	Message    string                     `json:"message"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// streamProgress handles GET /research/{researchID}/progress (SSE). An event is
// sent whenever the stage, the completed stages or the status change, and the
// stream ends once the run reaches a terminal status.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "researchID")

	current, err := s.workflows.Progress(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if isTerminalStatus(current.Status) {
		sendSSEEvent(w, flusher, terminalEvent(id, current, s.now()))
		return
	}

	sendSSEEvent(w, flusher, sseEvent{
		EventType:  "stream_started",
		ResearchID: id,
		Progress:   current,
		Message:    "progress stream started",
		Timestamp:  s.now(),
	})

	ctx := r.Context()
	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	last := current
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType:  "timeout",
				ResearchID: id,
				Message:    "stream max duration exceeded",
				Timestamp:  s.now(),
			})
			return

		case <-ticker.C:
			next, pollErr := s.workflows.Progress(ctx, id)
			if pollErr != nil {
				if temporal.IsWorkflowNotFound(pollErr) {
					sendSSEEvent(w, flusher, sseEvent{
						EventType:  "error",
						ResearchID: id,
						Message:    "workflow no longer available",
						Timestamp:  s.now(),
					})
					return
				}
				s.logger.Error().Err(pollErr).Str("session_id", id).Msg("failed to poll research progress")
				continue
			}

			if isTerminalStatus(next.Status) {
				sendSSEEvent(w, flusher, terminalEvent(id, next, s.now()))
				return
			}
			if !progressChanged(last, next) {
				continue
			}
			last = next
			sendSSEEvent(w, flusher, sseEvent{
				EventType:  "progress_update",
				ResearchID: id,
				Progress:   next,
				Message:    "stage: " + next.Stage,
				Timestamp:  s.now(),
			})
		}
	}
}

func terminalEvent(id string, p *temporal.WorkflowProgress, now time.Time) sseEvent {
	return sseEvent{
		EventType:  p.Status,
		ResearchID: id,
		Progress:   p,
		Message:    "research finished with status: " + p.Status,
		Timestamp:  now,
	}
}

func progressChanged(prev, next *temporal.WorkflowProgress) bool {
	return prev.Stage != next.Stage ||
		prev.Status != next.Status ||
		!slices.Equal(prev.CompletedStages, next.CompletedStages)
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}

// isTerminalStatus returns true if the workflow status is final.
func isTerminalStatus(status string) bool {
	switch status {
	case temporal.StatusCompleted, temporal.StatusStopped, temporal.StatusFailed, temporal.StatusCancelled:
		return true
	}
	return false
}
