package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/temporal"
)

// Research response types for JSON serialization.

type startResearchResponse struct {
	ResearchID string    `json:"research_id"`
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Stages     []string  `json:"stages"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
}

type sessionResponse struct {
	ResearchID      string                  `json:"research_id"`
	Topic           string                  `json:"topic"`
	EnglishTopic    string                  `json:"english_topic"`
	ResearchContent *domain.ResearchContent `json:"research_content"`
	Categories      []categoryResponse      `json:"categories"`
	QueryCount      int                     `json:"query_count"`
}

type categoryResponse struct {
	Category string   `json:"category"`
	Goal     string   `json:"goal"`
	Queries  []string `json:"queries"`
}

type statusResponse struct {
	ResearchID string                        `json:"research_id"`
	Workflow   *temporal.WorkflowDescription `json:"workflow,omitempty"`
	Progress   *temporal.WorkflowProgress    `json:"progress,omitempty"`
}

type categoryReportsResponse struct {
	ResearchID string                  `json:"research_id"`
	Reports    []domain.CategoryReport `json:"reports"`
	TotalCount int                     `json:"total_count"`
}

type signalResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func sessionToResponse(s *domain.Session) sessionResponse {
	resp := sessionResponse{
		ResearchID:      s.ID,
		Topic:           s.Topic,
		EnglishTopic:    s.EnglishTopic,
		ResearchContent: s.ResearchContent,
		Categories:      make([]categoryResponse, len(s.ResearchPlan)),
	}
	for i, c := range s.ResearchPlan {
		resp.Categories[i] = categoryResponse{Category: c.Category, Goal: c.Goal, Queries: c.Queries}
		resp.QueryCount += len(c.Queries)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	// Best-effort; headers already sent.
	_ = enc.Encode(v)
}

// writeMarkdown writes a markdown document.
func writeMarkdown(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain and temporal errors to HTTP status codes. Internal
// error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "research is already running")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrLoad):
		writeError(w, http.StatusUnprocessableEntity, "research session is incomplete")
	case errors.Is(err, domain.ErrCorrupt):
		writeError(w, http.StatusInternalServerError, "stored artifact is corrupt")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	case errors.Is(err, domain.ErrServiceUnavailable),
		errors.Is(err, temporal.ErrConnectionFailed),
		errors.Is(err, temporal.ErrClientClosed),
		errors.Is(err, temporal.ErrDeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
