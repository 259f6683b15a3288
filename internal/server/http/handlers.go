package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/observability"
	"github.com/helixir/deep-research-service/internal/research"
	"github.com/helixir/deep-research-service/internal/temporal"
	"github.com/helixir/deep-research-service/internal/temporal/workflows"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// startResearchRequest is the JSON request body for starting a research run.
// A topic plans a new session; a research_id resumes an existing one.
type startResearchRequest struct {
	Topic      string `json:"topic" validate:"required_without=ResearchID,excluded_with=ResearchID,max=10000"`
	ResearchID string `json:"research_id"`
	Mode       string `json:"report_mode" validate:"omitempty,oneof=research detailed wechat"`
	Model      string `json:"model" validate:"omitempty,max=200"`
	Stage      string `json:"stage" validate:"omitempty,oneof=all search reports reference final"`
}

// stopResearchRequest is the optional JSON request body for stopping a run.
type stopResearchRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// startResearch handles POST /research.
func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startResearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	req.ResearchID = strings.TrimSpace(req.ResearchID)
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))

	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Mode == "" {
		req.Mode = string(s.defaultMode)
	}

	input := temporal.ResearchWorkflowInput{
		Topic: req.Topic,
		Mode:  req.Mode,
		Model: req.Model,
		Stage: req.Stage,
	}
	if req.Topic != "" {
		input.SessionID = research.NewSessionID(s.now())
	} else {
		if !research.ValidSessionID(req.ResearchID) {
			writeError(w, http.StatusBadRequest, "research_id is malformed")
			return
		}
		// Resuming requires complete metadata; fail here rather than in the workflow.
		if _, err := s.artifacts.Session(ctx, req.ResearchID); err != nil {
			writeDomainError(w, err)
			return
		}
		input.SessionID = req.ResearchID
	}

	stages, err := workflows.PlanStages(input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	workflowID, runID, err := s.workflows.StartResearch(ctx, input)
	if err != nil {
		logger := observability.LoggerFromContext(ctx, s.logger)
		logger.Error().Err(err).
			Str("session_id", input.SessionID).
			Msg("failed to start research workflow")
		writeDomainError(w, err)
		return
	}

	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = string(st)
	}

	message := "research started"
	if req.Topic == "" {
		message = "research resumed"
	}
	writeJSON(w, http.StatusAccepted, startResearchResponse{
		ResearchID: input.SessionID,
		WorkflowID: workflowID,
		RunID:      runID,
		Status:     temporal.StatusRunning,
		Stages:     names,
		CreatedAt:  s.now().UTC(),
		Message:    message,
	})
}

// getSession handles GET /research/{researchID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.artifacts.Session(r.Context(), chi.URLParam(r, "researchID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(session))
}

// getStatus handles GET /research/{researchID}/status. It combines the
// execution description with the workflow's progress query.
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "researchID")

	desc, err := s.workflows.Describe(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := statusResponse{ResearchID: id, Workflow: desc}
	progress, err := s.workflows.Progress(ctx, id)
	if err != nil {
		// A closed run whose history was archived cannot be queried.
		logger := observability.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Msg("progress query failed")
	} else {
		resp.Progress = progress
	}
	writeJSON(w, http.StatusOK, resp)
}

// getCategoryReports handles GET /research/{researchID}/reports.
func (s *Server) getCategoryReports(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "researchID")
	reports, err := s.artifacts.CategoryReports(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryReportsResponse{
		ResearchID: id,
		Reports:    reports,
		TotalCount: len(reports),
	})
}

// getReference handles GET /research/{researchID}/reference.
func (s *Server) getReference(w http.ResponseWriter, r *http.Request) {
	doc, err := s.artifacts.Reference(r.Context(), chi.URLParam(r, "researchID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeMarkdown(w, doc)
}

// getFinalReport handles GET /research/{researchID}/final?mode=&model=.
func (s *Server) getFinalReport(w http.ResponseWriter, r *http.Request) {
	mode := s.defaultMode
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, err := domain.ParseReportMode(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		mode = parsed
	}

	report, err := s.artifacts.FinalReport(r.Context(), chi.URLParam(r, "researchID"), mode, r.URL.Query().Get("model"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeMarkdown(w, report)
}

// stopResearch handles POST /research/{researchID}/stop. The run ends after
// the stage in flight completes.
func (s *Server) stopResearch(w http.ResponseWriter, r *http.Request) {
	var req stopResearchRequest
	if r.Body != nil {
		defer r.Body.Close()
		if r.ContentLength != 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
			if err == nil && len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					writeError(w, http.StatusBadRequest, "invalid JSON request body")
					return
				}
			}
		}
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := s.workflows.Stop(r.Context(), chi.URLParam(r, "researchID"), req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signalResponse{Success: true, Message: "stop requested"})
}

// cancelResearch handles POST /research/{researchID}/cancel. The stage in
// flight is interrupted.
func (s *Server) cancelResearch(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Cancel(r.Context(), chi.URLParam(r, "researchID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, signalResponse{Success: true, Message: "cancellation requested"})
}

// validationMessage renders the first validator failure without echoing the
// rejected value.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := jsonFieldName(fe.Field())
	switch fe.Tag() {
	case "required_without":
		return "either topic or research_id is required"
	case "excluded_with":
		return "topic and research_id are mutually exclusive"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func jsonFieldName(field string) string {
	switch field {
	case "ResearchID":
		return "research_id"
	case "Mode":
		return "report_mode"
	default:
		return strings.ToLower(field)
	}
}
