package research

import (
	"context"
	"fmt"

	"github.com/helixir/deep-research-service/internal/domain"
)

// Execute runs search, category synthesis and reference aggregation in order.
// Only a search failure stops it.
func (e *Engine) Execute(ctx context.Context, s *domain.Session) error {
	if _, err := e.ExecuteSearch(ctx, s); err != nil {
		return err
	}
	if _, err := e.GenerateCategoryReports(ctx, s); err != nil {
		return err
	}
	if _, err := e.GenerateReference(ctx, s); err != nil {
		return err
	}
	return nil
}

// StageAll selects every stage in RunRequest.Stage.
const StageAll = "all"

// RunRequest describes one invocation of the pipeline. Exactly one of Topic and
// SessionID must be set.
type RunRequest struct {
	Topic     string
	SessionID string
	Mode      domain.ReportMode
	// Model overrides the final report model.
	Model string
	// Stage limits a run on an existing session to one stage. Empty means
	// the final report only, StageAll means every stage.
	Stage string
}

// RunResult reports what a Run produced.
type RunResult struct {
	Session *domain.Session
	// Report is the final report, or the reference document when only the
	// reference stage ran.
	Report string
}

// Run is the command entry point. A topic creates a session, executes it and
// writes the final report. A session ID loads the session and runs the
// requested stage, which defaults to the final report.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	hasTopic := !isBlank(req.Topic)
	hasID := req.SessionID != ""
	switch {
	case hasTopic && hasID:
		return nil, domain.NewValidationError("topic", "topic and research id are mutually exclusive")
	case !hasTopic && !hasID:
		return nil, domain.NewValidationError("topic", "either a topic or a research id is required")
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.ReportModeResearch
	}
	if !mode.Valid() {
		return nil, domain.NewValidationError("report_mode", "unknown report mode "+string(mode))
	}

	switch req.Stage {
	case "", StageAll, string(domain.StageSearch), string(domain.StageReports), string(domain.StageReference), string(domain.StageFinal):
	default:
		return nil, domain.NewValidationError("stage", fmt.Sprintf("unknown stage %q", req.Stage))
	}

	if hasTopic {
		if req.Stage != "" && req.Stage != StageAll {
			return nil, domain.NewValidationError("stage", "a new topic always runs every stage")
		}
		s, err := e.Create(ctx, req.Topic)
		if err != nil {
			return nil, err
		}
		if err := e.Execute(ctx, s); err != nil {
			return &RunResult{Session: s}, err
		}
		report, err := e.GenerateFinalReport(ctx, s, mode, req.Model)
		return &RunResult{Session: s, Report: report}, err
	}

	s, err := e.Load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	result := &RunResult{Session: s}

	switch req.Stage {
	case "", string(domain.StageFinal):
	case StageAll:
		if err := e.Execute(ctx, s); err != nil {
			return result, err
		}
	case string(domain.StageSearch):
		_, err := e.ExecuteSearch(ctx, s)
		return result, err
	case string(domain.StageReports):
		_, err := e.GenerateCategoryReports(ctx, s)
		return result, err
	case string(domain.StageReference):
		result.Report, err = e.GenerateReference(ctx, s)
		return result, err
	}

	result.Report, err = e.GenerateFinalReport(ctx, s, mode, req.Model)
	return result, err
}
