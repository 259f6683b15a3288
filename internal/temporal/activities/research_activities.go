package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/deep-research-service/internal/domain"
)

// Pipeline is the subset of research.Engine the activities drive.
type Pipeline interface {
	CreateWithID(ctx context.Context, id, topic string) (*domain.Session, error)
	Load(ctx context.Context, id string) (*domain.Session, error)
	ExecuteSearch(ctx context.Context, s *domain.Session) (int, error)
	GenerateCategoryReports(ctx context.Context, s *domain.Session) ([]domain.CategoryReport, error)
	GenerateReference(ctx context.Context, s *domain.Session) (string, error)
	GenerateFinalReport(ctx context.Context, s *domain.Session, mode domain.ReportMode, model string) (string, error)
}

// ResearchActivities provides one Temporal activity per pipeline stage.
// Methods on this struct are registered as Temporal activities via the worker.
type ResearchActivities struct {
	pipeline Pipeline
}

// NewResearchActivities creates ResearchActivities backed by pipeline.
func NewResearchActivities(pipeline Pipeline) *ResearchActivities {
	return &ResearchActivities{pipeline: pipeline}
}

// CreateSession translates, briefs and plans input.Topic and persists the
// session under input.SessionID.
func (a *ResearchActivities) CreateSession(ctx context.Context, input CreateSessionInput) (*SessionOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("creating research session", "sessionID", input.SessionID)

	s, err := a.pipeline.CreateWithID(ctx, input.SessionID, input.Topic)
	if err != nil {
		logger.Error("session creation failed", "sessionID", input.SessionID, "error", err)
		return nil, stageError(err)
	}
	return summarize(s), nil
}

// LoadSession checks that a persisted session is complete enough to resume.
func (a *ResearchActivities) LoadSession(ctx context.Context, input StageInput) (*SessionOutput, error) {
	s, err := a.pipeline.Load(ctx, input.SessionID)
	if err != nil {
		activity.GetLogger(ctx).Error("session load failed", "sessionID", input.SessionID, "error", err)
		return nil, stageError(err)
	}
	return summarize(s), nil
}

// ExecuteSearch runs every planned query and persists one record per query.
func (a *ResearchActivities) ExecuteSearch(ctx context.Context, input StageInput) (*SearchOutput, error) {
	s, err := a.pipeline.Load(ctx, input.SessionID)
	if err != nil {
		return nil, stageError(err)
	}

	n, err := a.pipeline.ExecuteSearch(ctx, s)
	if err != nil {
		activity.GetLogger(ctx).Error("search failed", "sessionID", input.SessionID, "records", n, "error", err)
		return nil, stageError(err)
	}
	return &SearchOutput{Records: n}, nil
}

// GenerateCategoryReports synthesizes one report per category. Failing
// categories are logged by the engine and left out of the output.
func (a *ResearchActivities) GenerateCategoryReports(ctx context.Context, input StageInput) (*CategoryReportsOutput, error) {
	s, err := a.pipeline.Load(ctx, input.SessionID)
	if err != nil {
		return nil, stageError(err)
	}

	reports, err := a.pipeline.GenerateCategoryReports(ctx, s)
	if err != nil {
		return nil, stageError(err)
	}

	out := &CategoryReportsOutput{Categories: make([]string, 0, len(reports))}
	for _, r := range reports {
		out.Categories = append(out.Categories, r.Category)
	}
	return out, nil
}

// GenerateReference writes the session's reference link list. Links are kept
// in plan order and repeated URLs are not merged.
func (a *ResearchActivities) GenerateReference(ctx context.Context, input StageInput) (*ReferenceOutput, error) {
	s, err := a.pipeline.Load(ctx, input.SessionID)
	if err != nil {
		return nil, stageError(err)
	}

	doc, err := a.pipeline.GenerateReference(ctx, s)
	if err != nil {
		return nil, stageError(err)
	}
	return &ReferenceOutput{Length: len(doc)}, nil
}

// GenerateFinalReport writes the final report in the requested mode.
func (a *ResearchActivities) GenerateFinalReport(ctx context.Context, input FinalReportInput) (*FinalReportOutput, error) {
	mode, err := domain.ParseReportMode(input.Mode)
	if err != nil {
		return nil, stageError(err)
	}

	s, err := a.pipeline.Load(ctx, input.SessionID)
	if err != nil {
		return nil, stageError(err)
	}

	report, err := a.pipeline.GenerateFinalReport(ctx, s, mode, input.Model)
	if err != nil {
		activity.GetLogger(ctx).Error("final report failed", "sessionID", input.SessionID, "mode", mode, "error", err)
		return nil, stageError(err)
	}
	return &FinalReportOutput{Mode: string(mode), Length: len(report)}, nil
}

func summarize(s *domain.Session) *SessionOutput {
	out := &SessionOutput{
		SessionID:    s.ID,
		EnglishTopic: s.EnglishTopic,
		Categories:   len(s.ResearchPlan),
	}
	for _, c := range s.ResearchPlan {
		out.Queries += len(c.Queries)
	}
	return out
}

// Error types attached to failed activities, visible to the workflow through
// temporal.ApplicationError.Type.
const (
	ErrTypeInvalidInput = "invalid_input"
	ErrTypeNotFound     = "not_found"
	ErrTypeLoad         = "load"
	ErrTypeParse        = "parse"
	ErrTypeTranslation  = "translation"
	ErrTypeService      = "service_unavailable"
	ErrTypeCorrupt      = "corrupt"
	ErrTypeCanceled     = "canceled"
	ErrTypeStage        = "stage_failed"
)

// stageError converts a pipeline error into a non-retryable application error.
func stageError(err error) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrLoad):
		return ErrTypeLoad
	case errors.Is(err, domain.ErrInvalidInput):
		return ErrTypeInvalidInput
	case errors.Is(err, domain.ErrNotFound):
		return ErrTypeNotFound
	case errors.Is(err, domain.ErrTranslation):
		return ErrTypeTranslation
	case errors.Is(err, domain.ErrParse):
		return ErrTypeParse
	case errors.Is(err, domain.ErrCorrupt):
		return ErrTypeCorrupt
	case errors.Is(err, domain.ErrServiceUnavailable):
		return ErrTypeService
	case errors.Is(err, context.Canceled):
		return ErrTypeCanceled
	default:
		return ErrTypeStage
	}
}
