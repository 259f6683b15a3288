package research

import (
	"context"
	"fmt"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/storage"
)

// Artifacts reads what the pipeline has persisted for a session. It never
// calls a model or the search provider, so the API process can serve results
// without the credentials the stages need.
type Artifacts struct {
	store        storage.Store
	defaultModel string
}

// NewArtifacts reads from store. defaultModel names the final report looked up
// when a caller does not pick a model.
func NewArtifacts(store storage.Store, defaultModel string) *Artifacts {
	return &Artifacts{store: store, defaultModel: defaultModel}
}

// Session loads the session metadata.
func (a *Artifacts) Session(ctx context.Context, id string) (*domain.Session, error) {
	return loadSession(ctx, a.store, id)
}

// CategoryReports returns every persisted category report, ordered by file name.
func (a *Artifacts) CategoryReports(ctx context.Context, id string) ([]domain.CategoryReport, error) {
	if !ValidSessionID(id) {
		return nil, domain.NewValidationError("research_id", "invalid session id "+id)
	}
	files, err := a.store.List(ctx, id, categoryReportSuffix)
	if err != nil {
		return nil, fmt.Errorf("list category reports: %w", err)
	}
	reports := make([]domain.CategoryReport, 0, len(files))
	for _, f := range files {
		var r domain.CategoryReport
		if err := a.store.LoadJSON(ctx, f, &r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// Reference returns the aggregated reference document.
func (a *Artifacts) Reference(ctx context.Context, id string) (string, error) {
	if !ValidSessionID(id) {
		return "", domain.NewValidationError("research_id", "invalid session id "+id)
	}
	return a.store.LoadText(ctx, ReferencePath(id))
}

// FinalReport returns the final report written by model in mode. An empty
// model selects the default report model.
func (a *Artifacts) FinalReport(ctx context.Context, id string, mode domain.ReportMode, model string) (string, error) {
	if !ValidSessionID(id) {
		return "", domain.NewValidationError("research_id", "invalid session id "+id)
	}
	if !mode.Valid() {
		return "", domain.NewValidationError("report_mode", "unknown report mode "+string(mode))
	}
	if model == "" {
		model = a.defaultModel
	}
	return a.store.LoadText(ctx, FinalReportPath(id, model, mode))
}
