package research

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/llm"
	"github.com/helixir/deep-research-service/internal/observability"
)

// GenerateCategoryReports synthesizes one report per plan category from its
// filtered search results. A category that fails is logged and left out; the
// returned slice holds only the reports that were written.
func (e *Engine) GenerateCategoryReports(ctx context.Context, s *domain.Session) ([]domain.CategoryReport, error) {
	if err := requireSession(s); err != nil {
		return nil, err
	}

	reports := []domain.CategoryReport{}
	err := e.runStage(ctx, s.ID, domain.StageReports, func(ctx context.Context, logger zerolog.Logger) (map[string]any, error) {
		failed := 0
		for _, cp := range s.ResearchPlan {
			if isBlank(cp.Category) || Sanitize(cp.Category) == "" {
				continue
			}
			clog := observability.WithCategoryContext(logger, cp.Category, "")

			report, err := e.categoryReport(ctx, s, cp.Category, clog)
			e.metrics.RecordCategoryReport(err)
			if err != nil {
				failed++
				clog.Error().Err(err).Msg("category report failed, skipping")
				continue
			}
			reports = append(reports, *report)
			clog.Info().Int("length", len(report.Report)).Msg("category report saved")
		}
		return map[string]any{"reports": len(reports), "failed": failed}, nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (e *Engine) categoryReport(ctx context.Context, s *domain.Session, category string, logger zerolog.Logger) (*domain.CategoryReport, error) {
	resources, err := e.readCategoryResults(ctx, s.ID, category, logger)
	if err != nil {
		return nil, err
	}

	content, err := renderJSON(s.ResearchContent)
	if err != nil {
		return nil, err
	}
	if resources == nil {
		resources = []domain.Resource{}
	}
	rendered, err := renderJSON(resources)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompts.Render(PromptCategoryReport, PromptData{
		ResearchContent: content,
		Category:        category,
		Resources:       rendered,
		Language:        e.cfg.ReportLanguage,
	})
	if err != nil {
		return nil, err
	}

	text, err := e.completeText(ctx, llm.Request{
		Operation: PromptCategoryReport,
		Model:     e.cfg.Models.Long,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, logger)
	if err != nil {
		return nil, err
	}

	report := &domain.CategoryReport{Category: category, Report: text}
	p := CategoryReportPath(s.ID, category)
	if err := e.store.SaveJSON(ctx, p, report); err != nil {
		return nil, fmt.Errorf("save category report %s: %w", p, err)
	}
	return report, nil
}
