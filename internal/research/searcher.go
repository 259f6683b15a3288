package research

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/observability"
)

// ExecuteSearch runs every query of the plan, in plan order, and persists each
// raw provider payload as a search record, replacing any earlier record for the
// same category and query. The first failed search aborts the stage. It returns
// the number of searches executed.
func (e *Engine) ExecuteSearch(ctx context.Context, s *domain.Session) (int, error) {
	if err := requireSession(s); err != nil {
		return 0, err
	}

	executed := 0
	err := e.runStage(ctx, s.ID, domain.StageSearch, func(ctx context.Context, logger zerolog.Logger) (map[string]any, error) {
		for _, cp := range s.ResearchPlan {
			if isBlank(cp.Category) {
				logger.Debug().Msg("skipping blank category")
				continue
			}
			for _, query := range cp.Queries {
				qlog := observability.WithCategoryContext(logger, cp.Category, query)
				if isBlank(query) {
					qlog.Debug().Msg("skipping blank query")
					continue
				}
				if Sanitize(query) == "" {
					qlog.Warn().Msg("skipping query with no usable characters for a path")
					continue
				}
				if err := e.searchOne(ctx, s.ID, cp.Category, query, qlog); err != nil {
					return map[string]any{"searches": executed}, err
				}
				executed++
			}
		}
		return map[string]any{"searches": executed}, nil
	})
	return executed, err
}

func (e *Engine) searchOne(ctx context.Context, sessionID, category, query string, logger zerolog.Logger) error {
	start := time.Now()
	record, err := e.search.Search(ctx, query, e.template)
	results := 0
	if record != nil {
		results = len(record.Results)
	}
	e.metrics.RecordSearch(e.template.Name, results, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("search category %q query %q: %w", category, query, err)
	}
	if record.Query == "" {
		record.Query = query
	}

	var payload any = record
	if len(record.Raw) > 0 {
		payload = record.Raw
	}
	p := SearchRecordPath(sessionID, category, query)
	if err := e.store.SaveJSON(ctx, p, payload); err != nil {
		return fmt.Errorf("save search record %s: %w", p, err)
	}
	logger.Debug().Int("results", results).Str("path", p).Msg("search record saved")
	return nil
}

// readCategoryResults loads every search record of a category and returns the
// hits that have a title, a body and a score above the threshold. Records that
// cannot be read are logged and skipped.
func (e *Engine) readCategoryResults(ctx context.Context, sessionID, category string, logger zerolog.Logger) ([]domain.Resource, error) {
	dir := CategoryDir(sessionID, category)
	files, err := e.store.List(ctx, dir, searchRecordSuffix)
	if err != nil {
		return nil, fmt.Errorf("list search records in %s: %w", dir, err)
	}

	var resources []domain.Resource
	dropped := 0
	for _, f := range files {
		var record domain.SearchRecord
		if err := e.store.LoadJSON(ctx, f, &record); err != nil {
			logger.Error().Err(err).Str("path", f).Msg("skipping unreadable search record")
			continue
		}
		for _, item := range record.Results {
			body := item.Body()
			if isBlank(item.Title) || isBlank(body) || item.Score <= e.cfg.ScoreThreshold {
				dropped++
				continue
			}
			resources = append(resources, domain.Resource{
				Title:   item.Title,
				URL:     item.URL,
				Content: body,
			})
		}
	}

	e.metrics.RecordResultsFiltered(len(resources), dropped)
	logger.Debug().
		Int("records", len(files)).
		Int("kept", len(resources)).
		Int("dropped", dropped).
		Msg("category results read")
	return resources, nil
}
