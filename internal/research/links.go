package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/observability"
)

const referenceHeader = "## Reference\n\n"

// GenerateReference collects a markdown link for every qualifying search hit,
// in plan order, and persists them as the session's reference document. A
// category whose results cannot be read contributes no links.
func (e *Engine) GenerateReference(ctx context.Context, s *domain.Session) (string, error) {
	if err := requireSession(s); err != nil {
		return "", err
	}

	var doc string
	err := e.runStage(ctx, s.ID, domain.StageReference, func(ctx context.Context, logger zerolog.Logger) (map[string]any, error) {
		var links []string
		for _, cp := range s.ResearchPlan {
			if isBlank(cp.Category) || Sanitize(cp.Category) == "" {
				continue
			}
			clog := observability.WithCategoryContext(logger, cp.Category, "")
			resources, err := e.readCategoryResults(ctx, s.ID, cp.Category, clog)
			if err != nil {
				clog.Error().Err(err).Msg("reading category results failed, no links added")
				continue
			}
			for _, r := range resources {
				links = append(links, fmt.Sprintf("[%s](%s)", r.Title, r.URL))
			}
		}

		doc = formatReference(links)
		if err := e.store.SaveText(ctx, ReferencePath(s.ID), doc); err != nil {
			return nil, fmt.Errorf("save reference: %w", err)
		}
		e.metrics.RecordReferenceLinks(len(links))
		return map[string]any{"links": len(links)}, nil
	})
	if err != nil {
		return "", err
	}
	return doc, nil
}

func formatReference(links []string) string {
	var b strings.Builder
	b.WriteString(referenceHeader)
	for i, link := range links {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(link)
	}
	return b.String()
}
