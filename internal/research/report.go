package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/llm"
)

// continuePrompt asks the model to resume a truncated answer.
const continuePrompt = "Please continue from where you left off."

// GenerateFinalReport synthesizes the final report from every category report
// persisted for the session, including reports for categories no longer in the
// plan. A session with an empty plan skips the stage and returns an empty
// report. An empty model selects the configured report model.
func (e *Engine) GenerateFinalReport(ctx context.Context, s *domain.Session, mode domain.ReportMode, model string) (string, error) {
	if err := requireSession(s); err != nil {
		return "", err
	}
	if !mode.Valid() {
		return "", domain.NewValidationError("report_mode", "unknown report mode "+string(mode))
	}
	if model == "" {
		model = e.cfg.Models.Report
	}
	if Sanitize(model) == "" {
		return "", domain.NewValidationError("model", "model name has no usable characters for a path")
	}

	var content string
	err := e.runStage(ctx, s.ID, domain.StageFinal, func(ctx context.Context, logger zerolog.Logger) (map[string]any, error) {
		logger = logger.With().Str("mode", string(mode)).Str("model", model).Logger()

		if len(s.ResearchPlan) == 0 {
			logger.Info().Msg("research plan is empty, skipping final report")
			return map[string]any{"mode": string(mode), "model": model, "skipped": true}, nil
		}

		reports, err := e.readCategoryReports(ctx, s.ID, logger)
		if err != nil {
			return nil, err
		}
		if len(reports) == 0 {
			logger.Warn().Msg("no category reports persisted, writing final report from the brief alone")
		}

		prompt, err := e.finalPrompt(s, mode, reports)
		if err != nil {
			return nil, err
		}

		content, err = e.completeText(ctx, llm.Request{
			Operation: "final_report",
			Model:     model,
			Messages:  []llm.Message{{Role: llm.RoleSystem, Content: prompt}},
		}, logger)
		if err != nil {
			return nil, err
		}

		p := FinalReportPath(s.ID, model, mode)
		if err := e.store.SaveText(ctx, p, content); err != nil {
			return nil, fmt.Errorf("save final report %s: %w", p, err)
		}
		e.metrics.RecordFinalReport(string(mode))

		return map[string]any{
			"mode":    string(mode),
			"model":   model,
			"reports": len(reports),
			"path":    p,
		}, nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (e *Engine) finalPrompt(s *domain.Session, mode domain.ReportMode, reports []domain.CategoryReport) (string, error) {
	content, err := renderJSON(s.ResearchContent)
	if err != nil {
		return "", err
	}
	rendered, err := renderJSON(reports)
	if err != nil {
		return "", err
	}

	instructions := e.cfg.ReportInstructions
	if mode == domain.ReportModeWechat {
		instructions = e.cfg.WechatInstructions
	}
	return e.prompts.Render(finalPrompt(mode), PromptData{
		ResearchContent: content,
		Reports:         rendered,
		Language:        e.cfg.ReportLanguage,
		Instructions:    instructions,
	})
}

// readCategoryReports loads every category report found in the session
// directory. Unreadable reports are logged and skipped.
func (e *Engine) readCategoryReports(ctx context.Context, sessionID string, logger zerolog.Logger) ([]domain.CategoryReport, error) {
	files, err := e.store.List(ctx, sessionID, categoryReportSuffix)
	if err != nil {
		return nil, fmt.Errorf("list category reports: %w", err)
	}

	reports := make([]domain.CategoryReport, 0, len(files))
	for _, f := range files {
		var r domain.CategoryReport
		if err := e.store.LoadJSON(ctx, f, &r); err != nil {
			logger.Error().Err(err).Str("path", f).Msg("skipping unreadable category report")
			continue
		}
		reports = append(reports, r)
	}
	logger.Debug().Int("reports", len(reports)).Msg("category reports read")
	return reports, nil
}

// completeText runs a markdown completion. While the model reports that it
// stopped at its output limit, the partial answer is fed back with a request
// to continue, up to MaxContinuations rounds. Output is concatenated in order.
func (e *Engine) completeText(ctx context.Context, req llm.Request, logger zerolog.Logger) (string, error) {
	req.Format = llm.FormatText
	messages := append([]llm.Message(nil), req.Messages...)

	var out strings.Builder
	for round := 0; ; round++ {
		req.Messages = messages
		completion, err := e.llm.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		out.WriteString(completion.Content)

		if !completion.Truncated() {
			return out.String(), nil
		}
		if round >= e.cfg.MaxContinuations {
			e.metrics.RecordContinuationLimit()
			logger.Warn().
				Str("operation", req.Operation).
				Int("continuations", round).
				Int("length", out.Len()).
				Msg("output still truncated at continuation limit, keeping partial text")
			return out.String(), nil
		}

		e.metrics.RecordContinuation()
		logger.Info().
			Str("operation", req.Operation).
			Int("round", round+1).
			Msg("completion truncated, requesting continuation")
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: completion.Content},
			llm.Message{Role: llm.RoleUser, Content: continuePrompt},
		)
	}
}
