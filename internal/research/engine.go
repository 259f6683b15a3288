// Package research implements the deep research pipeline: plan generation,
// web search, per-category synthesis, reference aggregation and the final
// report. Every stage reads and writes its state through a storage.Store keyed
// by session ID, so any stage can be re-run against a reloaded session.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/events"
	"github.com/helixir/deep-research-service/internal/llm"
	"github.com/helixir/deep-research-service/internal/observability"
	"github.com/helixir/deep-research-service/internal/storage"
	"github.com/helixir/deep-research-service/internal/websearch"
)

// Models names the model used for each tier of the pipeline.
type Models struct {
	// Smart drafts the research brief and plan.
	Smart string `validate:"required"`
	// Normal translates the topic.
	Normal string `validate:"required"`
	// Long synthesizes category reports over large contexts.
	Long string `validate:"required"`
	// Report is the default model for final reports.
	Report string `validate:"required"`
}

// Config holds pipeline tuning parameters.
type Config struct {
	Models Models
	// ScoreThreshold is the exclusive lower bound a search hit's score must
	// exceed to be used for synthesis and references.
	ScoreThreshold float64 `validate:"gte=0,lte=1"`
	// MaxContinuations caps the continuation rounds issued for a truncated report.
	MaxContinuations int `validate:"gte=0"`
	// ReportLanguage is the language synthesized reports are written in.
	ReportLanguage string
	// SearchTemplate names the websearch template used by the search stage.
	SearchTemplate string
	// ReportInstructions is added to research and detailed final report prompts.
	ReportInstructions string
	// WechatInstructions is added to wechat final report prompts.
	WechatInstructions string
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Models: Models{
			Smart:  "deepseek/deepseek-r1",
			Normal: "deepseek/deepseek-r1-distill-llama-70b",
			Long:   "google/gemini-2.0-flash-001",
			Report: "google/gemini-2.0-pro-exp-02-05:free",
		},
		ScoreThreshold:   0.6,
		MaxContinuations: 5,
		ReportLanguage:   "Chinese",
		SearchTemplate:   websearch.TemplateAdvanced,
	}
}

// Dependencies are the collaborators an Engine is built from.
type Dependencies struct {
	LLM    llm.Completer
	Search websearch.Searcher
	Store  storage.Store
	// Prompts defaults to DefaultPrompts when nil.
	Prompts *Prompts
	// Events defaults to a NopPublisher when nil.
	Events events.Publisher
	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Engine runs the research pipeline stages.
type Engine struct {
	cfg      Config
	template websearch.Template

	llm     llm.Completer
	search  websearch.Searcher
	store   storage.Store
	prompts *Prompts
	events  events.Publisher
	emitter *events.Emitter
	metrics *observability.Metrics
	logger  zerolog.Logger

	now func() time.Time
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm completer is required")
	}
	if deps.Search == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid research config: %w", err)
	}

	if cfg.SearchTemplate == "" {
		cfg.SearchTemplate = websearch.TemplateAdvanced
	}
	tmpl, err := websearch.LookupTemplate(cfg.SearchTemplate)
	if err != nil {
		return nil, err
	}
	if cfg.ReportLanguage == "" {
		cfg.ReportLanguage = "Chinese"
	}

	prompts := deps.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Engine{
		cfg:      cfg,
		template: tmpl,
		llm:      deps.LLM,
		search:   deps.Search,
		store:    deps.Store,
		prompts:  prompts,
		events:   publisher,
		emitter:  events.NewEmitter(events.EmitterConfig{}),
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "research").Logger(),
		now:      time.Now,
	}, nil
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// stageFunc runs the body of a stage and returns details for the completion event.
type stageFunc func(ctx context.Context, logger zerolog.Logger) (map[string]any, error)

// runStage wraps a stage body with a span, metrics, stage events and logging.
func (e *Engine) runStage(ctx context.Context, sessionID string, stage domain.Stage, fn stageFunc) error {
	ctx = observability.WithSessionID(ctx, sessionID)
	ctx, span := observability.StartSpan(ctx, "research."+string(stage),
		attribute.String("research.session_id", sessionID),
	)
	logger := observability.WithStageContext(observability.LoggerFromContext(ctx, e.logger), string(stage))

	logger.Info().Msg("stage started")
	e.publish(ctx, sessionID, stage, events.StatusStarted, nil, nil)

	start := time.Now()
	details, err := fn(ctx, logger)
	elapsed := time.Since(start)

	e.metrics.RecordStage(string(stage), err, elapsed)
	observability.EndSpan(span, err)

	if err != nil {
		logger.Error().Err(err).Dur("duration", elapsed).Msg("stage failed")
		e.publish(ctx, sessionID, stage, events.StatusFailed, err, details)
		return err
	}

	logger.Info().Dur("duration", elapsed).Fields(details).Msg("stage completed")
	e.publish(ctx, sessionID, stage, events.StatusCompleted, nil, details)
	return nil
}

// publish emits a stage event. Failures are logged and counted only.
func (e *Engine) publish(ctx context.Context, sessionID string, stage domain.Stage, status events.Status, stageErr error, details map[string]any) {
	event, err := e.emitter.Emit(events.EmitParams{
		SessionID: sessionID,
		Stage:     string(stage),
		Status:    status,
		Err:       stageErr,
		Details:   details,
		TraceID:   traceID(ctx),
	})
	if err == nil {
		err = e.events.Publish(ctx, event)
	}
	e.metrics.RecordEventPublished(err)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("session_id", sessionID).
			Str("stage", string(stage)).
			Str("status", string(status)).
			Msg("failed to publish stage event")
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// requireSession rejects sessions that lack the state downstream stages need.
func requireSession(s *domain.Session) error {
	switch {
	case s == nil:
		return domain.NewValidationError("session", "session is required")
	case !ValidSessionID(s.ID):
		return domain.NewValidationError("research_id", "invalid session id "+s.ID)
	case s.ResearchContent == nil:
		return domain.NewValidationError("research_content", "session has no research content")
	case s.ResearchPlan == nil:
		return domain.NewValidationError("research_plan", "session has no research plan")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
