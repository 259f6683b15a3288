package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/llm"
	"github.com/helixir/deep-research-service/internal/storage"
)

// Create plans a new session for topic and persists its metadata. Nothing is
// persisted unless translation, brief and plan all succeed.
func (e *Engine) Create(ctx context.Context, topic string) (*domain.Session, error) {
	return e.CreateWithID(ctx, NewSessionID(e.now()), topic)
}

// CreateWithID is Create with a caller-chosen session ID, used when the ID must
// be known before planning starts.
func (e *Engine) CreateWithID(ctx context.Context, id, topic string) (*domain.Session, error) {
	if isBlank(topic) {
		return nil, domain.NewValidationError("topic", "topic is required")
	}
	if !ValidSessionID(id) {
		return nil, domain.NewValidationError("research_id", fmt.Sprintf("malformed research id %q", id))
	}

	var session *domain.Session

	err := e.runStage(ctx, id, domain.StageCreate, func(ctx context.Context, logger zerolog.Logger) (map[string]any, error) {
		english, err := e.translate(ctx, topic)
		if err != nil {
			e.metrics.RecordSessionFailed("translate")
			return nil, err
		}
		logger.Debug().Str("english_topic", english).Msg("topic translated")

		content, err := e.brief(ctx, english)
		if err != nil {
			e.metrics.RecordSessionFailed("brief")
			return nil, err
		}

		plan, err := e.plan(ctx, content)
		if err != nil {
			e.metrics.RecordSessionFailed("plan")
			return nil, err
		}

		s := &domain.Session{
			ID:              id,
			Topic:           topic,
			EnglishTopic:    english,
			ResearchContent: content,
			ResearchPlan:    plan,
		}
		if err := e.store.SaveJSON(ctx, MetaPath(id), s); err != nil {
			e.metrics.RecordSessionFailed("persist")
			return nil, fmt.Errorf("save session metadata: %w", err)
		}
		session = s

		return map[string]any{
			"categories": len(plan),
			"queries":    countQueries(plan),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordSessionCreated()
	return session, nil
}

// Load reconstructs a persisted session. A session missing any of its
// required fields is rejected as a whole.
func (e *Engine) Load(ctx context.Context, id string) (*domain.Session, error) {
	s, err := loadSession(ctx, e.store, id)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("session_id", id).Int("categories", len(s.ResearchPlan)).Msg("session loaded")
	return s, nil
}

func loadSession(ctx context.Context, store storage.Store, id string) (*domain.Session, error) {
	if !ValidSessionID(id) {
		return nil, domain.NewValidationError("research_id", "invalid session id "+id)
	}

	var meta struct {
		Topic           *string                 `json:"topic"`
		EnglishTopic    *string                 `json:"english_topic"`
		ResearchContent *domain.ResearchContent `json:"research_content"`
		ResearchPlan    []domain.CategoryPlan   `json:"research_plan"`
	}
	if err := store.LoadJSON(ctx, MetaPath(id), &meta); err != nil {
		return nil, &domain.LoadError{SessionID: id, Err: err}
	}

	switch {
	case meta.Topic == nil:
		return nil, domain.NewLoadError(id, "topic")
	case meta.EnglishTopic == nil:
		return nil, domain.NewLoadError(id, "english_topic")
	case meta.ResearchContent == nil:
		return nil, domain.NewLoadError(id, "research_content")
	case meta.ResearchPlan == nil:
		return nil, domain.NewLoadError(id, "research_plan")
	}

	return &domain.Session{
		ID:              id,
		Topic:           *meta.Topic,
		EnglishTopic:    *meta.EnglishTopic,
		ResearchContent: meta.ResearchContent,
		ResearchPlan:    meta.ResearchPlan,
	}, nil
}

func (e *Engine) translate(ctx context.Context, topic string) (string, error) {
	prompt, err := e.prompts.Render(PromptTranslate, PromptData{Topic: topic})
	if err != nil {
		return "", err
	}

	var out struct {
		Response *string `json:"response"`
	}
	_, err = llm.CompleteJSON(ctx, e.llm, llm.Request{
		Operation: PromptTranslate,
		Model:     e.cfg.Models.Normal,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Response == nil || isBlank(*out.Response) {
		return "", &domain.TranslationError{Topic: topic}
	}
	return strings.TrimSpace(*out.Response), nil
}

func (e *Engine) brief(ctx context.Context, englishTopic string) (*domain.ResearchContent, error) {
	prompt, err := e.prompts.Render(PromptBrief, PromptData{Topic: englishTopic})
	if err != nil {
		return nil, err
	}

	var content domain.ResearchContent
	_, err = llm.CompleteJSON(ctx, e.llm, llm.Request{
		Operation: PromptBrief,
		Model:     e.cfg.Models.Smart,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &content)
	if err != nil {
		return nil, err
	}
	return &content, nil
}

func (e *Engine) plan(ctx context.Context, content *domain.ResearchContent) ([]domain.CategoryPlan, error) {
	rendered, err := renderJSON(content)
	if err != nil {
		return nil, err
	}
	prompt, err := e.prompts.Render(PromptPlan, PromptData{ResearchContent: rendered})
	if err != nil {
		return nil, err
	}

	var out struct {
		ResearchPlan *[]domain.CategoryPlan `json:"research_plan"`
	}
	completion, err := llm.CompleteJSON(ctx, e.llm, llm.Request{
		Operation: PromptPlan,
		Model:     e.cfg.Models.Smart,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ResearchPlan == nil {
		return nil, &domain.ParseError{Op: PromptPlan, Raw: completion.Content, Err: errors.New("research_plan missing")}
	}

	plan := *out.ResearchPlan
	if plan == nil {
		plan = []domain.CategoryPlan{}
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// validatePlan checks that every named category maps to its own path segment.
// Blank categories are allowed and skipped by later stages.
func validatePlan(plan []domain.CategoryPlan) error {
	seen := make(map[string]string, len(plan))
	for _, cp := range plan {
		if isBlank(cp.Category) {
			continue
		}
		segment := Sanitize(cp.Category)
		if segment == "" {
			return domain.NewValidationError("research_plan", fmt.Sprintf("category %q has no usable characters for a path", cp.Category))
		}
		if prev, ok := seen[segment]; ok {
			return &domain.ValidationError{
				Field:   "research_plan",
				Message: fmt.Sprintf("categories %q and %q both map to %q", prev, cp.Category, segment),
				Err:     domain.ErrDuplicateCategory,
			}
		}
		seen[segment] = cp.Category
	}
	return nil
}

func countQueries(plan []domain.CategoryPlan) int {
	n := 0
	for _, cp := range plan {
		n += len(cp.Queries)
	}
	return n
}

// renderJSON formats v for embedding in a prompt.
func renderJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("render prompt data: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
