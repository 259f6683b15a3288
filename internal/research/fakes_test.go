package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/helixir/deep-research-service/internal/domain"
	"github.com/helixir/deep-research-service/internal/events"
	"github.com/helixir/deep-research-service/internal/llm"
	"github.com/helixir/deep-research-service/internal/observability"
	"github.com/helixir/deep-research-service/internal/storage"
	"github.com/helixir/deep-research-service/internal/websearch"
)

// replyFunc answers one completion request.
type replyFunc func(req llm.Request) (*llm.Completion, error)

// scriptedCompleter answers requests by operation and records every call.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]replyFunc
	calls   []llm.Request
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{replies: make(map[string]replyFunc)}
}

func (c *scriptedCompleter) on(op string, fn replyFunc) *scriptedCompleter {
	c.replies[op] = fn
	return c
}

func (c *scriptedCompleter) onText(op, content string) *scriptedCompleter {
	return c.on(op, func(llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Content: content, FinishReason: "stop"}, nil
	})
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	c.mu.Lock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	c.calls = append(c.calls, req)
	fn, ok := c.replies[req.Operation]
	c.mu.Unlock()
	if !ok {
		return nil, domain.NewServiceError("llm", "complete", errors.New("unexpected operation "+req.Operation))
	}
	return fn(req)
}

func (c *scriptedCompleter) Provider() string { return "scripted" }

func (c *scriptedCompleter) callsFor(op string) []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []llm.Request
	for _, r := range c.calls {
		if r.Operation == op {
			out = append(out, r)
		}
	}
	return out
}

// fakeSearcher returns canned records by query.
type fakeSearcher struct {
	mu      sync.Mutex
	records map[string]*domain.SearchRecord
	errs    map[string]error
	queries []string
	tmpls   []websearch.Template
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		records: make(map[string]*domain.SearchRecord),
		errs:    make(map[string]error),
	}
}

func (s *fakeSearcher) Search(_ context.Context, query string, tmpl websearch.Template) (*domain.SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.tmpls = append(s.tmpls, tmpl)
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	if rec, ok := s.records[query]; ok {
		copied := *rec
		return &copied, nil
	}
	return &domain.SearchRecord{Query: query, Results: []domain.ResultItem{}}, nil
}

type testEnv struct {
	engine   *Engine
	llm      *scriptedCompleter
	search   *fakeSearcher
	store    *storage.FileStore
	events   *events.Recorder
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Models = Models{Smart: "smart-model", Normal: "normal-model", Long: "long-model", Report: "report/pro-model"}
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		llm:      newScriptedCompleter(),
		search:   newFakeSearcher(),
		store:    store,
		events:   &events.Recorder{},
		registry: prometheus.NewRegistry(),
	}
	env.engine, err = NewEngine(cfg, Dependencies{
		LLM:     env.llm,
		Search:  env.search,
		Store:   store,
		Events:  env.events,
		Metrics: observability.NewMetrics("test", env.registry),
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	env.engine.now = func() time.Time { return time.Date(2025, 3, 1, 10, 15, 0, 0, time.UTC) }
	return env
}

// seedSession persists metadata for a session with the given plan.
func (env *testEnv) seedSession(t *testing.T, plan ...domain.CategoryPlan) *domain.Session {
	t.Helper()
	if plan == nil {
		plan = []domain.CategoryPlan{}
	}
	s := &domain.Session{
		ID:           "RS_20250301_101500_abc123",
		Topic:        "Impact of AI on healthcare",
		EnglishTopic: "Impact of AI on healthcare",
		ResearchContent: &domain.ResearchContent{
			OriginalTopic:     "Impact of AI on healthcare",
			CoreResearchTopic: "AI in clinical practice",
			ResearchScope:     "2020-2025",
			ResearchTarget:    "Policy guidance",
		},
		ResearchPlan: plan,
	}
	require.NoError(t, env.store.SaveJSON(context.Background(), MetaPath(s.ID), s))
	return s
}

func (env *testEnv) saveRecord(t *testing.T, sessionID, category, query string, items ...domain.ResultItem) {
	t.Helper()
	rec := domain.SearchRecord{Query: query, Results: items}
	require.NoError(t, env.store.SaveJSON(context.Background(), SearchRecordPath(sessionID, category, query), rec))
}
