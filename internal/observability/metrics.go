package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the deep research service.
// Metrics are grouped by subsystem: sessions, stages, searches, synthesis,
// final reports, LLM calls and stage events.
//
// All Record* methods are safe to call on a nil *Metrics so that library code
// can run without a registry.
type Metrics struct {
	// SessionsCreated counts research sessions that were planned and persisted.
	SessionsCreated prometheus.Counter

	// SessionsFailed counts session creations that failed, labeled by step.
	SessionsFailed *prometheus.CounterVec

	// StageRuns counts pipeline stage executions by stage and outcome.
	StageRuns *prometheus.CounterVec

	// StageDuration observes pipeline stage duration in seconds by stage.
	StageDuration *prometheus.HistogramVec

	// SearchesTotal counts web searches by template and outcome.
	SearchesTotal *prometheus.CounterVec

	// SearchDuration observes web search latency in seconds.
	SearchDuration prometheus.Histogram

	// SearchResults observes the number of hits returned per search.
	SearchResults prometheus.Histogram

	// ResultsFiltered counts search hits by relevance decision (kept, dropped).
	ResultsFiltered *prometheus.CounterVec

	// CategoryReports counts category report syntheses by outcome.
	CategoryReports *prometheus.CounterVec

	// ReferenceLinks counts links written to link references.
	ReferenceLinks prometheus.Counter

	// FinalReports counts final reports written, labeled by report mode.
	FinalReports *prometheus.CounterVec

	// ContinuationRounds counts continuation requests issued for truncated reports.
	ContinuationRounds prometheus.Counter

	// ContinuationLimitReached counts final reports that hit the continuation cap.
	ContinuationLimitReached prometheus.Counter

	// LLMRequestsTotal counts completion requests by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed completion requests by operation and model.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes completion latency in seconds by operation.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens by operation, model and type (input, output).
	LLMTokensUsed *prometheus.CounterVec

	// EventsPublished counts stage events by outcome.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
// A nil reg registers on the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Sessions
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of research sessions created",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of research session creations that failed by step",
		}, []string{"step"}),

		// Stages
		StageRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage runs by stage and outcome",
		}, []string{"stage", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}, []string{"stage"}),

		// Searches
		SearchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of web searches by template and outcome",
		}, []string{"template", "outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of web searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Number of hits returned per web search",
			Buckets:   []float64{0, 1, 3, 5, 8, 10, 15, 20},
		}),
		ResultsFiltered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_filtered_total",
			Help:      "Total number of search hits by relevance decision",
		}, []string{"decision"}),

		// Synthesis
		CategoryReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_reports_total",
			Help:      "Total number of category report syntheses by outcome",
		}, []string{"outcome"}),
		ReferenceLinks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_links_total",
			Help:      "Total number of links written to link references",
		}),
		FinalReports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_reports_total",
			Help:      "Total number of final reports written by mode",
		}, []string{"mode"}),
		ContinuationRounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continuation_rounds_total",
			Help:      "Total number of continuation requests for truncated reports",
		}),
		ContinuationLimitReached: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continuation_limit_reached_total",
			Help:      "Total number of final reports that reached the continuation cap",
		}),

		// LLM
		LLMRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM completion requests by operation and model",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM completion requests by operation and model",
		}, []string{"operation", "model"}),
		LLMRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM completion requests in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"operation"}),
		LLMTokensUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of LLM tokens used by operation, model and type",
		}, []string{"operation", "model", "type"}),

		// Events
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of stage events published by outcome",
		}, []string{"outcome"}),
	}
}

// RecordSessionCreated records a successfully created session.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionFailed records a failed session creation at the given step.
func (m *Metrics) RecordSessionFailed(step string) {
	if m == nil {
		return
	}
	m.SessionsFailed.WithLabelValues(step).Inc()
}

// RecordStage records one stage run with its outcome and duration.
func (m *Metrics) RecordStage(stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, outcome(err)).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSearch records one web search.
func (m *Metrics) RecordSearch(template string, results int, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(template, outcome(err)).Inc()
	m.SearchDuration.Observe(d.Seconds())
	if err == nil {
		m.SearchResults.Observe(float64(results))
	}
}

// RecordResultsFiltered records how many hits passed and failed the relevance filter.
func (m *Metrics) RecordResultsFiltered(kept, dropped int) {
	if m == nil {
		return
	}
	m.ResultsFiltered.WithLabelValues("kept").Add(float64(kept))
	m.ResultsFiltered.WithLabelValues("dropped").Add(float64(dropped))
}

// RecordCategoryReport records a category synthesis outcome.
func (m *Metrics) RecordCategoryReport(err error) {
	if m == nil {
		return
	}
	m.CategoryReports.WithLabelValues(outcome(err)).Inc()
}

// RecordReferenceLinks records the number of links written to a reference.
func (m *Metrics) RecordReferenceLinks(count int) {
	if m == nil {
		return
	}
	m.ReferenceLinks.Add(float64(count))
}

// RecordFinalReport records a written final report.
func (m *Metrics) RecordFinalReport(mode string) {
	if m == nil {
		return
	}
	m.FinalReports.WithLabelValues(mode).Inc()
}

// RecordContinuation records a continuation request.
func (m *Metrics) RecordContinuation() {
	if m == nil {
		return
	}
	m.ContinuationRounds.Inc()
}

// RecordContinuationLimit records a final report that stopped at the continuation cap.
func (m *Metrics) RecordContinuationLimit() {
	if m == nil {
		return
	}
	m.ContinuationLimitReached.Inc()
}

// RecordLLMRequest records a completion request and its token usage.
func (m *Metrics) RecordLLMRequest(operation, model string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed completion request.
func (m *Metrics) RecordLLMRequestFailed(operation, model string) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestsFailed.WithLabelValues(operation, model).Inc()
}

// RecordEventPublished records a stage event publication attempt.
func (m *Metrics) RecordEventPublished(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
