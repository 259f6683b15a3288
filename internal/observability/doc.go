// Package observability provides logging, metrics, and tracing support for
// the deep research service.
//
// # Logging
//
// Create a logger from configuration and pass it down explicitly:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	logger = observability.WithSessionContext(logger, session.ID)
//	logger.Info().Str("stage", "search").Msg("stage started")
//
// # Metrics
//
// Metrics register on the supplied registerer so tests can use a private one:
//
//	metrics := observability.NewMetrics("deep_research", prometheus.NewRegistry())
//	metrics.RecordSearch("advanced", 8, nil, time.Second)
//
// # Tracing
//
// InitTracing installs an OTLP exporter when enabled. StartSpan always works,
// falling back to the no-op provider.
//
// # Standard Fields
//
//   - session_id: research session identifier
//   - stage: pipeline stage (create, search, reports, reference, final)
//   - category: plan category name
//   - query: search query
//   - request_id: HTTP request identifier
//   - workflow_id: Temporal workflow identifier
package observability
