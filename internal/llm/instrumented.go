package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/helixir/deep-research-service/internal/observability"
)

// InstrumentedCompleter decorates a Completer with logging, metrics and tracing.
type InstrumentedCompleter struct {
	next    Completer
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Instrument wraps next. A nil metrics disables metric recording.
func Instrument(next Completer, metrics *observability.Metrics, logger zerolog.Logger) *InstrumentedCompleter {
	return &InstrumentedCompleter{
		next:    next,
		metrics: metrics,
		logger:  logger.With().Str("component", "llm").Str("provider", next.Provider()).Logger(),
	}
}

// Complete implements Completer.
func (c *InstrumentedCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.operation", req.Operation),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
	)

	start := time.Now()
	completion, err := c.next.Complete(ctx, req)
	elapsed := time.Since(start)
	observability.EndSpan(span, err)

	if err != nil {
		c.metrics.RecordLLMRequestFailed(req.Operation, req.Model)
		c.logger.Warn().Err(err).
			Str("operation", req.Operation).
			Str("model", req.Model).
			Dur("duration", elapsed).
			Msg("completion failed")
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = completion.Model
	}
	c.metrics.RecordLLMRequest(req.Operation, model, elapsed, completion.InputTokens, completion.OutputTokens)
	c.logger.Debug().
		Str("operation", req.Operation).
		Str("model", model).
		Str("finish_reason", completion.FinishReason).
		Int("input_tokens", completion.InputTokens).
		Int("output_tokens", completion.OutputTokens).
		Dur("duration", elapsed).
		Msg("completion finished")

	return completion, nil
}

// Provider implements Completer.
func (c *InstrumentedCompleter) Provider() string {
	return c.next.Provider()
}
