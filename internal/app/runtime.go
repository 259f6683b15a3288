// Package app wires configuration into the runtime shared by the research
// CLI, the HTTP server and the Temporal worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/config"
	"github.com/helixir/deep-research-service/internal/events"
	"github.com/helixir/deep-research-service/internal/llm"
	"github.com/helixir/deep-research-service/internal/observability"
	"github.com/helixir/deep-research-service/internal/research"
	"github.com/helixir/deep-research-service/internal/storage"
	"github.com/helixir/deep-research-service/internal/websearch"
)

// MetricsNamespace prefixes every metric exported by the service.
const MetricsNamespace = "deep_research"

// Runtime holds the long-lived collaborators built from a Config.
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Store    storage.Store
	Events   events.Publisher
	Engine   *research.Engine

	shutdownTracing observability.ShutdownFunc
}

// NewLogger builds the service logger from cfg, tagged with component.
func NewLogger(cfg *config.Config, component string) zerolog.Logger {
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	return logger.With().Str("component", component).Logger()
}

// New builds tracing, metrics, the artifact store, the event publisher, the
// LLM and search clients, and the research engine. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	rt.shutdownTracing = shutdown

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Metrics = observability.NewMetrics(MetricsNamespace, rt.Registry)

	completer, err := llm.NewCompleter(llm.FactoryConfig{
		Provider: cfg.LLM.Provider,
		Options: llm.ProviderOptions{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			RetryDelay:  cfg.LLM.RetryDelay,
		},
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.Models.Report,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Models.Report,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	searcher := websearch.NewTavilyClient(websearch.TavilyConfig{
		APIKey:  cfg.Search.APIKey,
		BaseURL: cfg.Search.BaseURL,
	}, websearch.NewHTTPClient(websearch.HTTPClientConfig{
		Timeout:    cfg.Search.Timeout,
		RateLimit:  cfg.Search.RateLimit,
		MaxRetries: cfg.Search.MaxRetries,
	}))

	prompts := research.DefaultPrompts()
	if cfg.Research.PromptsFile != "" {
		prompts, err = research.LoadPrompts(cfg.Research.PromptsFile)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("load prompts: %w", err)
		}
	}

	rt.Store, err = storage.Open(ctx, cfg, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	rt.Events = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		rt.Events = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
	}

	rt.Engine, err = research.NewEngine(EngineConfig(cfg), research.Dependencies{
		LLM:     llm.Instrument(completer, rt.Metrics, logger),
		Search:  searcher,
		Store:   rt.Store,
		Prompts: prompts,
		Events:  rt.Events,
		Metrics: rt.Metrics,
		Logger:  logger,
	})
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	logger.Info().
		Str("llm_provider", completer.Provider()).
		Str("storage_backend", cfg.Storage.Backend).
		Bool("kafka_enabled", cfg.Kafka.Enabled).
		Msg("research runtime ready")
	return rt, nil
}

// EngineConfig maps the research section of cfg onto a research.Config.
func EngineConfig(cfg *config.Config) research.Config {
	return research.Config{
		Models: research.Models{
			Smart:  cfg.LLM.Models.Smart,
			Normal: cfg.LLM.Models.Normal,
			Long:   cfg.LLM.Models.Long,
			Report: cfg.LLM.Models.Report,
		},
		ScoreThreshold:     cfg.Research.ScoreThreshold,
		MaxContinuations:   cfg.Research.MaxContinuations,
		ReportLanguage:     cfg.Research.ReportLanguage,
		SearchTemplate:     cfg.Search.Template,
		ReportInstructions: cfg.Research.ReportInstructions,
		WechatInstructions: cfg.Research.WechatInstructions,
	}
}

// Close releases everything New acquired. It is safe on a partially built Runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Events != nil {
		if err := rt.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event publisher: %w", err))
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close artifact store: %w", err))
		}
	}
	if rt.shutdownTracing != nil {
		if err := rt.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
