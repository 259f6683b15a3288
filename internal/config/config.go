// Package config provides configuration management for the deep research service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
)

// Storage backend names.
const (
	StorageFilesystem = "filesystem"
	StoragePostgres   = "postgres"
	StorageRedis      = "redis"
)

// Config holds all configuration for the deep research service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings (postgres storage backend).
	Database DatabaseConfig `mapstructure:"database"`
	// Redis contains Redis connection settings (redis storage backend).
	Redis RedisConfig `mapstructure:"redis"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Tracing contains OpenTelemetry distributed tracing settings.
	Tracing TracingConfig `mapstructure:"tracing"`
	// LLM contains the completion provider and model tiers.
	LLM LLMConfig `mapstructure:"llm"`
	// Search contains the web search provider settings.
	Search SearchConfig `mapstructure:"search"`
	// Storage selects and configures the artifact store.
	Storage StorageConfig `mapstructure:"storage"`
	// Research contains pipeline tuning.
	Research ResearchConfig `mapstructure:"research"`
	// Kafka contains stage event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"-"`
	Name     string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is a directory of migration files. Empty uses the embedded set.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// URL is a redis:// connection URL. Takes precedence over Addr when set.
	URL      string `mapstructure:"-"`
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"-"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for research workflows.
	TaskQueue string `mapstructure:"task_queue"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`
	// ServiceName is the service name for traces.
	ServiceName string `mapstructure:"service_name"`
	// SampleRate is the sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// LLMConfig holds LLM client configuration.
type LLMConfig struct {
	// Provider is the LLM provider (openai, anthropic). "openai" covers any
	// OpenAI-compatible endpoint such as OpenRouter.
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for a single completion call.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the number of retries for transient failures. Zero disables retries.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// MaxTokens caps output tokens per call. Zero leaves it to the provider.
	MaxTokens int `mapstructure:"max_tokens"`
	// Models maps the pipeline's model tiers to concrete model names.
	Models ModelsConfig `mapstructure:"models"`
	// OpenAI contains OpenAI-compatible endpoint settings.
	OpenAI ProviderConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

// ModelsConfig names the model used for each tier.
type ModelsConfig struct {
	// Smart is used for the research brief and plan.
	Smart string `mapstructure:"smart"`
	// Normal is used for topic translation.
	Normal string `mapstructure:"normal"`
	// Long is used for per-category synthesis over large contexts.
	Long string `mapstructure:"long"`
	// Report is the default model for the final report.
	Report string `mapstructure:"report"`
}

// ProviderConfig holds endpoint settings for one LLM provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"-"`
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig holds web search settings.
type SearchConfig struct {
	// Provider is the search provider (tavily).
	Provider string `mapstructure:"provider"`
	// APIKey is loaded from DEEPRESEARCH_SEARCH_API_KEY or TAVILY_API_KEY.
	APIKey  string        `mapstructure:"-"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is requests per second. Zero or negative means unlimited.
	RateLimit  float64 `mapstructure:"rate_limit"`
	MaxRetries int     `mapstructure:"max_retries"`
	// Template is the search parameter template used by the search stage.
	Template string `mapstructure:"template"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	// Backend is one of filesystem, postgres, redis.
	Backend string `mapstructure:"backend"`
	// Root is the output directory for the filesystem backend.
	Root string `mapstructure:"root"`
	// KeyPrefix namespaces keys for the redis backend.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ResearchConfig holds pipeline tuning parameters.
type ResearchConfig struct {
	// ScoreThreshold is the exclusive lower bound on search result score.
	ScoreThreshold float64 `mapstructure:"score_threshold"`
	// MaxContinuations caps continuation rounds for truncated final reports.
	MaxContinuations int `mapstructure:"max_continuations"`
	// ReportLanguage is substituted into synthesis prompts.
	ReportLanguage string `mapstructure:"report_language"`
	// DefaultReportMode is used when a caller does not choose one.
	DefaultReportMode string `mapstructure:"default_report_mode"`
	// PromptsFile is an optional YAML file overriding prompt templates.
	PromptsFile string `mapstructure:"prompts_file"`
	// ReportInstructions is appended to the research and detailed final report prompts.
	ReportInstructions string `mapstructure:"report_instructions"`
	// WechatInstructions is appended to the wechat final report prompt.
	WechatInstructions string `mapstructure:"wechat_instructions"`
}

// KafkaConfig holds Kafka publisher settings for stage events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic stage events are published to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DEEPRESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/deep-research-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets use mapstructure:"-" and come from the environment only.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// The unprefixed names are the ones earlier deployments of the pipeline used.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = firstEnv("DEEPRESEARCH_LLM_OPENAI_API_KEY", "OPENAI_KEY")
	cfg.LLM.Anthropic.APIKey = firstEnv("DEEPRESEARCH_LLM_ANTHROPIC_API_KEY")
	if base := firstEnv("OPENAI_BASE"); base != "" && os.Getenv("DEEPRESEARCH_LLM_OPENAI_BASE_URL") == "" {
		cfg.LLM.OpenAI.BaseURL = base
	}

	cfg.Search.APIKey = firstEnv("DEEPRESEARCH_SEARCH_API_KEY", "TAVILY_API_KEY")

	if cfg.Research.ReportInstructions == "" {
		cfg.Research.ReportInstructions = firstEnv("REPORT_PROMPT")
	}
	if cfg.Research.WechatInstructions == "" {
		cfg.Research.WechatInstructions = firstEnv("REPORT_WECHAT_PROMPT")
	}

	cfg.Database.Password = firstEnv("DEEPRESEARCH_DATABASE_PASSWORD")
	cfg.Redis.URL = firstEnv("DEEPRESEARCH_REDIS_URL")
	cfg.Redis.Password = firstEnv("DEEPRESEARCH_REDIS_PASSWORD")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "deepresearch")
	v.SetDefault("database.name", "deep_research_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "")
	v.SetDefault("database.migration_auto_run", false)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deep-research-tasks")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "deep-research-service")
	v.SetDefault("tracing.sample_rate", 0.1)

	// LLM defaults. Retries stay off: a failed call surfaces to the stage.
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "10m")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.models.smart", "deepseek/deepseek-r1")
	v.SetDefault("llm.models.normal", "deepseek/deepseek-r1-distill-llama-70b")
	v.SetDefault("llm.models.long", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.models.report", "google/gemini-2.0-pro-exp-02-05:free")
	v.SetDefault("llm.openai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// Search defaults
	v.SetDefault("search.provider", "tavily")
	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("search.timeout", "60s")
	v.SetDefault("search.rate_limit", 0)
	v.SetDefault("search.max_retries", 0)
	v.SetDefault("search.template", "advanced")

	// Storage defaults
	v.SetDefault("storage.backend", StorageFilesystem)
	v.SetDefault("storage.root", "output")
	v.SetDefault("storage.key_prefix", "deepresearch")

	// Research defaults
	v.SetDefault("research.score_threshold", 0.6)
	v.SetDefault("research.max_continuations", 5)
	v.SetDefault("research.report_language", "Chinese")
	v.SetDefault("research.default_report_mode", "detailed")
	v.SetDefault("research.prompts_file", "")
	v.SetDefault("research.report_instructions", "")
	v.SetDefault("research.wechat_instructions", "")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.deep_research.stages")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing sample rate must be between 0 and 1")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires DEEPRESEARCH_LLM_OPENAI_API_KEY (or OPENAI_KEY) to be set", c.LLM.Provider)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires DEEPRESEARCH_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM max_retries must not be negative")
	}
	if c.LLM.Models.Smart == "" || c.LLM.Models.Normal == "" || c.LLM.Models.Long == "" || c.LLM.Models.Report == "" {
		return fmt.Errorf("all LLM model tiers (smart, normal, long, report) must be set")
	}

	if c.Search.APIKey == "" {
		return fmt.Errorf("search provider %q requires DEEPRESEARCH_SEARCH_API_KEY (or TAVILY_API_KEY) to be set", c.Search.Provider)
	}

	switch c.Storage.Backend {
	case StorageFilesystem:
		if c.Storage.Root == "" {
			return fmt.Errorf("storage root is required for the filesystem backend")
		}
	case StoragePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("database host and name are required for the postgres backend")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	case StorageRedis:
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			return fmt.Errorf("redis addr or url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	if c.Research.ScoreThreshold < 0 || c.Research.ScoreThreshold >= 1 {
		return fmt.Errorf("research score_threshold must be in [0, 1)")
	}
	if c.Research.MaxContinuations < 0 {
		return fmt.Errorf("research max_continuations must not be negative")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return nil
}
