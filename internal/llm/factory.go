package llm

import (
	"fmt"
	"net/http"
	"time"
)

// ProviderOptions are the transport and sampling settings shared by all providers.
type ProviderOptions struct {
	// Temperature is the default sampling temperature.
	Temperature float64
	// MaxTokens is the default response token limit. Zero leaves it to the API.
	MaxTokens int
	// Timeout is the HTTP timeout for a single completion call.
	Timeout time.Duration
	// MaxRetries is the number of retries for transient failures.
	MaxRetries int
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration
}

// FactoryConfig holds the parameters needed to create a Completer.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Options apply to whichever provider is selected.
	Options ProviderOptions
	// OpenAI contains OpenAI-compatible settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
}

// NewCompleter creates a Completer based on the configuration.
// Supports "openai" and "anthropic" providers. Returns an error for unsupported
// or empty provider values.
func NewCompleter(cfg FactoryConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Options), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
