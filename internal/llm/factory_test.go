package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleter(t *testing.T) {
	t.Parallel()

	opts := ProviderOptions{Timeout: 30 * time.Second, Temperature: 0.7}

	tests := []struct {
		name         string
		cfg          FactoryConfig
		wantProvider string
		wantErr      string
	}{
		{
			name: "openai",
			cfg: FactoryConfig{
				Provider: "openai",
				Options:  opts,
				OpenAI:   OpenAIConfig{APIKey: "sk-test-key", BaseURL: "https://openrouter.ai/api/v1"},
			},
			wantProvider: "openai",
		},
		{
			name: "anthropic",
			cfg: FactoryConfig{
				Provider:  "anthropic",
				Options:   opts,
				Anthropic: AnthropicConfig{APIKey: "sk-ant-test-key"},
			},
			wantProvider: "anthropic",
		},
		{
			name:    "unknown provider",
			cfg:     FactoryConfig{Provider: "bedrock"},
			wantErr: `unsupported LLM provider: "bedrock"`,
		},
		{
			name:    "empty provider",
			cfg:     FactoryConfig{},
			wantErr: "unsupported LLM provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewCompleter(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, c.Provider())
		})
	}
}
