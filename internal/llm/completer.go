// Package llm provides chat completion clients for OpenAI-compatible and
// Anthropic APIs, plus JSON-mode helpers that tolerate malformed model output.
package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Format is the output format requested from the model.
type Format string

const (
	// FormatText requests free-form text (markdown reports).
	FormatText Format = "text"
	// FormatJSON requests a single JSON object.
	FormatJSON Format = "json"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	// Operation labels the call in logs and metrics (translate, plan, synthesize, ...).
	Operation string
	// Model overrides the provider default when set.
	Model    string
	Messages []Message
	Format   Format
	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int
	// Temperature overrides the provider temperature when non-nil.
	Temperature *float64
}

// Completion is the result of a single completion call.
type Completion struct {
	Content string
	Model   string
	// FinishReason is the normalized stop reason reported by the provider.
	FinishReason string
	// NativeFinishReason is the upstream reason reported by routers such as OpenRouter.
	NativeFinishReason string
	InputTokens        int
	OutputTokens       int
}

// Truncated reports whether the model stopped because it hit its output token limit.
func (c *Completion) Truncated() bool {
	return isLengthReason(c.FinishReason) || isLengthReason(c.NativeFinishReason)
}

func isLengthReason(reason string) bool {
	switch strings.ToLower(reason) {
	case "length", "max_tokens":
		return true
	}
	return false
}

// Completer sends chat completion requests to an LLM provider.
type Completer interface {
	// Complete sends a single completion request. Transport and API failures
	// are returned as *domain.ServiceError.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Provider returns the provider name (e.g., "openai", "anthropic").
	Provider() string
}
