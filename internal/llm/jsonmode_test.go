package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/deep-research-service/internal/domain"
)

// stubCompleter returns canned completions in order.
type stubCompleter struct {
	replies []*Completion
	err     error
	calls   []Request
}

func (s *stubCompleter) Complete(_ context.Context, req Request) (*Completion, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

func (s *stubCompleter) Provider() string { return "stub" }

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type translation struct {
		Response string `json:"response"`
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain object", raw: `{"response": "quantum sensing"}`, want: "quantum sensing"},
		{name: "fenced json", raw: "```json\n{\"response\": \"quantum sensing\"}\n```", want: "quantum sensing"},
		{name: "surrounding prose", raw: "Sure! Here it is: {\"response\": \"quantum sensing\"} Hope it helps.", want: "quantum sensing"},
		{name: "single quotes repaired", raw: `{'response': 'quantum sensing'}`, want: "quantum sensing"},
		{name: "trailing comma repaired", raw: `{"response": "quantum sensing",}`, want: "quantum sensing"},
		{name: "truncated object repaired", raw: `{"response": "quantum sensing"`, want: "quantum sensing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out translation
			require.NoError(t, DecodeJSON("translate", tt.raw, &out))
			assert.Equal(t, tt.want, out.Response)
		})
	}
}

func TestDecodeJSON_NoJSON(t *testing.T) {
	t.Parallel()

	var out map[string]any
	err := DecodeJSON("plan", "I cannot help with that.", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)

	var parseErr *domain.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "plan", parseErr.Op)
	assert.Equal(t, "I cannot help with that.", parseErr.Raw)
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `[1, 2]`, extractJSON("```\n[1, 2]\n```"))
	assert.Equal(t, `{"a": {"b": 1}}`, extractJSON(`note {"a": {"b": 1}} end`))
	assert.Equal(t, "", extractJSON("   "))
}

func TestCompleteJSON(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{replies: []*Completion{{Content: `{"response": "ok"}`}}}

	var out struct {
		Response string `json:"response"`
	}
	completion, err := CompleteJSON(context.Background(), stub, Request{Operation: "translate"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Response)
	assert.Equal(t, `{"response": "ok"}`, completion.Content)
	require.Len(t, stub.calls, 1)
	assert.Equal(t, FormatJSON, stub.calls[0].Format)
}

func TestCompleteJSON_ServiceError(t *testing.T) {
	t.Parallel()

	stub := &stubCompleter{err: domain.NewServiceError("stub", "complete", errors.New("401"))}

	var out map[string]any
	_, err := CompleteJSON(context.Background(), stub, Request{}, &out)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestCompletion_Truncated(t *testing.T) {
	t.Parallel()

	for _, reason := range []string{"length", "max_tokens", "MAX_TOKENS"} {
		assert.True(t, (&Completion{FinishReason: reason}).Truncated(), reason)
	}
	assert.True(t, (&Completion{FinishReason: "stop", NativeFinishReason: "MAX_TOKENS"}).Truncated())
	assert.False(t, (&Completion{FinishReason: "stop"}).Truncated())
	assert.False(t, (&Completion{}).Truncated())
}
