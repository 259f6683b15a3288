package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/helixir/deep-research-service/internal/domain"
)

// CompleteJSON runs req in JSON mode and decodes the model output into out.
// The raw completion is returned even when decoding fails.
func CompleteJSON(ctx context.Context, c Completer, req Request, out any) (*Completion, error) {
	req.Format = FormatJSON
	completion, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(req.Operation, completion.Content, out); err != nil {
		return completion, err
	}
	return completion, nil
}

// DecodeJSON decodes model output into out. Markdown fences and surrounding
// prose are stripped first, and malformed JSON is repaired before giving up
// with a *domain.ParseError.
func DecodeJSON(op, raw string, out any) error {
	candidate := extractJSON(raw)
	if candidate == "" {
		return &domain.ParseError{Op: op, Raw: raw, Err: errors.New("no JSON content in model output")}
	}

	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return &domain.ParseError{Op: op, Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return &domain.ParseError{Op: op, Raw: raw, Err: err}
	}
	return nil
}

// extractJSON returns the JSON payload embedded in s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closing := "}"
	if s[start] == '[' {
		closing = "]"
	}
	if end := strings.LastIndex(s, closing); end > start {
		return s[start : end+1]
	}
	return s[start:]
}
