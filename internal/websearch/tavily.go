// Package websearch provides the web search client used to gather sources for
// research categories.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/helixir/deep-research-service/internal/domain"
)

const (
	defaultTavilyBaseURL = "https://api.tavily.com"
	serviceName          = "tavily"
)

// Searcher runs a single web search.
type Searcher interface {
	Search(ctx context.Context, query string, tmpl Template) (*domain.SearchRecord, error)
}

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey  string
	BaseURL string
}

// TavilyClient implements Searcher against the Tavily Search API.
type TavilyClient struct {
	http    *HTTPClient
	apiKey  string
	baseURL string
}

// NewTavilyClient creates a Tavily client on top of httpClient.
func NewTavilyClient(cfg TavilyConfig, httpClient *HTTPClient) *TavilyClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(HTTPClientConfig{})
	}
	return &TavilyClient{
		http:    httpClient,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type tavilyRequest struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	MaxResults        int      `json:"max_results"`
	IncludeRawContent bool     `json:"include_raw_content"`
	Topic             string   `json:"topic,omitempty"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Query        string          `json:"query"`
	Answer       *string         `json:"answer"`
	Results      []tavilyResult  `json:"results"`
	ResponseTime json.RawMessage `json:"response_time"`
	Error        json.RawMessage `json:"error"`
	Detail       json.RawMessage `json:"detail"`
}

type tavilyResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent *string `json:"raw_content"`
	Score      float64 `json:"score"`
}

// Search runs query with the parameters of tmpl.
//
// Transport failures, non-2xx statuses and 200 responses carrying an error
// payload are all returned as *domain.ServiceError.
func (c *TavilyClient) Search(ctx context.Context, query string, tmpl Template) (*domain.SearchRecord, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             query,
		SearchDepth:       tmpl.SearchDepth,
		MaxResults:        tmpl.MaxResults,
		IncludeRawContent: tmpl.IncludeRawContent,
		Topic:             tmpl.Topic,
		IncludeDomains:    tmpl.IncludeDomains,
		ExcludeDomains:    tmpl.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewServiceError(serviceName, "search", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, domain.NewServiceError(serviceName, "search", fmt.Errorf("read response: %w", err))
	}

	var payload tavilyResponse
	decodeErr := json.Unmarshal(respBody, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil {
			if m := payload.errorMessage(); m != "" {
				msg = m
			}
		}
		return nil, domain.NewServiceError(serviceName, "search",
			fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return nil, domain.NewServiceError(serviceName, "search", fmt.Errorf("decode response: %w", decodeErr))
	}
	if m := payload.errorMessage(); m != "" {
		return nil, domain.NewServiceError(serviceName, "search", errors.New(m))
	}

	rec := payload.record(query)
	rec.Raw = json.RawMessage(respBody)
	return rec, nil
}

// errorMessage extracts the message from {"error": "..."} or
// {"detail": {"error": "..."}} payloads.
func (r *tavilyResponse) errorMessage() string {
	if m := rawMessage(r.Error); m != "" {
		return m
	}
	var detail struct {
		Error string `json:"error"`
	}
	if len(r.Detail) > 0 && json.Unmarshal(r.Detail, &detail) == nil && detail.Error != "" {
		return detail.Error
	}
	return rawMessage(r.Detail)
}

func (r *tavilyResponse) record(query string) *domain.SearchRecord {
	rec := &domain.SearchRecord{
		Query:        r.Query,
		Results:      make([]domain.ResultItem, 0, len(r.Results)),
		ResponseTime: domain.Seconds(parseResponseTime(r.ResponseTime)),
	}
	if rec.Query == "" {
		rec.Query = query
	}
	if r.Answer != nil {
		rec.Answer = *r.Answer
	}
	for _, res := range r.Results {
		item := domain.ResultItem{
			Title:   res.Title,
			URL:     res.URL,
			Content: res.Content,
			Score:   res.Score,
		}
		if res.RawContent != nil {
			item.RawContent = *res.RawContent
		}
		rec.Results = append(rec.Results, item)
	}
	return rec
}

// rawMessage renders a JSON string value, ignoring null and objects.
func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// parseResponseTime accepts both numeric and quoted response times.
func parseResponseTime(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	if s := rawMessage(raw); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}
