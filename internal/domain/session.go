// Package domain provides domain models and errors for the deep research service.
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ResearchContent is the structured brief derived from the normalized topic.
type ResearchContent struct {
	OriginalTopic     string `json:"original_topic"`
	CoreResearchTopic string `json:"core_research_topic"`
	ResearchScope     string `json:"research_scope"`
	ResearchTarget    string `json:"research_target"`
}

// CategoryPlan is one planning unit: a category, its goal, and its search queries.
type CategoryPlan struct {
	Category string   `json:"category"`
	Goal     string   `json:"category_research_goal"`
	Queries  []string `json:"queries_list"`
}

// Session is the root aggregate of one research engagement.
//
// A session owns its plan in memory. Search records, category reports and final
// reports exist only as persisted artifacts addressed by paths derived from ID.
type Session struct {
	ID              string           `json:"research_id"`
	Topic           string           `json:"topic"`
	EnglishTopic    string           `json:"english_topic"`
	ResearchContent *ResearchContent `json:"research_content"`
	ResearchPlan    []CategoryPlan   `json:"research_plan"`
}

// ResultItem is one web search hit as persisted in a search record.
type ResultItem struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score"`
}

// Body returns the raw page content when present, otherwise the snippet.
func (r ResultItem) Body() string {
	if strings.TrimSpace(r.RawContent) != "" {
		return r.RawContent
	}
	return r.Content
}

// SearchRecord is the typed view of the payload for one (category, query)
// search. Raw holds the provider response body exactly as received; when set it
// is what gets persisted.
type SearchRecord struct {
	Query        string          `json:"query"`
	Answer       string          `json:"answer,omitempty"`
	Results      []ResultItem    `json:"results"`
	ResponseTime Seconds         `json:"response_time,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// Seconds is a duration in seconds that decodes from a JSON number or a quoted
// number. Unparseable values decode as zero.
type Seconds float64

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Seconds(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			*s = Seconds(f)
			return nil
		}
	}
	*s = 0
	return nil
}

// Resource is a filtered search hit fed to synthesis and link aggregation.
type Resource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// CategoryReport is the synthesized report for a single category.
type CategoryReport struct {
	Category string `json:"category"`
	Report   string `json:"report"`
}

// ReportMode selects the prompt and file naming used for the final report.
type ReportMode string

// Supported report modes.
const (
	ReportModeResearch ReportMode = "research"
	ReportModeDetailed ReportMode = "detailed"
	ReportModeWechat   ReportMode = "wechat"
)

// Valid reports whether m is a known report mode.
func (m ReportMode) Valid() bool {
	switch m {
	case ReportModeResearch, ReportModeDetailed, ReportModeWechat:
		return true
	}
	return false
}

// Suffix returns the filename suffix used for final reports in this mode.
func (m ReportMode) Suffix() string {
	switch m {
	case ReportModeDetailed:
		return "_detail_research.md"
	case ReportModeWechat:
		return "_wechat.md"
	default:
		return "_research.md"
	}
}

// ParseReportMode parses a mode name, defaulting to research for an empty string.
func ParseReportMode(s string) (ReportMode, error) {
	if s == "" {
		return ReportModeResearch, nil
	}
	m := ReportMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", NewValidationError("report_mode", "unknown report mode "+s)
	}
	return m, nil
}

// Stage names a top-level pipeline stage.
type Stage string

// Pipeline stages, in execution order.
const (
	StageCreate    Stage = "create"
	StageSearch    Stage = "search"
	StageReports   Stage = "reports"
	StageReference Stage = "reference"
	StageFinal     Stage = "final"
)
