package research

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/helixir/deep-research-service/internal/domain"
)

// Prompt names.
const (
	PromptTranslate      = "translate"
	PromptBrief          = "brief"
	PromptPlan           = "plan"
	PromptCategoryReport = "category_report"
	PromptFinalResearch  = "final_research"
	PromptFinalDetailed  = "final_detailed"
	PromptFinalWechat    = "final_wechat"
)

//go:embed prompts/defaults.yaml
var defaultPromptsYAML []byte

// PromptData is the value every prompt template is rendered with.
type PromptData struct {
	Topic           string
	ResearchContent string
	Category        string
	Resources       string
	Reports         string
	Language        string
	Instructions    string
}

// promptFile is the YAML layout shared by the embedded defaults and overrides.
type promptFile struct {
	Templates map[string]string `yaml:"templates"`
}

// Prompts holds the parsed prompt templates.
type Prompts struct {
	templates map[string]*template.Template
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() *Prompts {
	p, err := parsePrompts(defaultPromptsYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("research: invalid embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts returns the built-in prompts with any entries from the YAML file
// at path replacing the defaults. An empty path yields the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	return parsePrompts(defaultPromptsYAML, data)
}

func parsePrompts(defaults, overrides []byte) (*Prompts, error) {
	var base promptFile
	if err := yaml.Unmarshal(defaults, &base); err != nil {
		return nil, fmt.Errorf("decode default prompts: %w", err)
	}

	if overrides != nil {
		var extra promptFile
		if err := yaml.Unmarshal(overrides, &extra); err != nil {
			return nil, fmt.Errorf("decode prompts file: %w", err)
		}
		for name, body := range extra.Templates {
			if _, ok := base.Templates[name]; !ok {
				return nil, domain.NewValidationError("prompts", "unknown prompt "+name+", expected one of "+strings.Join(sortedKeys(base.Templates), ", "))
			}
			base.Templates[name] = body
		}
	}

	p := &Prompts{templates: make(map[string]*template.Template, len(base.Templates))}
	for name, body := range base.Templates {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// Render executes the named prompt with data.
func (p *Prompts) Render(name string, data PromptData) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// finalPrompt maps a report mode to its prompt name.
func finalPrompt(mode domain.ReportMode) string {
	switch mode {
	case domain.ReportModeDetailed:
		return PromptFinalDetailed
	case domain.ReportModeWechat:
		return PromptFinalWechat
	default:
		return PromptFinalResearch
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
