package websearch

import (
	"fmt"
	"sort"
)

// Template is a named set of search parameters.
type Template struct {
	Name              string
	SearchDepth       string
	MaxResults        int
	IncludeRawContent bool
	Topic             string
	IncludeDomains    []string
	ExcludeDomains    []string
}

// Template names.
const (
	TemplateBasic    = "basic"
	TemplateAdvanced = "advanced"
	TemplateNews     = "news"
	TemplateAcademic = "academic"
)

var templates = map[string]Template{
	TemplateBasic: {
		Name:              TemplateBasic,
		SearchDepth:       "basic",
		MaxResults:        5,
		IncludeRawContent: true,
	},
	TemplateAdvanced: {
		Name:              TemplateAdvanced,
		SearchDepth:       "advanced",
		MaxResults:        10,
		IncludeRawContent: true,
		IncludeDomains:    []string{},
		ExcludeDomains:    []string{},
	},
	TemplateNews: {
		Name:              TemplateNews,
		SearchDepth:       "advanced",
		MaxResults:        8,
		IncludeRawContent: true,
		Topic:             "news",
	},
	TemplateAcademic: {
		Name:              TemplateAcademic,
		SearchDepth:       "advanced",
		MaxResults:        15,
		IncludeRawContent: true,
		IncludeDomains:    []string{".edu", ".org", "scholar.google.com"},
		Topic:             "general",
	},
}

// LookupTemplate returns a copy of the named template.
func LookupTemplate(name string) (Template, error) {
	t, ok := templates[name]
	if !ok {
		return Template{}, fmt.Errorf("template not found: %s", name)
	}
	t.IncludeDomains = cloneStrings(t.IncludeDomains)
	t.ExcludeDomains = cloneStrings(t.ExcludeDomains)
	return t, nil
}

// TemplateNames returns the registered template names in sorted order.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
