package research

import (
	"path"

	"github.com/helixir/deep-research-service/internal/domain"
)

// Artifact suffixes used when listing a session directory.
const (
	searchRecordSuffix   = ".json"
	categoryReportSuffix = "_report.json"
)

// MetaPath is the location of the session metadata.
func MetaPath(id string) string {
	return path.Join(id, id+"_meta.json")
}

// CategoryDir is the directory holding the search records of one category.
func CategoryDir(id, category string) string {
	return path.Join(id, Sanitize(category))
}

// SearchRecordPath is the location of the raw search payload for one query.
func SearchRecordPath(id, category, query string) string {
	return path.Join(CategoryDir(id, category), Sanitize(query)+searchRecordSuffix)
}

// CategoryReportPath is the location of the synthesized report for one category.
func CategoryReportPath(id, category string) string {
	return path.Join(id, Sanitize(category)+categoryReportSuffix)
}

// ReferencePath is the location of the aggregated reference links.
func ReferencePath(id string) string {
	return path.Join(id, id+"_reference.md")
}

// FinalReportPath is the location of a final report produced by model in mode.
func FinalReportPath(id, model string, mode domain.ReportMode) string {
	return path.Join(id, id+"_"+Sanitize(model)+mode.Suffix())
}
