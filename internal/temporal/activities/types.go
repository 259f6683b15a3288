// Package activities exposes the research pipeline stages as Temporal activities.
//
// Every activity reloads its session from the artifact store by ID, so inputs
// and outputs stay small and a run can resume on any worker.
package activities

// CreateSessionInput plans a new session under a pre-assigned ID.
type CreateSessionInput struct {
	SessionID string
	Topic     string
}

// SessionOutput summarizes a planned or loaded session.
type SessionOutput struct {
	SessionID    string
	EnglishTopic string
	Categories   int
	Queries      int
}

// StageInput addresses an existing session.
type StageInput struct {
	SessionID string
}

// SearchOutput reports how many search records were written.
type SearchOutput struct {
	Records int
}

// CategoryReportsOutput lists the categories whose report was written.
type CategoryReportsOutput struct {
	Categories []string
}

// ReferenceOutput reports the size of the reference document.
type ReferenceOutput struct {
	Length int
}

// FinalReportInput selects the mode and model of the final report.
type FinalReportInput struct {
	SessionID string
	Mode      string
	Model     string
}

// FinalReportOutput reports the size of the final report.
type FinalReportOutput struct {
	Mode   string
	Length int
}
