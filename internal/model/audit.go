package model

import "time"

// RunRecord is one marking run as stored in the audit database.
type RunRecord struct {
	ID         int64      `json:"id"`
	RootURL    string     `json:"root_url"`
	Strategy   string     `json:"strategy"`
	DryRun     bool       `json:"dry_run"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Students   int        `json:"students"`
	Sections   int        `json:"sections"`
	Marked     int        `json:"marked"`
	Skipped    int        `json:"skipped"`
	NoDecision int        `json:"no_decision"`
	Failed     int        `json:"failed"`
}

// DecisionRecord is one per-section outcome from the audit database.
type DecisionRecord struct {
	Username   string    `json:"username"`
	SectionKey string    `json:"section"`
	Action     string    `json:"action"`
	Mark       *float64  `json:"mark,omitempty"`
	Feedback   string    `json:"feedback,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"at"`
}

// RunExport pairs a run with its decisions for JSON export.
type RunExport struct {
	RunRecord
	Decisions []DecisionRecord `json:"decisions"`
}

// AuditExport is the top-level JSON structure for audit export.
type AuditExport struct {
	Runs []RunExport `json:"runs"`
}
