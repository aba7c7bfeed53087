package model

import "time"

// RunStatus represents the lifecycle of a recorded validation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted index entry of a session: metadata plus the rendered reports.
type Run struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Date      string     `json:"date"`
	Sources   []SourceID `json:"sources"`
	DryRun    bool       `json:"dry_run"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Totals        SessionTotals  `json:"totals"`
	SourceReports []SourceReport `json:"source_reports"`
	Report        string         `json:"report"`
	DailyTasks    string         `json:"daily_tasks"`
	ReportPath    string         `json:"report_path,omitempty"`
	TasksPath     string         `json:"tasks_path,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// RunStatusFor maps a session status onto the persisted run status.
func RunStatusFor(s SessionStatus) RunStatus {
	if s == SessionStatusSuccess {
		return RunStatusComplete
	}
	return RunStatusPartial
}
