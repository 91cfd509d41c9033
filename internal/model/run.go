package model

import "time"

// RunStatus represents the current state of a winery scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusEmpty    RunStatus = "empty"  // scrape succeeded but yielded nothing
	RunStatusFailed   RunStatus = "failed" // listing page could not be loaded
)

// ScrapeRun records one scrape-and-save invocation for a winery.
type ScrapeRun struct {
	ID         string     `json:"id"`
	WineryID   int64      `json:"winery_id"`
	Status     RunStatus  `json:"status"`
	Found      int        `json:"found"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
	Unchanged  int        `json:"unchanged"`
	Retired    int        `json:"retired"`
	Flagged    int        `json:"flagged"`
	Errors     []string   `json:"errors,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *ScrapeRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
