package model

import "time"

// JobStatus represents the current state of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is an end state. Jobs are never
// resurrected out of a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScrapeJob tracks the progress of one fan-out across competitor stores.
// Only the orchestrator mutates a job; everyone else sees snapshots.
// CurrentStore is best-effort display information: workers run concurrently,
// so it names one store that was recently active, not an authoritative order.
type ScrapeJob struct {
	TaskID          string     `json:"task_id"`
	Status          JobStatus  `json:"status"`
	TargetStores    []string   `json:"target_stores"`
	CurrentStore    string     `json:"current_store,omitempty"`
	CompletedStores int        `json:"completed_stores"`
	TotalStores     int        `json:"total_stores"`
	ProductsFound   int        `json:"products_found"`
	Errors          []string   `json:"errors"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers while the orchestrator
// keeps mutating the original.
func (j *ScrapeJob) Clone() *ScrapeJob {
	cp := *j
	cp.TargetStores = append([]string(nil), j.TargetStores...)
	cp.Errors = append([]string(nil), j.Errors...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
