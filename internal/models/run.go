package models

import "time"

// RunStatus tracks the lifecycle of a persisted matching run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// MatchingRun is the persisted summary of one engine invocation.
type MatchingRun struct {
	ID             string     `db:"id" json:"id"`
	Status         RunStatus  `db:"status" json:"status"`
	StudentCount   int        `db:"student_count" json:"student_count"`
	GroupCount     int        `db:"group_count" json:"group_count"`
	UnmatchedCount int        `db:"unmatched_count" json:"unmatched_count"`
	ConflictCount  int        `db:"conflict_count" json:"conflict_count"`
	FailureCode    string     `db:"failure_code" json:"failure_code,omitempty"`
	RequestedAt    time.Time  `db:"requested_at" json:"requested_at"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// RunFilter describes query params for listing matching runs.
type RunFilter struct {
	Status   RunStatus
	Page     int
	PageSize int
}
