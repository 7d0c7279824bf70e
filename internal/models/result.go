package models

import "time"

// UnmatchReason explains why a student ended up outside every group.
type UnmatchReason string

const (
	// UnmatchReasonInsufficientPool marks course pools below the minimum size.
	UnmatchReasonInsufficientPool UnmatchReason = "insufficient-pool"
	// UnmatchReasonNoCompatibleGroup marks leftovers no group could absorb.
	UnmatchReasonNoCompatibleGroup UnmatchReason = "no-compatible-group"
	// UnmatchReasonTimeConflict marks members of groups rejected by the
	// conflict tracker.
	UnmatchReasonTimeConflict UnmatchReason = "time-conflict"
)

// UnmatchedStudent records one student left out of a course's grouping.
type UnmatchedStudent struct {
	StudentID string        `db:"student_id" json:"student_id"`
	CourseID  string        `db:"course_id" json:"course_id"`
	Reason    UnmatchReason `db:"reason" json:"reason"`
}

// ConflictReport captures a rejected assignment caused by overlapping
// commitments across groups.
type ConflictReport struct {
	StudentID string             `json:"student_id"`
	GroupIDs  []string           `json:"group_ids"`
	Window    AvailabilityWindow `json:"window"`
}

// RunStats summarises a completed matching run.
type RunStats struct {
	CoursesProcessed int           `json:"courses_processed"`
	GroupsFormed     int           `json:"groups_formed"`
	StudentsPlaced   int           `json:"students_placed"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}

// MatchingResult is the complete outcome of one matching run. The updated
// registry travels alongside so the caller can persist it.
type MatchingResult struct {
	RunID     string             `json:"run_id"`
	Groups    []Group            `json:"groups"`
	Unmatched []UnmatchedStudent `json:"unmatched"`
	Conflicts []ConflictReport   `json:"conflicts"`
	Stats     RunStats           `json:"stats"`
	Registry  SlotRegistry       `json:"-"`
}
