package models

import "time"

// Student is the immutable input snapshot the matching engine consumes. The
// engine never mutates these records.
type Student struct {
	ID           string               `db:"id" json:"id"`
	FullName     string               `db:"full_name" json:"full_name,omitempty"`
	Courses      []string             `json:"courses"`
	WeakTopics   []string             `json:"weak_topics,omitempty"`
	Availability []AvailabilityWindow `json:"availability,omitempty"`
}

// StudentRow is the persisted student profile.
type StudentRow struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentRow links a student to a course.
type EnrollmentRow struct {
	StudentID string `db:"student_id" json:"student_id"`
	CourseID  string `db:"course_id" json:"course_id"`
}

// WeakTopicRow tags a student with a difficult topic.
type WeakTopicRow struct {
	StudentID string `db:"student_id" json:"student_id"`
	Topic     string `db:"topic" json:"topic"`
}

// StudentAvailabilityRow stores one declared window per row.
type StudentAvailabilityRow struct {
	StudentID   string `db:"student_id" json:"student_id"`
	DayOfWeek   int    `db:"day_of_week" json:"day_of_week"`
	StartMinute int    `db:"start_minute" json:"start_minute"`
	EndMinute   int    `db:"end_minute" json:"end_minute"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	CourseID  string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
