package models

// GroupStatus describes the outcome of forming one study group.
type GroupStatus string

const (
	// GroupStatusFormed means the group has members and a meeting window.
	GroupStatusFormed GroupStatus = "formed"
	// GroupStatusNeedsTime means the group shares a course but no common window.
	GroupStatusNeedsTime GroupStatus = "needs-time"
	// GroupStatusRejected means a member's slot collided with a prior commitment.
	GroupStatusRejected GroupStatus = "rejected"
)

// Group is a set of students sharing a course with an attempted meeting window.
type Group struct {
	ID         string              `db:"id" json:"id"`
	CourseID   string              `db:"course_id" json:"course_id"`
	MemberIDs  []string            `json:"member_ids"`
	Meeting    *AvailabilityWindow `json:"meeting,omitempty"`
	Status     GroupStatus         `db:"status" json:"status"`
	Score      float64             `db:"score" json:"score"`
	Undersized bool                `db:"undersized" json:"undersized,omitempty"`
}

// GroupRow is the persisted form of a group without its member list.
type GroupRow struct {
	ID          string      `db:"id"`
	RunID       string      `db:"run_id"`
	CourseID    string      `db:"course_id"`
	Status      GroupStatus `db:"status"`
	Score       float64     `db:"score"`
	Undersized  bool        `db:"undersized"`
	MeetingDay  *int        `db:"meeting_day"`
	MeetingFrom *int        `db:"meeting_start"`
	MeetingTo   *int        `db:"meeting_end"`
}

// GroupMemberRow links a group to a member in deterministic order.
type GroupMemberRow struct {
	GroupID   string `db:"group_id"`
	StudentID string `db:"student_id"`
	Position  int    `db:"position"`
}
