package models

import "sort"

// SlotRegistry records each student's committed meeting windows. It is
// explicit external state: callers pass it into a run and receive the updated
// value back. It is never a hidden package-level singleton.
type SlotRegistry map[string][]AvailabilityWindow

// NewSlotRegistry returns an empty registry.
func NewSlotRegistry() SlotRegistry {
	return make(SlotRegistry)
}

// Clone deep-copies the registry so staged mutations can be discarded.
func (r SlotRegistry) Clone() SlotRegistry {
	clone := make(SlotRegistry, len(r))
	for studentID, windows := range r {
		copied := make([]AvailabilityWindow, len(windows))
		copy(copied, windows)
		clone[studentID] = copied
	}
	return clone
}

// Windows returns the committed windows for a student.
func (r SlotRegistry) Windows(studentID string) []AvailabilityWindow {
	return r[studentID]
}

// Add records a committed window for a student.
func (r SlotRegistry) Add(studentID string, window AvailabilityWindow) {
	r[studentID] = append(r[studentID], window)
}

// Remove drops every commitment held for a student.
func (r SlotRegistry) Remove(studentID string) {
	delete(r, studentID)
}

// StudentIDs lists registered students in ascending order.
func (r SlotRegistry) StudentIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CommittedSlotRow is the persisted form of one registry entry.
type CommittedSlotRow struct {
	StudentID   string `db:"student_id"`
	GroupID     string `db:"group_id"`
	DayOfWeek   int    `db:"day_of_week"`
	StartMinute int    `db:"start_minute"`
	EndMinute   int    `db:"end_minute"`
}
