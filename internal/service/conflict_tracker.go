package service

import (
	"sync"

	"github.com/noah-isme/study-match-api/internal/models"
)

// committedSlot pairs a committed window with the group that claimed it.
// Entries seeded from a prior registry carry an empty group ID.
type committedSlot struct {
	Window  models.AvailabilityWindow
	GroupID string
}

// ConflictTracker guards a committed-slot registry for the duration of one
// matching run. All mutation goes through the tracker, which serializes
// access; the registry value itself only crosses runs because the caller
// carries it forward.
type ConflictTracker struct {
	mu    sync.Mutex
	slots map[string][]committedSlot
}

// NewConflictTracker seeds a tracker from the caller-provided registry. The
// input registry is not retained or mutated.
func NewConflictTracker(registry models.SlotRegistry) *ConflictTracker {
	tracker := &ConflictTracker{slots: make(map[string][]committedSlot, len(registry))}
	for studentID, windows := range registry {
		entries := make([]committedSlot, 0, len(windows))
		for _, window := range windows {
			entries = append(entries, committedSlot{Window: window})
		}
		tracker.slots[studentID] = entries
	}
	return tracker
}

// CheckAndCommit commits the window for one student, or returns every
// committed slot that overlaps it. Nothing is recorded on conflict.
func (t *ConflictTracker) CheckAndCommit(studentID string, window models.AvailabilityWindow, groupID string) ([]committedSlot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conflicts := t.conflictsLocked(studentID, window); len(conflicts) > 0 {
		return conflicts, false
	}
	t.slots[studentID] = append(t.slots[studentID], committedSlot{Window: window, GroupID: groupID})
	return nil, true
}

// CommitGroup commits the meeting window for every member atomically: if any
// member holds an overlapping commitment, no slot is recorded and the
// offending commitments are returned keyed by student.
func (t *ConflictTracker) CommitGroup(memberIDs []string, window models.AvailabilityWindow, groupID string) (map[string][]committedSlot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	blocked := make(map[string][]committedSlot)
	for _, studentID := range memberIDs {
		if conflicts := t.conflictsLocked(studentID, window); len(conflicts) > 0 {
			blocked[studentID] = conflicts
		}
	}
	if len(blocked) > 0 {
		return blocked, false
	}
	for _, studentID := range memberIDs {
		t.slots[studentID] = append(t.slots[studentID], committedSlot{Window: window, GroupID: groupID})
	}
	return nil, true
}

// Release drops every commitment held for a student.
func (t *ConflictTracker) Release(studentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, studentID)
}

// Registry exports the tracked state back into the caller-owned form.
func (t *ConflictTracker) Registry() models.SlotRegistry {
	t.mu.Lock()
	defer t.mu.Unlock()

	registry := make(models.SlotRegistry, len(t.slots))
	for studentID, entries := range t.slots {
		windows := make([]models.AvailabilityWindow, 0, len(entries))
		for _, entry := range entries {
			windows = append(windows, entry.Window)
		}
		registry[studentID] = windows
	}
	return registry
}

func (t *ConflictTracker) conflictsLocked(studentID string, window models.AvailabilityWindow) []committedSlot {
	var conflicts []committedSlot
	for _, entry := range t.slots[studentID] {
		if entry.Window.Overlaps(window) {
			conflicts = append(conflicts, entry)
		}
	}
	return conflicts
}
