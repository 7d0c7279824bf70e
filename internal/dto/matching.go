package dto

import (
	"fmt"

	"github.com/noah-isme/study-match-api/internal/models"
)

// WindowInput is a weekly availability window expressed with clock strings.
type WindowInput struct {
	Day   int    `json:"day" validate:"min=0,max=6"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// ToModel converts the payload window to minute resolution.
func (w WindowInput) ToModel() (models.AvailabilityWindow, error) {
	start, err := models.ParseClock(w.Start)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}
	end, err := models.ParseClock(w.End)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}
	window := models.AvailabilityWindow{Day: w.Day, StartMinute: start, EndMinute: end}
	if err := window.Validate(); err != nil {
		return models.AvailabilityWindow{}, err
	}
	return window, nil
}

// WindowPayload renders a window back to clock strings.
type WindowPayload struct {
	Day     int    `json:"day"`
	DayName string `json:"dayName"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// NewWindowPayload builds the response form of a model window.
func NewWindowPayload(w models.AvailabilityWindow) WindowPayload {
	return WindowPayload{
		Day:     w.Day,
		DayName: models.DayName(w.Day),
		Start:   models.ClockString(w.StartMinute),
		End:     models.ClockString(w.EndMinute),
	}
}

// StudentInput is one student record inside a matching request.
type StudentInput struct {
	ID           string        `json:"id" validate:"required"`
	FullName     string        `json:"fullName"`
	Courses      []string      `json:"courses" validate:"required,min=1,dive,required"`
	WeakTopics   []string      `json:"weakTopics"`
	Availability []WindowInput `json:"availability" validate:"omitempty,dive"`
}

// ToModel converts the payload student into an engine snapshot record.
func (s StudentInput) ToModel() (models.Student, error) {
	windows := make([]models.AvailabilityWindow, 0, len(s.Availability))
	for _, raw := range s.Availability {
		window, err := raw.ToModel()
		if err != nil {
			return models.Student{}, fmt.Errorf("student %s: %w", s.ID, err)
		}
		windows = append(windows, window)
	}
	return models.Student{
		ID:           s.ID,
		FullName:     s.FullName,
		Courses:      s.Courses,
		WeakTopics:   s.WeakTopics,
		Availability: windows,
	}, nil
}

// MatchingOptions overrides engine configuration per request.
type MatchingOptions struct {
	MinGroupSize          *int   `json:"minGroupSize" validate:"omitempty,min=2"`
	MaxGroupSize          *int   `json:"maxGroupSize" validate:"omitempty,min=2"`
	AllowUndersizedGroups *bool  `json:"allowUndersizedGroups"`
	ScoringStrategy       string `json:"scoringStrategy" validate:"omitempty,oneof=shared complementary"`
	DeadlineMs            int    `json:"deadlineMs" validate:"omitempty,min=1"`
}

// RunMatchingRequest drives one engine invocation. Students may be posted
// inline or loaded from the stored cohort with source=db.
type RunMatchingRequest struct {
	Source      string          `json:"source" validate:"omitempty,oneof=payload db"`
	Students    []StudentInput  `json:"students" validate:"omitempty,dive"`
	Options     *MatchingOptions `json:"options" validate:"omitempty"`
	UseRegistry bool            `json:"useRegistry"`
}

// GroupPayload is the response form of one study group.
type GroupPayload struct {
	ID         string             `json:"id"`
	CourseID   string             `json:"courseId"`
	MemberIDs  []string           `json:"memberIds"`
	Meeting    *WindowPayload     `json:"meeting,omitempty"`
	Status     models.GroupStatus `json:"status"`
	Score      float64            `json:"score"`
	Undersized bool               `json:"undersized,omitempty"`
}

// UnmatchedPayload is the response form of one unmatched student.
type UnmatchedPayload struct {
	StudentID string               `json:"studentId"`
	CourseID  string               `json:"courseId"`
	Reason    models.UnmatchReason `json:"reason"`
}

// ConflictPayload is the response form of one detected conflict.
type ConflictPayload struct {
	StudentID string        `json:"studentId"`
	GroupIDs  []string      `json:"groupIds"`
	Window    WindowPayload `json:"window"`
}

// RunStatsPayload summarises a run for API consumers.
type RunStatsPayload struct {
	CoursesProcessed int     `json:"coursesProcessed"`
	GroupsFormed     int     `json:"groupsFormed"`
	StudentsPlaced   int     `json:"studentsPlaced"`
	ElapsedMs        float64 `json:"elapsedMs"`
}

// RunMatchingResponse returns the full outcome of a matching run.
type RunMatchingResponse struct {
	RunID     string             `json:"runId"`
	Groups    []GroupPayload     `json:"groups"`
	Unmatched []UnmatchedPayload `json:"unmatched"`
	Conflicts []ConflictPayload  `json:"conflicts"`
	Stats     RunStatsPayload    `json:"stats"`
}

// NewRunMatchingResponse maps an engine result into its response form.
func NewRunMatchingResponse(result *models.MatchingResult) *RunMatchingResponse {
	groups := make([]GroupPayload, 0, len(result.Groups))
	for _, group := range result.Groups {
		payload := GroupPayload{
			ID:         group.ID,
			CourseID:   group.CourseID,
			MemberIDs:  group.MemberIDs,
			Status:     group.Status,
			Score:      group.Score,
			Undersized: group.Undersized,
		}
		if group.Meeting != nil {
			meeting := NewWindowPayload(*group.Meeting)
			payload.Meeting = &meeting
		}
		groups = append(groups, payload)
	}

	unmatched := make([]UnmatchedPayload, 0, len(result.Unmatched))
	for _, entry := range result.Unmatched {
		unmatched = append(unmatched, UnmatchedPayload{
			StudentID: entry.StudentID,
			CourseID:  entry.CourseID,
			Reason:    entry.Reason,
		})
	}

	conflicts := make([]ConflictPayload, 0, len(result.Conflicts))
	for _, conflict := range result.Conflicts {
		conflicts = append(conflicts, ConflictPayload{
			StudentID: conflict.StudentID,
			GroupIDs:  conflict.GroupIDs,
			Window:    NewWindowPayload(conflict.Window),
		})
	}

	return &RunMatchingResponse{
		RunID:     result.RunID,
		Groups:    groups,
		Unmatched: unmatched,
		Conflicts: conflicts,
		Stats: RunStatsPayload{
			CoursesProcessed: result.Stats.CoursesProcessed,
			GroupsFormed:     result.Stats.GroupsFormed,
			StudentsPlaced:   result.Stats.StudentsPlaced,
			ElapsedMs:        float64(result.Stats.Elapsed.Microseconds()) / 1000,
		},
	}
}

// EnqueueRunResponse acknowledges an asynchronous run request.
type EnqueueRunResponse struct {
	RunID  string           `json:"runId"`
	Status models.RunStatus `json:"status"`
}

// RunListQuery filters persisted run summaries.
type RunListQuery struct {
	Status   string `form:"status" json:"status"`
	Page     int    `form:"page" json:"page"`
	PageSize int    `form:"pageSize" json:"pageSize"`
}

// RegistryEntryPayload lists one student's committed windows.
type RegistryEntryPayload struct {
	StudentID string          `json:"studentId"`
	Windows   []WindowPayload `json:"windows"`
}
