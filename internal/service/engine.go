package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

// engineConfig is the fully resolved configuration for one matching run.
type engineConfig struct {
	MinGroupSize    int
	MaxGroupSize    int
	AllowUndersized bool
	Scorer          compatibilityScorer
	Parallelism     int
	Deadline        time.Duration
}

// runEngine executes the full matching pipeline: validate, bucket by course,
// partition each pool, assign meeting slots and commit them through the
// conflict tracker. The input snapshot and prior registry are never mutated;
// the returned result carries the updated registry for the caller to keep.
func runEngine(ctx context.Context, students []models.Student, cfg engineConfig, prior models.SlotRegistry) (*models.MatchingResult, error) {
	started := time.Now()

	if cfg.MinGroupSize < 2 {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("minimum group size must be at least 2, got %d", cfg.MinGroupSize))
	}
	if cfg.MaxGroupSize < cfg.MinGroupSize {
		return nil, appErrors.Clone(appErrors.ErrInvalidConfig, fmt.Sprintf("maximum group size %d below minimum %d", cfg.MaxGroupSize, cfg.MinGroupSize))
	}
	if err := validateSnapshot(students); err != nil {
		return nil, err
	}
	if cfg.Scorer == nil {
		cfg.Scorer = sharedTopicScorer{}
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	buckets := make(map[string][]models.Student)
	for _, student := range students {
		for _, courseID := range student.Courses {
			buckets[courseID] = append(buckets[courseID], student)
		}
	}
	courses := make([]string, 0, len(buckets))
	for courseID := range buckets {
		courses = append(courses, courseID)
	}
	sort.Strings(courses)

	grouping := groupingConfig{
		MinSize:         cfg.MinGroupSize,
		MaxSize:         cfg.MaxGroupSize,
		AllowUndersized: cfg.AllowUndersized,
		Scorer:          cfg.Scorer,
	}

	// Course pools are independent until slot commit, so partitioning fans
	// out across workers; the commit phase below stays sequential in course
	// order to keep registry mutation deterministic.
	partitions := make([]coursePartition, len(courses))
	indexes := make(chan int)
	var wg sync.WaitGroup
	workers := cfg.Parallelism
	if workers > len(courses) {
		workers = len(courses)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				if ctx.Err() != nil {
					continue
				}
				partitions[idx] = partitionCourse(courses[idx], buckets[courses[idx]], grouping)
			}
		}()
	}
	for idx := range courses {
		indexes <- idx
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, appErrors.ErrTimeout.Message)
	}

	tracker := NewConflictTracker(prior)
	result := &models.MatchingResult{Registry: nil}

	for ci := range courses {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, appErrors.ErrTimeout.Message)
		}
		partition := partitions[ci]
		result.Unmatched = append(result.Unmatched, partition.Unmatched...)

		for _, candidate := range partition.Groups {
			group := models.Group{
				ID:         uuid.NewString(),
				CourseID:   partition.CourseID,
				Status:     models.GroupStatusFormed,
				Score:      candidate.Score,
				Undersized: candidate.Undersized,
			}
			for _, member := range candidate.Members {
				group.MemberIDs = append(group.MemberIDs, member.ID)
			}

			intersection := memberIntersection(candidate.Members)
			if len(intersection) == 0 {
				// Membership is still useful downstream, so the group is
				// returned rather than discarded; it never reaches the
				// conflict tracker.
				group.Status = models.GroupStatusNeedsTime
				result.Groups = append(result.Groups, group)
				continue
			}

			meeting := pickMeetingWindow(intersection)
			blocked, ok := tracker.CommitGroup(group.MemberIDs, *meeting, group.ID)
			if !ok {
				group.Status = models.GroupStatusRejected
				for _, memberID := range group.MemberIDs {
					result.Unmatched = append(result.Unmatched, models.UnmatchedStudent{
						StudentID: memberID,
						CourseID:  partition.CourseID,
						Reason:    models.UnmatchReasonTimeConflict,
					})
				}
				blockedIDs := make([]string, 0, len(blocked))
				for studentID := range blocked {
					blockedIDs = append(blockedIDs, studentID)
				}
				sort.Strings(blockedIDs)
				for _, studentID := range blockedIDs {
					report := models.ConflictReport{
						StudentID: studentID,
						GroupIDs:  []string{group.ID},
						Window:    *meeting,
					}
					for _, slot := range blocked[studentID] {
						if slot.GroupID != "" {
							report.GroupIDs = append(report.GroupIDs, slot.GroupID)
						}
					}
					result.Conflicts = append(result.Conflicts, report)
				}
				result.Groups = append(result.Groups, group)
				continue
			}

			group.Meeting = meeting
			result.Groups = append(result.Groups, group)
			result.Stats.GroupsFormed++
			result.Stats.StudentsPlaced += len(group.MemberIDs)
		}
	}

	result.Stats.CoursesProcessed = len(courses)
	result.Stats.Elapsed = time.Since(started)
	result.Registry = tracker.Registry()
	return result, nil
}

// validateSnapshot enforces the engine's input preconditions: unique
// non-empty IDs, at least one course per student, well-formed windows. A
// violation fails the whole run.
func validateSnapshot(students []models.Student) error {
	seen := make(map[string]struct{}, len(students))
	for _, student := range students {
		if student.ID == "" {
			return appErrors.Clone(appErrors.ErrInvalidInput, "student with empty identifier")
		}
		if _, dup := seen[student.ID]; dup {
			return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate student identifier %s", student.ID))
		}
		seen[student.ID] = struct{}{}
		if len(student.Courses) == 0 {
			return appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("student %s has no course enrollments", student.ID))
		}
		for _, window := range student.Availability {
			if err := window.Validate(); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, fmt.Sprintf("student %s has a malformed availability window", student.ID))
			}
		}
	}
	return nil
}
