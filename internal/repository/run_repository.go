package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/study-match-api/internal/models"
)

// RunRepository persists matching runs and their full results.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs a RunRepository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

type runRow struct {
	models.MatchingRun
	CoursesProcessed int   `db:"courses_processed"`
	GroupsFormed     int   `db:"groups_formed"`
	StudentsPlaced   int   `db:"students_placed"`
	ElapsedNs        int64 `db:"elapsed_ns"`
}

type conflictRow struct {
	RunID       string         `db:"run_id"`
	StudentID   string         `db:"student_id"`
	GroupIDs    pq.StringArray `db:"group_ids"`
	DayOfWeek   int            `db:"day_of_week"`
	StartMinute int            `db:"start_minute"`
	EndMinute   int            `db:"end_minute"`
}

type unmatchedRow struct {
	RunID     string               `db:"run_id"`
	StudentID string               `db:"student_id"`
	CourseID  string               `db:"course_id"`
	Reason    models.UnmatchReason `db:"reason"`
}

// SaveResult stores the run summary and every group, member, unmatched entry
// and conflict in one transaction.
func (r *RunRepository) SaveResult(ctx context.Context, run models.MatchingRun, result *models.MatchingResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO matching_runs
		(id, status, student_count, group_count, unmatched_count, conflict_count, failure_code, requested_at, completed_at, courses_processed, groups_formed, students_placed, elapsed_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.Status, run.StudentCount, run.GroupCount, run.UnmatchedCount, run.ConflictCount,
		run.FailureCode, run.RequestedAt, run.CompletedAt,
		result.Stats.CoursesProcessed, result.Stats.GroupsFormed, result.Stats.StudentsPlaced, result.Stats.Elapsed.Nanoseconds(),
	); err != nil {
		return fmt.Errorf("insert matching run: %w", err)
	}

	for _, group := range result.Groups {
		var day, start, end *int
		if group.Meeting != nil {
			day, start, end = &group.Meeting.Day, &group.Meeting.StartMinute, &group.Meeting.EndMinute
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO matching_groups
			(id, run_id, course_id, status, score, undersized, meeting_day, meeting_start, meeting_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			group.ID, run.ID, group.CourseID, group.Status, group.Score, group.Undersized, day, start, end,
		); err != nil {
			return fmt.Errorf("insert matching group: %w", err)
		}
		for position, studentID := range group.MemberIDs {
			if _, err = tx.ExecContext(ctx, `INSERT INTO matching_group_members (group_id, student_id, position) VALUES ($1, $2, $3)`,
				group.ID, studentID, position,
			); err != nil {
				return fmt.Errorf("insert group member: %w", err)
			}
		}
	}

	for _, entry := range result.Unmatched {
		if _, err = tx.ExecContext(ctx, `INSERT INTO matching_unmatched (run_id, student_id, course_id, reason) VALUES ($1, $2, $3, $4)`,
			run.ID, entry.StudentID, entry.CourseID, entry.Reason,
		); err != nil {
			return fmt.Errorf("insert unmatched entry: %w", err)
		}
	}

	for _, conflict := range result.Conflicts {
		if _, err = tx.ExecContext(ctx, `INSERT INTO matching_conflicts (run_id, student_id, group_ids, day_of_week, start_minute, end_minute) VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, conflict.StudentID, pq.StringArray(conflict.GroupIDs), conflict.Window.Day, conflict.Window.StartMinute, conflict.Window.EndMinute,
		); err != nil {
			return fmt.Errorf("insert conflict report: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

// FindByID fetches a run summary.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.MatchingRun, error) {
	var row models.MatchingRun
	if err := r.db.GetContext(ctx, &row, `SELECT id, status, student_count, group_count, unmatched_count, conflict_count, failure_code, requested_at, completed_at FROM matching_runs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns run summaries, newest first.
func (r *RunRepository) List(ctx context.Context, filter models.RunFilter) ([]models.MatchingRun, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, status, student_count, group_count, unmatched_count, conflict_count, failure_code, requested_at, completed_at
		FROM matching_runs WHERE %s ORDER BY requested_at DESC LIMIT %d OFFSET %d`, where, size, offset)

	var runs []models.MatchingRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list matching runs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM matching_runs WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count matching runs: %w", err)
	}
	return runs, total, nil
}

// LoadResult reconstructs the full result of a persisted run.
func (r *RunRepository) LoadResult(ctx context.Context, id string) (*models.MatchingResult, error) {
	var run runRow
	if err := r.db.GetContext(ctx, &run, `SELECT id, status, student_count, group_count, unmatched_count, conflict_count, failure_code, requested_at, completed_at, courses_processed, groups_formed, students_placed, elapsed_ns FROM matching_runs WHERE id = $1`, id); err != nil {
		return nil, err
	}

	var groupRows []models.GroupRow
	if err := r.db.SelectContext(ctx, &groupRows, `SELECT id, run_id, course_id, status, score, undersized, meeting_day, meeting_start, meeting_end FROM matching_groups WHERE run_id = $1 ORDER BY course_id, id`, id); err != nil {
		return nil, fmt.Errorf("load matching groups: %w", err)
	}
	var memberRows []models.GroupMemberRow
	if err := r.db.SelectContext(ctx, &memberRows, `SELECT m.group_id, m.student_id, m.position FROM matching_group_members m JOIN matching_groups g ON g.id = m.group_id WHERE g.run_id = $1 ORDER BY m.group_id, m.position`, id); err != nil {
		return nil, fmt.Errorf("load group members: %w", err)
	}
	members := make(map[string][]string)
	for _, row := range memberRows {
		members[row.GroupID] = append(members[row.GroupID], row.StudentID)
	}

	groups := make([]models.Group, 0, len(groupRows))
	for _, row := range groupRows {
		group := models.Group{
			ID:         row.ID,
			CourseID:   row.CourseID,
			MemberIDs:  members[row.ID],
			Status:     row.Status,
			Score:      row.Score,
			Undersized: row.Undersized,
		}
		if row.MeetingDay != nil && row.MeetingFrom != nil && row.MeetingTo != nil {
			group.Meeting = &models.AvailabilityWindow{Day: *row.MeetingDay, StartMinute: *row.MeetingFrom, EndMinute: *row.MeetingTo}
		}
		groups = append(groups, group)
	}

	var unmatchedRows []unmatchedRow
	if err := r.db.SelectContext(ctx, &unmatchedRows, `SELECT run_id, student_id, course_id, reason FROM matching_unmatched WHERE run_id = $1 ORDER BY course_id, student_id`, id); err != nil {
		return nil, fmt.Errorf("load unmatched entries: %w", err)
	}
	unmatched := make([]models.UnmatchedStudent, 0, len(unmatchedRows))
	for _, row := range unmatchedRows {
		unmatched = append(unmatched, models.UnmatchedStudent{StudentID: row.StudentID, CourseID: row.CourseID, Reason: row.Reason})
	}

	var conflictRows []conflictRow
	if err := r.db.SelectContext(ctx, &conflictRows, `SELECT run_id, student_id, group_ids, day_of_week, start_minute, end_minute FROM matching_conflicts WHERE run_id = $1 ORDER BY student_id`, id); err != nil {
		return nil, fmt.Errorf("load conflict reports: %w", err)
	}
	conflicts := make([]models.ConflictReport, 0, len(conflictRows))
	for _, row := range conflictRows {
		conflicts = append(conflicts, models.ConflictReport{
			StudentID: row.StudentID,
			GroupIDs:  []string(row.GroupIDs),
			Window:    models.AvailabilityWindow{Day: row.DayOfWeek, StartMinute: row.StartMinute, EndMinute: row.EndMinute},
		})
	}

	return &models.MatchingResult{
		RunID:     run.ID,
		Groups:    groups,
		Unmatched: unmatched,
		Conflicts: conflicts,
		Stats: models.RunStats{
			CoursesProcessed: run.CoursesProcessed,
			GroupsFormed:     run.GroupsFormed,
			StudentsPlaced:   run.StudentsPlaced,
			Elapsed:          time.Duration(run.ElapsedNs),
		},
	}, nil
}
