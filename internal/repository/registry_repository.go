package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-match-api/internal/models"
)

// RegistryRepository persists the slot registry, the cross-run record of
// every student's committed meeting windows.
type RegistryRepository struct {
	db *sqlx.DB
}

// NewRegistryRepository constructs a RegistryRepository.
func NewRegistryRepository(db *sqlx.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// Load reads the full registry.
func (r *RegistryRepository) Load(ctx context.Context) (models.SlotRegistry, error) {
	var rows []models.CommittedSlotRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT student_id, group_id, day_of_week, start_minute, end_minute FROM committed_slots ORDER BY student_id, day_of_week, start_minute`); err != nil {
		return nil, fmt.Errorf("load committed slots: %w", err)
	}
	registry := models.NewSlotRegistry()
	for _, row := range rows {
		registry.Add(row.StudentID, models.AvailabilityWindow{
			Day:         row.DayOfWeek,
			StartMinute: row.StartMinute,
			EndMinute:   row.EndMinute,
		})
	}
	return registry, nil
}

// ReplaceAll swaps the stored registry for the provided one in a single
// transaction.
func (r *RegistryRepository) ReplaceAll(ctx context.Context, registry models.SlotRegistry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registry replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM committed_slots`); err != nil {
		return fmt.Errorf("clear committed slots: %w", err)
	}

	studentIDs := make([]string, 0, len(registry))
	for studentID := range registry {
		studentIDs = append(studentIDs, studentID)
	}
	sort.Strings(studentIDs)
	for _, studentID := range studentIDs {
		for _, window := range registry[studentID] {
			if _, err = tx.ExecContext(ctx, `INSERT INTO committed_slots (student_id, group_id, day_of_week, start_minute, end_minute) VALUES ($1, '', $2, $3, $4)`, studentID, window.Day, window.StartMinute, window.EndMinute); err != nil {
				return fmt.Errorf("insert committed slot: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registry replace: %w", err)
	}
	return nil
}

// ReleaseStudent drops every committed slot held for a student. Returns
// sql.ErrNoRows when the student holds none.
func (r *RegistryRepository) ReleaseStudent(ctx context.Context, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM committed_slots WHERE student_id = $1`, studentID)
	if err != nil {
		return fmt.Errorf("release committed slots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release committed slots: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
