package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-match-api/internal/models"
)

func TestStudentRepositoryLoadCohort(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, full_name, active, created_at, updated_at FROM students WHERE active = true`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active", "created_at", "updated_at"}).
			AddRow("s1", "Alice Tan", true, now, now).
			AddRow("s2", "Budi Santoso", true, now, now))
	mock.ExpectQuery(`SELECT e.student_id, e.course_id FROM enrollments e`).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "course_id"}).
			AddRow("s1", "CS101").
			AddRow("s1", "MATH200").
			AddRow("s2", "CS101"))
	mock.ExpectQuery(`SELECT w.student_id, w.topic FROM weak_topics w`).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "topic"}).
			AddRow("s1", "recursion"))
	mock.ExpectQuery(`SELECT a.student_id, a.day_of_week, a.start_minute, a.end_minute FROM student_availability a`).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "day_of_week", "start_minute", "end_minute"}).
			AddRow("s1", 1, 540, 720).
			AddRow("s2", 1, 600, 780))

	students, err := repo.LoadCohort(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 2)

	assert.Equal(t, "s1", students[0].ID)
	assert.Equal(t, []string{"CS101", "MATH200"}, students[0].Courses)
	assert.Equal(t, []string{"recursion"}, students[0].WeakTopics)
	require.Len(t, students[0].Availability, 1)
	assert.Equal(t, models.AvailabilityWindow{Day: 1, StartMinute: 540, EndMinute: 720}, students[0].Availability[0])

	assert.Equal(t, "s2", students[1].ID)
	assert.Empty(t, students[1].WeakTopics)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryLoadCohortEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`SELECT id, full_name, active, created_at, updated_at FROM students WHERE active = true`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active", "created_at", "updated_at"}))

	students, err := repo.LoadCohort(context.Background())
	require.NoError(t, err)
	assert.Empty(t, students)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryLoadStudent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, full_name, active, created_at, updated_at FROM students WHERE id`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active", "created_at", "updated_at"}).
			AddRow("s1", "Alice Tan", true, now, now))
	mock.ExpectQuery(`SELECT course_id FROM enrollments WHERE student_id`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("CS101"))
	mock.ExpectQuery(`SELECT topic FROM weak_topics WHERE student_id`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"topic"}))
	mock.ExpectQuery(`SELECT student_id, day_of_week, start_minute, end_minute FROM student_availability WHERE student_id`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "day_of_week", "start_minute", "end_minute"}).
			AddRow("s1", 2, 840, 960))

	student, err := repo.LoadStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Tan", student.FullName)
	assert.Equal(t, []string{"CS101"}, student.Courses)
	require.Len(t, student.Availability, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryLoadStudentNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`SELECT id, full_name, active, created_at, updated_at FROM students WHERE id`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.LoadStudent(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListWithFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	active := true
	now := time.Now()
	mock.ExpectQuery(`SELECT DISTINCT s.id, s.full_name, s.active, s.created_at, s.updated_at FROM students s JOIN enrollments e ON e.student_id = s.id WHERE 1=1 AND e.course_id = \$1 AND s.active = \$2 AND LOWER\(s.full_name\) LIKE \$3 ORDER BY s.full_name ASC LIMIT 10 OFFSET 10`).
		WithArgs("CS101", true, "%alice%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active", "created_at", "updated_at"}).
			AddRow("s1", "Alice Tan", true, now, now))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT s.id\) FROM students s JOIN enrollments e`).
		WithArgs("CS101", true, "%alice%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	rows, total, err := repo.List(context.Background(), models.StudentFilter{
		Search:    "Alice",
		CourseID:  "CS101",
		Active:    &active,
		Page:      2,
		PageSize:  10,
		SortBy:    "full_name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 11, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListRejectsUnknownSort(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`ORDER BY s.created_at DESC LIMIT 20 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "active", "created_at", "updated_at"}))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT s.id\) FROM students s`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.StudentFilter{SortBy: "id; DROP TABLE students", SortOrder: "sideways"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	student := &models.Student{
		ID:         "s1",
		FullName:   "Alice Tan",
		Courses:    []string{"MATH200", "CS101"},
		WeakTopics: []string{"recursion"},
		Availability: []models.AvailabilityWindow{
			{Day: 1, StartMinute: 540, EndMinute: 720},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO students`).
		WithArgs("s1", "Alice Tan", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WithArgs("s1", "CS101").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WithArgs("s1", "MATH200").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO weak_topics`).
		WithArgs("s1", "recursion").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO student_availability`).
		WithArgs("s1", 1, 540, 720).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), student))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateAssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	student := &models.Student{FullName: "No ID", Courses: []string{"CS101"}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO students`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeactivate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStudentRepository(db)

	mock.ExpectExec(`UPDATE students SET active = false`).
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "s1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
