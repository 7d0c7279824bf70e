package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-match-api/internal/models"
)

// StudentRepository manages persistence for student profiles and the
// enrollment, weak topic and availability rows hanging off them.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// LoadCohort assembles the full matching snapshot for every active student.
func (r *StudentRepository) LoadCohort(ctx context.Context) ([]models.Student, error) {
	var rows []models.StudentRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, full_name, active, created_at, updated_at FROM students WHERE active = true ORDER BY id`); err != nil {
		return nil, fmt.Errorf("load cohort students: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var enrollments []models.EnrollmentRow
	if err := r.db.SelectContext(ctx, &enrollments, `SELECT e.student_id, e.course_id FROM enrollments e JOIN students s ON s.id = e.student_id WHERE s.active = true ORDER BY e.student_id, e.course_id`); err != nil {
		return nil, fmt.Errorf("load cohort enrollments: %w", err)
	}
	var topics []models.WeakTopicRow
	if err := r.db.SelectContext(ctx, &topics, `SELECT w.student_id, w.topic FROM weak_topics w JOIN students s ON s.id = w.student_id WHERE s.active = true ORDER BY w.student_id, w.topic`); err != nil {
		return nil, fmt.Errorf("load cohort weak topics: %w", err)
	}
	var windows []models.StudentAvailabilityRow
	if err := r.db.SelectContext(ctx, &windows, `SELECT a.student_id, a.day_of_week, a.start_minute, a.end_minute FROM student_availability a JOIN students s ON s.id = a.student_id WHERE s.active = true ORDER BY a.student_id, a.day_of_week, a.start_minute`); err != nil {
		return nil, fmt.Errorf("load cohort availability: %w", err)
	}

	courseMap := make(map[string][]string)
	for _, e := range enrollments {
		courseMap[e.StudentID] = append(courseMap[e.StudentID], e.CourseID)
	}
	topicMap := make(map[string][]string)
	for _, t := range topics {
		topicMap[t.StudentID] = append(topicMap[t.StudentID], t.Topic)
	}
	windowMap := make(map[string][]models.AvailabilityWindow)
	for _, w := range windows {
		windowMap[w.StudentID] = append(windowMap[w.StudentID], models.AvailabilityWindow{
			Day:         w.DayOfWeek,
			StartMinute: w.StartMinute,
			EndMinute:   w.EndMinute,
		})
	}

	students := make([]models.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, models.Student{
			ID:           row.ID,
			FullName:     row.FullName,
			Courses:      courseMap[row.ID],
			WeakTopics:   topicMap[row.ID],
			Availability: windowMap[row.ID],
		})
	}
	return students, nil
}

// LoadStudent assembles the matching snapshot for a single student.
func (r *StudentRepository) LoadStudent(ctx context.Context, id string) (*models.Student, error) {
	var row models.StudentRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, full_name, active, created_at, updated_at FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	var courses []string
	if err := r.db.SelectContext(ctx, &courses, `SELECT course_id FROM enrollments WHERE student_id = $1 ORDER BY course_id`, id); err != nil {
		return nil, fmt.Errorf("load student enrollments: %w", err)
	}
	var topics []string
	if err := r.db.SelectContext(ctx, &topics, `SELECT topic FROM weak_topics WHERE student_id = $1 ORDER BY topic`, id); err != nil {
		return nil, fmt.Errorf("load student weak topics: %w", err)
	}
	var windowRows []models.StudentAvailabilityRow
	if err := r.db.SelectContext(ctx, &windowRows, `SELECT student_id, day_of_week, start_minute, end_minute FROM student_availability WHERE student_id = $1 ORDER BY day_of_week, start_minute`, id); err != nil {
		return nil, fmt.Errorf("load student availability: %w", err)
	}
	windows := make([]models.AvailabilityWindow, 0, len(windowRows))
	for _, w := range windowRows {
		windows = append(windows, models.AvailabilityWindow{Day: w.DayOfWeek, StartMinute: w.StartMinute, EndMinute: w.EndMinute})
	}
	return &models.Student{
		ID:           row.ID,
		FullName:     row.FullName,
		Courses:      courses,
		WeakTopics:   topics,
		Availability: windows,
	}, nil
}

// List returns student profiles matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, int, error) {
	base := "FROM students s"
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.CourseID != "" {
		base += " JOIN enrollments e ON e.student_id = s.id"
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":  "s.full_name",
		"created_at": "s.created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT DISTINCT s.id, s.full_name, s.active, s.created_at, s.updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var students []models.StudentRow
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create inserts a student profile with its enrollments, weak topics and
// availability windows in one transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create student: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO students (id, full_name, active, created_at, updated_at) VALUES ($1, $2, true, $3, $3)`, student.ID, student.FullName, now); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	courses := append([]string(nil), student.Courses...)
	sort.Strings(courses)
	for _, courseID := range courses {
		if _, err = tx.ExecContext(ctx, `INSERT INTO enrollments (student_id, course_id) VALUES ($1, $2)`, student.ID, courseID); err != nil {
			return fmt.Errorf("create enrollment: %w", err)
		}
	}
	for _, topic := range student.WeakTopics {
		if _, err = tx.ExecContext(ctx, `INSERT INTO weak_topics (student_id, topic) VALUES ($1, $2)`, student.ID, topic); err != nil {
			return fmt.Errorf("create weak topic: %w", err)
		}
	}
	for _, window := range student.Availability {
		if _, err = tx.ExecContext(ctx, `INSERT INTO student_availability (student_id, day_of_week, start_minute, end_minute) VALUES ($1, $2, $3, $4)`, student.ID, window.Day, window.StartMinute, window.EndMinute); err != nil {
			return fmt.Errorf("create availability window: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create student: %w", err)
	}
	return nil
}

// Deactivate marks a student inactive so future cohort loads skip them.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
