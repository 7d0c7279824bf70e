package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

type stubStudentRepo struct {
	rows       []models.StudentRow
	total      int
	listErr    error
	student    *models.Student
	loadErr    error
	created    *models.Student
	createErr  error
	deactivate []string
}

func (s *stubStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, int, error) {
	return s.rows, s.total, s.listErr
}

func (s *stubStudentRepo) LoadStudent(ctx context.Context, id string) (*models.Student, error) {
	return s.student, s.loadErr
}

func (s *stubStudentRepo) Create(ctx context.Context, student *models.Student) error {
	s.created = student
	return s.createErr
}

func (s *stubStudentRepo) Deactivate(ctx context.Context, id string) error {
	s.deactivate = append(s.deactivate, id)
	return nil
}

func TestStudentServiceList(t *testing.T) {
	repo := &stubStudentRepo{
		rows: []models.StudentRow{
			{ID: "s1", FullName: "Alice Tan", Active: true, CreatedAt: time.Now()},
		},
		total: 7,
	}
	svc := NewStudentService(repo, nil, nil)

	rows, pagination, err := svc.List(context.Background(), models.StudentFilter{Page: 0, PageSize: 0})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 7, pagination.TotalCount)
}

func TestStudentServiceGet(t *testing.T) {
	repo := &stubStudentRepo{student: &models.Student{
		ID:           "s1",
		FullName:     "Alice Tan",
		Courses:      []string{"CS101"},
		Availability: []models.AvailabilityWindow{window(1, 540, 600)},
	}}
	svc := NewStudentService(repo, nil, nil)

	payload, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", payload.ID)
	assert.True(t, payload.Active)
	require.Len(t, payload.Availability, 1)
	assert.Equal(t, "09:00", payload.Availability[0].Start)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	repo := &stubStudentRepo{loadErr: sql.ErrNoRows}
	svc := NewStudentService(repo, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceGetRequiresID(t *testing.T) {
	svc := NewStudentService(&stubStudentRepo{}, nil, nil)

	_, err := svc.Get(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreate(t *testing.T) {
	repo := &stubStudentRepo{}
	svc := NewStudentService(repo, nil, nil)

	payload, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		FullName: "Alice Tan",
		Courses:  []string{"CS101", "MATH200"},
		Availability: []dto.WindowInput{
			{Day: 2, Start: "14:00", End: "16:00"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, []string{"CS101", "MATH200"}, repo.created.Courses)
	require.Len(t, repo.created.Availability, 1)
	assert.Equal(t, window(2, 840, 960), repo.created.Availability[0])
	assert.Equal(t, "TUESDAY", payload.Availability[0].DayName)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	svc := NewStudentService(&stubStudentRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudentRequest{FullName: "No Courses"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), dto.CreateStudentRequest{
		FullName:     "Bad Window",
		Courses:      []string{"CS101"},
		Availability: []dto.WindowInput{{Day: 2, Start: "16:00", End: "14:00"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceCreateRepositoryError(t *testing.T) {
	repo := &stubStudentRepo{createErr: errors.New("boom")}
	svc := NewStudentService(repo, nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		FullName: "Alice Tan",
		Courses:  []string{"CS101"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDeactivate(t *testing.T) {
	repo := &stubStudentRepo{}
	svc := NewStudentService(repo, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, repo.deactivate)

	err := svc.Deactivate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
