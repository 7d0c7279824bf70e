package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, int, error)
	LoadStudent(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// StudentService handles student profile use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns student profiles and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student's full matching snapshot.
func (s *StudentService) Get(ctx context.Context, id string) (*dto.StudentPayload, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	student, err := s.repo.LoadStudent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return newStudentPayload(student), nil
}

// Create registers a student with enrollments, weak topics and availability.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*dto.StudentPayload, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	windows := make([]models.AvailabilityWindow, 0, len(req.Availability))
	for _, raw := range req.Availability {
		window, err := raw.ToModel()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("malformed availability window: %v", err))
		}
		windows = append(windows, window)
	}
	student := &models.Student{
		ID:           req.ID,
		FullName:     req.FullName,
		Courses:      req.Courses,
		WeakTopics:   req.WeakTopics,
		Availability: windows,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return newStudentPayload(student), nil
}

// Deactivate removes a student from future cohort loads.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}

func newStudentPayload(student *models.Student) *dto.StudentPayload {
	windows := make([]dto.WindowPayload, 0, len(student.Availability))
	for _, window := range student.Availability {
		windows = append(windows, dto.NewWindowPayload(window))
	}
	return &dto.StudentPayload{
		ID:           student.ID,
		FullName:     student.FullName,
		Active:       true,
		Courses:      student.Courses,
		WeakTopics:   student.WeakTopics,
		Availability: windows,
	}
}
