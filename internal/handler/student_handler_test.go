package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

type studentManagerMock struct {
	filter      models.StudentFilter
	rows        []models.StudentRow
	payload     *dto.StudentPayload
	getErr      error
	createReq   dto.CreateStudentRequest
	createErr   error
	deactivated []string
}

func (m *studentManagerMock) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, *models.Pagination, error) {
	m.filter = filter
	return m.rows, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.rows)}, nil
}

func (m *studentManagerMock) Get(ctx context.Context, id string) (*dto.StudentPayload, error) {
	return m.payload, m.getErr
}

func (m *studentManagerMock) Create(ctx context.Context, req dto.CreateStudentRequest) (*dto.StudentPayload, error) {
	m.createReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &dto.StudentPayload{ID: "s1", FullName: req.FullName, Active: true}, nil
}

func (m *studentManagerMock) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func TestStudentHandlerList(t *testing.T) {
	mockSvc := &studentManagerMock{rows: []models.StudentRow{{ID: "s1", FullName: "Alice Tan", Active: true}}}
	handler := NewStudentHandler(mockSvc)
	c, w := testContext(t, http.MethodGet, "/students?search=alice&courseId=CS101&active=true&page=2&pageSize=10&sortBy=full_name&sortOrder=asc", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", mockSvc.filter.Search)
	assert.Equal(t, "CS101", mockSvc.filter.CourseID)
	require.NotNil(t, mockSvc.filter.Active)
	assert.True(t, *mockSvc.filter.Active)
	assert.Equal(t, 2, mockSvc.filter.Page)
	assert.Equal(t, 10, mockSvc.filter.PageSize)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestStudentHandlerListBadActive(t *testing.T) {
	handler := NewStudentHandler(&studentManagerMock{})
	c, w := testContext(t, http.MethodGet, "/students?active=maybe", nil)

	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerGet(t *testing.T) {
	mockSvc := &studentManagerMock{payload: &dto.StudentPayload{ID: "s1", FullName: "Alice Tan", Active: true}}
	handler := NewStudentHandler(mockSvc)
	c, w := testContext(t, http.MethodGet, "/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fullName":"Alice Tan"`)
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	mockSvc := &studentManagerMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	handler := NewStudentHandler(mockSvc)
	c, w := testContext(t, http.MethodGet, "/students/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	mockSvc := &studentManagerMock{}
	handler := NewStudentHandler(mockSvc)
	payload, err := json.Marshal(dto.CreateStudentRequest{
		FullName: "Alice Tan",
		Courses:  []string{"CS101"},
	})
	require.NoError(t, err)
	c, w := testContext(t, http.MethodPost, "/students", payload)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Alice Tan", mockSvc.createReq.FullName)
}

func TestStudentHandlerCreateBadPayload(t *testing.T) {
	handler := NewStudentHandler(&studentManagerMock{})
	c, w := testContext(t, http.MethodPost, "/students", []byte(`{"fullName":`))

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateValidationError(t *testing.T) {
	mockSvc := &studentManagerMock{createErr: appErrors.Clone(appErrors.ErrValidation, "invalid student payload")}
	handler := NewStudentHandler(mockSvc)
	c, w := testContext(t, http.MethodPost, "/students", []byte(`{"fullName":"No Courses"}`))

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestStudentHandlerDeactivate(t *testing.T) {
	mockSvc := &studentManagerMock{}
	handler := NewStudentHandler(mockSvc)
	c, w := testContext(t, http.MethodDelete, "/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.Deactivate(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"s1"}, mockSvc.deactivated)
}
