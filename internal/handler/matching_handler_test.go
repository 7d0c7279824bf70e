package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	"github.com/noah-isme/study-match-api/internal/service"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
)

type matchingRunnerMock struct {
	runReq      dto.RunMatchingRequest
	runResp     *dto.RunMatchingResponse
	runErr      error
	enqueueResp *dto.EnqueueRunResponse
	enqueueErr  error
	getResp     *dto.RunMatchingResponse
	getErr      error
	statusResp  *models.MatchingRun
	statusErr   error
	listResp    []models.MatchingRun
	released    []string
	releaseErr  error
}

func (m *matchingRunnerMock) Run(ctx context.Context, req dto.RunMatchingRequest) (*dto.RunMatchingResponse, error) {
	m.runReq = req
	return m.runResp, m.runErr
}

func (m *matchingRunnerMock) Enqueue(ctx context.Context, req dto.RunMatchingRequest) (*dto.EnqueueRunResponse, error) {
	return m.enqueueResp, m.enqueueErr
}

func (m *matchingRunnerMock) Get(ctx context.Context, runID string) (*dto.RunMatchingResponse, error) {
	return m.getResp, m.getErr
}

func (m *matchingRunnerMock) Status(ctx context.Context, runID string) (*models.MatchingRun, error) {
	return m.statusResp, m.statusErr
}

func (m *matchingRunnerMock) List(ctx context.Context, query dto.RunListQuery) ([]models.MatchingRun, *models.Pagination, error) {
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *matchingRunnerMock) RegistryEntries(ctx context.Context) ([]dto.RegistryEntryPayload, error) {
	return []dto.RegistryEntryPayload{{StudentID: "s1"}}, nil
}

func (m *matchingRunnerMock) ReleaseStudent(ctx context.Context, studentID string) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.released = append(m.released, studentID)
	return nil
}

type runExporterMock struct {
	file *service.ExportFile
	err  error
}

func (m *runExporterMock) ExportRun(ctx context.Context, runID, format string) (*service.ExportFile, error) {
	return m.file, m.err
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func runPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(dto.RunMatchingRequest{
		Students: []dto.StudentInput{
			{ID: "s1", Courses: []string{"CS101"}},
			{ID: "s2", Courses: []string{"CS101"}},
			{ID: "s3", Courses: []string{"CS101"}},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestMatchingHandlerRunSync(t *testing.T) {
	mockSvc := &matchingRunnerMock{runResp: &dto.RunMatchingResponse{RunID: "run-1"}}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodPost, "/matching/runs", runPayload(t))

	handler.Run(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, mockSvc.runReq.Students, 3)
	assert.Contains(t, w.Body.String(), `"runId":"run-1"`)
}

func TestMatchingHandlerRunAsync(t *testing.T) {
	mockSvc := &matchingRunnerMock{enqueueResp: &dto.EnqueueRunResponse{RunID: "run-2", Status: models.RunStatusPending}}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodPost, "/matching/runs?mode=async", runPayload(t))

	handler.Run(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"runId":"run-2"`)
}

func TestMatchingHandlerRunBadPayload(t *testing.T) {
	handler := NewMatchingHandler(&matchingRunnerMock{}, nil)
	c, w := testContext(t, http.MethodPost, "/matching/runs", []byte(`{"students":`))

	handler.Run(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchingHandlerRunTooManyStudents(t *testing.T) {
	students := make([]dto.StudentInput, maxRequestStudents+1)
	for i := range students {
		students[i] = dto.StudentInput{ID: "s", Courses: []string{"CS101"}}
	}
	payload, err := json.Marshal(dto.RunMatchingRequest{Students: students})
	require.NoError(t, err)

	handler := NewMatchingHandler(&matchingRunnerMock{}, nil)
	c, w := testContext(t, http.MethodPost, "/matching/runs", payload)

	handler.Run(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchingHandlerRunServiceError(t *testing.T) {
	mockSvc := &matchingRunnerMock{runErr: appErrors.Clone(appErrors.ErrInvalidInput, "duplicate student identifier s1")}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodPost, "/matching/runs", runPayload(t))

	handler.Run(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")
}

func TestMatchingHandlerGet(t *testing.T) {
	mockSvc := &matchingRunnerMock{getResp: &dto.RunMatchingResponse{RunID: "run-1"}}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodGet, "/matching/runs/run-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestMatchingHandlerGetNotFound(t *testing.T) {
	mockSvc := &matchingRunnerMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "matching run not found or expired")}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodGet, "/matching/runs/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchingHandlerStatus(t *testing.T) {
	mockSvc := &matchingRunnerMock{statusResp: &models.MatchingRun{ID: "run-1", Status: models.RunStatusRunning}}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodGet, "/matching/runs/run-1/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"running"`)
}

func TestMatchingHandlerList(t *testing.T) {
	mockSvc := &matchingRunnerMock{listResp: []models.MatchingRun{{ID: "run-1"}, {ID: "run-2"}}}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodGet, "/matching/runs?status=completed&page=1", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":2`)
}

func TestMatchingHandlerExportDisabled(t *testing.T) {
	handler := NewMatchingHandler(&matchingRunnerMock{}, nil)
	c, w := testContext(t, http.MethodGet, "/matching/runs/run-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Export(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestMatchingHandlerExport(t *testing.T) {
	exporter := &runExporterMock{file: &service.ExportFile{
		Filename:    "matching_run_run-1.csv",
		ContentType: "text/csv",
		Payload:     []byte("Student ID\n"),
	}}
	handler := NewMatchingHandler(&matchingRunnerMock{}, exporter)
	c, w := testContext(t, http.MethodGet, "/matching/runs/run-1/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "run-1"}}

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="matching_run_run-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student ID\n", w.Body.String())
}

func TestMatchingHandlerRegistry(t *testing.T) {
	handler := NewMatchingHandler(&matchingRunnerMock{}, nil)
	c, w := testContext(t, http.MethodGet, "/matching/registry", nil)

	handler.Registry(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"studentId":"s1"`)
}

func TestMatchingHandlerReleaseStudent(t *testing.T) {
	mockSvc := &matchingRunnerMock{}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodDelete, "/matching/registry/s1", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "s1"}}

	handler.ReleaseStudent(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"s1"}, mockSvc.released)
}

func TestMatchingHandlerReleaseStudentNotFound(t *testing.T) {
	mockSvc := &matchingRunnerMock{releaseErr: appErrors.Clone(appErrors.ErrNotFound, "student has no committed windows")}
	handler := NewMatchingHandler(mockSvc, nil)
	c, w := testContext(t, http.MethodDelete, "/matching/registry/s9", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "s9"}}

	handler.ReleaseStudent(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}
