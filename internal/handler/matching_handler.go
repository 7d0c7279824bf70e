package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	"github.com/noah-isme/study-match-api/internal/service"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
	"github.com/noah-isme/study-match-api/pkg/response"
)

const maxRequestStudents = 5000

type matchingRunner interface {
	Run(ctx context.Context, req dto.RunMatchingRequest) (*dto.RunMatchingResponse, error)
	Enqueue(ctx context.Context, req dto.RunMatchingRequest) (*dto.EnqueueRunResponse, error)
	Get(ctx context.Context, runID string) (*dto.RunMatchingResponse, error)
	Status(ctx context.Context, runID string) (*models.MatchingRun, error)
	List(ctx context.Context, query dto.RunListQuery) ([]models.MatchingRun, *models.Pagination, error)
	RegistryEntries(ctx context.Context) ([]dto.RegistryEntryPayload, error)
	ReleaseStudent(ctx context.Context, studentID string) error
}

type RunExporter interface {
	ExportRun(ctx context.Context, runID, format string) (*service.ExportFile, error)
}

// MatchingHandler exposes matching run endpoints.
type MatchingHandler struct {
	service matchingRunner
	exports RunExporter
}

// NewMatchingHandler constructs the handler. The exporter may be nil when
// exports are disabled.
func NewMatchingHandler(service matchingRunner, exports RunExporter) *MatchingHandler {
	return &MatchingHandler{service: service, exports: exports}
}

// Run executes a matching run. With ?mode=async the run is queued and the
// response carries only the run id.
func (h *MatchingHandler) Run(c *gin.Context) {
	var req dto.RunMatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid matching payload"))
		return
	}
	if len(req.Students) > maxRequestStudents {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "students exceeds supported limit"))
		return
	}

	if c.Query("mode") == "async" {
		ack, err := h.service.Enqueue(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, ack)
		return
	}

	result, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get returns the full outcome of a run.
func (h *MatchingHandler) Get(c *gin.Context) {
	result, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status returns the bookkeeping record of a run, covering queued and
// failed runs that have no result.
func (h *MatchingHandler) Status(c *gin.Context) {
	run, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// List returns persisted run summaries.
func (h *MatchingHandler) List(c *gin.Context) {
	var query dto.RunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run query"))
		return
	}
	runs, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Export streams the roster of a run as CSV or PDF.
func (h *MatchingHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled"))
		return
	}
	file, err := h.exports.ExportRun(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}

// Registry lists every student's committed meeting windows.
func (h *MatchingHandler) Registry(c *gin.Context) {
	entries, err := h.service.RegistryEntries(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ReleaseStudent frees every slot committed for a student.
func (h *MatchingHandler) ReleaseStudent(c *gin.Context) {
	if err := h.service.ReleaseStudent(c.Request.Context(), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
