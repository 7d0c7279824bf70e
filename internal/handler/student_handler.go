package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-match-api/internal/dto"
	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
	"github.com/noah-isme/study-match-api/pkg/response"
)

type studentManager interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentRow, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.StudentPayload, error)
	Create(ctx context.Context, req dto.CreateStudentRequest) (*dto.StudentPayload, error)
	Deactivate(ctx context.Context, id string) error
}

// StudentHandler exposes student profile endpoints.
type StudentHandler struct {
	service studentManager
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service studentManager) *StudentHandler {
	return &StudentHandler{service: service}
}

// List returns student profiles with pagination.
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:    c.Query("search"),
		CourseID:  c.Query("courseId"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
			return
		}
		filter.Active = &active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	students, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get returns a student's full matching snapshot.
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create registers a student profile.
func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Deactivate removes a student from future cohort loads.
func (h *StudentHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
