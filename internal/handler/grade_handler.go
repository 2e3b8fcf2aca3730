package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/service"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
	"github.com/noah-isme/school-control-api/pkg/response"
)

// GradeHandler handles grade endpoints.
type GradeHandler struct {
	service *service.GradeService
}

// NewGradeHandler constructs a grade handler.
func NewGradeHandler(svc *service.GradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// List godoc
// @Summary List grades
// @Description Teachers see grades for their subjects, students only their own.
// @Tags Grades
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param evaluation_id query string false "Filter by evaluation"
// @Param subject_id query string false "Filter by subject"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.GradeFilter
	filter.StudentID = c.Query("student_id")
	filter.EvaluationID = c.Query("evaluation_id")
	filter.SubjectID = c.Query("subject_id")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	grades, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, pagination)
}

// Get godoc
// @Summary Get grade by id
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	grade, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Create godoc
// @Summary Record grade
// @Description Records a score between 0.0 and 5.0 for a student on an evaluation.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Update godoc
// @Summary Update grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
