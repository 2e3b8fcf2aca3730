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

// EvaluationHandler handles evaluation endpoints.
type EvaluationHandler struct {
	service *service.EvaluationService
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: svc}
}

// List godoc
// @Summary List evaluations
// @Description Teachers see their subjects' evaluations, students their enrolled subjects'.
// @Tags Evaluations
// @Produce json
// @Param subject_id query string false "Filter by subject"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.EvaluationFilter
	filter.SubjectID = c.Query("subject_id")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	evaluations, pagination, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, pagination)
}

// Get godoc
// @Summary Get evaluation by id
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evaluations/{id} [get]
func (h *EvaluationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	evaluation, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// Create godoc
// @Summary Create evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body service.CreateEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evaluations [post]
func (h *EvaluationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	evaluation, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evaluation)
}

// Update godoc
// @Summary Update evaluation
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param id path string true "Evaluation ID"
// @Param payload body service.UpdateEvaluationRequest true "Evaluation payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evaluations/{id} [put]
func (h *EvaluationHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	evaluation, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// Delete godoc
// @Summary Delete evaluation
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /evaluations/{id} [delete]
func (h *EvaluationHandler) Delete(c *gin.Context) {
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
