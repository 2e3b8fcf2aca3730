package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-control-api/internal/service"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
	"github.com/noah-isme/school-control-api/pkg/response"
)

// ReportHandler serves grade sheet exports.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// SubjectGrades godoc
// @Summary Export subject grade sheet
// @Description Renders all grades for a subject, with per-student averages, as CSV or PDF.
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Subject ID"
// @Param format query string false "Export format (csv or pdf)" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id}/report [get]
func (h *ReportHandler) SubjectGrades(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "csv")
	report, err := h.service.SubjectGradeReport(c.Request.Context(), actor, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+report.Filename)
	c.Data(200, report.ContentType, report.Content)
}
