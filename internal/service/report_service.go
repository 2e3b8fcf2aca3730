package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/policy"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
	"github.com/noah-isme/school-control-api/pkg/export"
)

type subjectGradeLister interface {
	ListBySubject(ctx context.Context, subjectID string) ([]models.GradeDetail, error)
}

// Report is a rendered export ready to be served as a download.
type Report struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ReportService renders subject grade sheets as CSV or PDF.
type ReportService struct {
	subjects subjectReader
	grades   subjectGradeLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
	metrics  *MetricsService
}

// NewReportService constructs ReportService.
func NewReportService(subjects subjectReader, grades subjectGradeLister, logger *zap.Logger, metrics *MetricsService) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		subjects: subjects,
		grades:   grades,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		metrics:  metrics,
	}
}

// SubjectGradeReport builds the grade sheet for a subject. Admin or the
// owning teacher. One row per grade plus a per-student average row; the
// average is unweighted across the student's recorded grades.
func (s *ReportService) SubjectGradeReport(ctx context.Context, actor policy.Actor, subjectID, format string) (*Report, error) {
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceGrade, factsFromSubject(subject)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceGrade, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to export grades for this subject")
	}

	start := time.Now()
	grades, err := s.grades.ListBySubject(ctx, subjectID)
	s.metrics.ObserveDBQuery("grades_list_by_subject", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject grades")
	}

	dataset := buildGradeDataset(grades)
	title := fmt.Sprintf("Grade Report - %s", subject.Name)

	var content []byte
	var contentType, ext string
	switch format {
	case "csv":
		content, err = s.csv.Render(dataset)
		contentType, ext = "text/csv", "csv"
	case "pdf":
		content, err = s.pdf.Render(dataset, title)
		contentType, ext = "application/pdf", "pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	s.logger.Info("subject grade report rendered",
		zap.String("subject_id", subjectID),
		zap.String("format", format),
		zap.Int("grades", len(grades)))

	return &Report{
		Content:     content,
		ContentType: contentType,
		Filename:    fmt.Sprintf("grade-report-%s.%s", subjectID, ext),
	}, nil
}

func buildGradeDataset(grades []models.GradeDetail) export.Dataset {
	headers := []string{"Student", "Email", "Evaluation", "Score", "Graded At"}
	rows := make([]map[string]string, 0, len(grades))

	type bucket struct {
		name  string
		email string
		sum   float64
		count int
	}
	totals := make(map[string]*bucket)
	var order []string

	for _, g := range grades {
		rows = append(rows, map[string]string{
			"Student":    g.StudentName,
			"Email":      g.StudentEmail,
			"Evaluation": g.EvaluationName,
			"Score":      formatScore(g.Score),
			"Graded At":  g.CreatedAt.UTC().Format("2006-01-02 15:04"),
		})
		b, ok := totals[g.StudentID]
		if !ok {
			b = &bucket{name: g.StudentName, email: g.StudentEmail}
			totals[g.StudentID] = b
			order = append(order, g.StudentID)
		}
		b.sum += g.Score
		b.count++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return totals[order[i]].name < totals[order[j]].name
	})
	for _, id := range order {
		b := totals[id]
		rows = append(rows, map[string]string{
			"Student":    b.name,
			"Email":      b.email,
			"Evaluation": "AVERAGE",
			"Score":      formatScore(b.sum / float64(b.count)),
		})
	}

	return export.Dataset{Headers: headers, Rows: rows}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}
