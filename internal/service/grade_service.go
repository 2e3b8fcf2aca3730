package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/policy"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type gradeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

type evaluationDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EvaluationDetail, error)
}

// CreateGradeRequest describes grade creation payload. Scores live in [0, 5].
type CreateGradeRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	EvaluationID string  `json:"evaluation_id" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0,lte=5"`
}

// UpdateGradeRequest describes the partial grade update payload.
type UpdateGradeRequest struct {
	Score *float64 `json:"score,omitempty" validate:"omitempty,gte=0,lte=5"`
}

// GradeService orchestrates grade workflows along the ownership chain
// grade -> evaluation -> subject -> teacher.
type GradeService struct {
	repo        gradeRepository
	evaluations evaluationDetailReader
	users       userReader
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, evaluations evaluationDetailReader, users userReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, evaluations: evaluations, users: users, validator: validate, logger: logger, metrics: metrics}
}

// List returns grades scoped to the actor: admins see everything, teachers
// their subjects' grades, students only their own regardless of filters.
func (s *GradeService) List(ctx context.Context, actor policy.Actor, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleStudent:
		filter.StudentID = actor.ID
		filter.TeacherID = ""
	}

	start := time.Now()
	grades, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("grades_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single grade with its expansions. Admin, the owning teacher,
// or the graded student.
func (s *GradeService) Get(ctx context.Context, actor policy.Actor, id string) (*models.GradeDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceGrade, factsFromGrade(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceGrade, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this grade")
	}
	return detail, nil
}

// Create records a grade. The score is validated before any lookup or
// mutation; the evaluation must exist before the permission decision runs.
func (s *GradeService) Create(ctx context.Context, actor policy.Actor, req CreateGradeRequest) (*models.GradeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "score must be between 0.0 and 5.0")
	}

	evaluation, err := s.evaluations.FindDetailByID(ctx, req.EvaluationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}

	if d := policy.Decide(actor, policy.ActionCreate, policy.ResourceGrade, factsFromEvaluation(evaluation)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceGrade, policy.ActionCreate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to grade this subject")
	}

	if _, err := s.users.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	grade := &models.Grade{StudentID: req.StudentID, EvaluationID: req.EvaluationID, Score: req.Score}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create grade")
	}

	detail, err := s.repo.FindDetailByID(ctx, grade.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return detail, nil
}

// Update applies a partial update. Out-of-range scores fail validation and
// leave the stored score untouched.
func (s *GradeService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateGradeRequest) (*models.GradeDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionUpdate, policy.ResourceGrade, factsFromGrade(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceGrade, policy.ActionUpdate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this grade")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "score must be between 0.0 and 5.0")
	}

	grade := detail.Grade
	if req.Score != nil {
		grade.Score = *req.Score
	}

	if err := s.repo.Update(ctx, &grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update grade")
	}

	updated, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade detail")
	}
	return updated, nil
}

// Delete removes a grade. Admin or the subject's owning teacher.
func (s *GradeService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return err
	}
	if d := policy.Decide(actor, policy.ActionDelete, policy.ResourceGrade, factsFromGrade(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceGrade, policy.ActionDelete)
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this grade")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete grade")
	}
	return nil
}

func (s *GradeService) findDetail(ctx context.Context, id string) (*models.GradeDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return detail, nil
}

func factsFromGrade(detail *models.GradeDetail) policy.Facts {
	facts := policy.Facts{StudentID: detail.StudentID}
	if detail.SubjectTeacherID != nil {
		facts.TeacherID = *detail.SubjectTeacherID
	}
	return facts
}
