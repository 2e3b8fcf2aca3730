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

type evaluationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Evaluation, error)
	FindDetailByID(ctx context.Context, id string) (*models.EvaluationDetail, error)
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error)
	Create(ctx context.Context, evaluation *models.Evaluation) error
	Update(ctx context.Context, evaluation *models.Evaluation) error
	Delete(ctx context.Context, id string) error
}

// CreateEvaluationRequest describes evaluation creation payload.
type CreateEvaluationRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	Percentage  int     `json:"percentage" validate:"gte=0,lte=100"`
	SubjectID   string  `json:"subject_id" validate:"required"`
}

// UpdateEvaluationRequest describes the partial evaluation update payload.
type UpdateEvaluationRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Percentage  *int    `json:"percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// EvaluationService orchestrates evaluation workflows.
type EvaluationService struct {
	repo        evaluationRepository
	subjects    subjectReader
	enrollments enrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewEvaluationService constructs EvaluationService.
func NewEvaluationService(repo evaluationRepository, subjects subjectReader, enrollments enrollmentChecker, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{repo: repo, subjects: subjects, enrollments: enrollments, validator: validate, logger: logger, metrics: metrics}
}

// List returns evaluations scoped to the actor: admins see everything,
// teachers their subjects', students their enrolled subjects'.
func (s *EvaluationService) List(ctx context.Context, actor policy.Actor, filter models.EvaluationFilter) ([]models.EvaluationDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
		filter.EnrolledStudentID = ""
	case models.RoleStudent:
		filter.EnrolledStudentID = actor.ID
		filter.TeacherID = ""
	}

	start := time.Now()
	evaluations, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("evaluations_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	return evaluations, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single evaluation with its subject linkage. Admin, the
// subject's owner or an enrolled student.
func (s *EvaluationService) Get(ctx context.Context, actor policy.Actor, id string) (*models.EvaluationDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	facts := factsFromEvaluation(detail)
	if actor.Role == models.RoleStudent {
		enrolled, err := s.enrollments.Exists(ctx, actor.ID, detail.SubjectID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
		}
		facts.Enrolled = enrolled
	}
	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceEvaluation, facts); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEvaluation, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this evaluation")
	}
	return detail, nil
}

// Create adds an evaluation under a subject. The subject must exist before
// the permission decision runs.
func (s *EvaluationService) Create(ctx context.Context, actor policy.Actor, req CreateEvaluationRequest) (*models.EvaluationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if d := policy.Decide(actor, policy.ActionCreate, policy.ResourceEvaluation, factsFromSubject(subject)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEvaluation, policy.ActionCreate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create evaluations in this subject")
	}

	evaluation := &models.Evaluation{Name: req.Name, Description: req.Description, Percentage: req.Percentage, SubjectID: req.SubjectID}
	if err := s.repo.Create(ctx, evaluation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create evaluation")
	}

	detail, err := s.repo.FindDetailByID(ctx, evaluation.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation detail")
	}
	return detail, nil
}

// Update applies a partial update. Admin or the subject's owning teacher.
func (s *EvaluationService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateEvaluationRequest) (*models.EvaluationDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionUpdate, policy.ResourceEvaluation, factsFromEvaluation(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEvaluation, policy.ActionUpdate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this evaluation")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}

	evaluation := detail.Evaluation
	if req.Name != nil {
		evaluation.Name = *req.Name
	}
	if req.Description != nil {
		evaluation.Description = req.Description
	}
	if req.Percentage != nil {
		evaluation.Percentage = *req.Percentage
	}

	if err := s.repo.Update(ctx, &evaluation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update evaluation")
	}

	updated, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation detail")
	}
	return updated, nil
}

// Delete removes an evaluation. Admin or the subject's owning teacher; a
// missing id reports not-found for every role.
func (s *EvaluationService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return err
	}
	if d := policy.Decide(actor, policy.ActionDelete, policy.ResourceEvaluation, factsFromEvaluation(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEvaluation, policy.ActionDelete)
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this evaluation")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete evaluation")
	}
	return nil
}

func (s *EvaluationService) findDetail(ctx context.Context, id string) (*models.EvaluationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	return detail, nil
}

func factsFromEvaluation(detail *models.EvaluationDetail) policy.Facts {
	facts := policy.Facts{}
	if detail.SubjectTeacherID != nil {
		facts.TeacherID = *detail.SubjectTeacherID
	}
	return facts
}
