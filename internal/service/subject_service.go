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

type subjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

type enrollmentChecker interface {
	Exists(ctx context.Context, studentID, subjectID string) (bool, error)
}

// CreateSubjectRequest describes subject creation payload.
type CreateSubjectRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	TeacherID   *string `json:"teacher_id,omitempty"`
}

// UpdateSubjectRequest describes the partial subject update payload.
type UpdateSubjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	TeacherID   *string `json:"teacher_id,omitempty"`
}

// SubjectService orchestrates subject workflows.
type SubjectService struct {
	repo        subjectRepository
	enrollments enrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, enrollments enrollmentChecker, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, enrollments: enrollments, validator: validate, logger: logger, metrics: metrics}
}

// List returns subjects scoped to the actor: admins see everything, teachers
// their own subjects, students the subjects they are enrolled in.
func (s *SubjectService) List(ctx context.Context, actor policy.Actor, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
		filter.EnrolledStudentID = ""
	case models.RoleStudent:
		filter.EnrolledStudentID = actor.ID
		filter.TeacherID = ""
	}

	start := time.Now()
	subjects, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("subjects_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a subject with its expansions. Missing subjects report
// not-found before any permission decision.
func (s *SubjectService) Get(ctx context.Context, actor policy.Actor, id string) (*models.SubjectDetail, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	facts, err := s.factsFor(ctx, actor, subject)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceSubject, facts); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceSubject, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this subject")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject detail")
	}
	return detail, nil
}

// Create registers a new subject. Admin only.
func (s *SubjectService) Create(ctx context.Context, actor policy.Actor, req CreateSubjectRequest) (*models.SubjectDetail, error) {
	if d := policy.Decide(actor, policy.ActionCreate, policy.ResourceSubject, policy.Facts{}); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceSubject, policy.ActionCreate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create subjects")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject := &models.Subject{Name: req.Name, Description: req.Description, TeacherID: req.TeacherID}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create subject")
	}

	detail, err := s.repo.FindDetailByID(ctx, subject.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject detail")
	}
	return detail, nil
}

// Update applies a partial update. Admin or the owning teacher.
func (s *SubjectService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateSubjectRequest) (*models.SubjectDetail, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if d := policy.Decide(actor, policy.ActionUpdate, policy.ResourceSubject, factsFromSubject(subject)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceSubject, policy.ActionUpdate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this subject")
	}

	if req.Name != nil {
		subject.Name = *req.Name
	}
	if req.Description != nil {
		subject.Description = req.Description
	}
	if req.TeacherID != nil {
		subject.TeacherID = req.TeacherID
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update subject")
	}

	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject detail")
	}
	return detail, nil
}

// Delete removes a subject. Admin only; not-found precedes the permission
// decision.
func (s *SubjectService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if d := policy.Decide(actor, policy.ActionDelete, policy.ResourceSubject, factsFromSubject(subject)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceSubject, policy.ActionDelete)
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete subjects")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete subject")
	}
	return nil
}

func (s *SubjectService) factsFor(ctx context.Context, actor policy.Actor, subject *models.Subject) (policy.Facts, error) {
	facts := factsFromSubject(subject)
	if actor.Role == models.RoleStudent {
		enrolled, err := s.enrollments.Exists(ctx, actor.ID, subject.ID)
		if err != nil {
			return policy.Facts{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
		}
		facts.Enrolled = enrolled
	}
	return facts, nil
}

func factsFromSubject(subject *models.Subject) policy.Facts {
	facts := policy.Facts{}
	if subject.TeacherID != nil {
		facts.TeacherID = *subject.TeacherID
	}
	return facts
}
