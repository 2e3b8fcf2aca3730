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
	"github.com/noah-isme/school-control-api/internal/repository"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Exists(ctx context.Context, studentID, subjectID string) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateEnrollmentRequest describes enrollment creation payload.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
}

// UpdateEnrollmentRequest describes the partial enrollment update payload.
type UpdateEnrollmentRequest struct {
	Active *bool `json:"active,omitempty"`
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	subjects  subjectReader
	users     userReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, subjects subjectReader, users userReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, subjects: subjects, users: users, validator: validate, logger: logger, metrics: metrics}
}

// List returns enrollments scoped to the actor: admins see everything,
// teachers their subjects' enrollments, students their own.
func (s *EnrollmentService) List(ctx context.Context, actor policy.Actor, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.ID
	case models.RoleStudent:
		filter.StudentID = actor.ID
		filter.TeacherID = ""
	}

	start := time.Now()
	enrollments, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("enrollments_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single enrollment with its expansions.
func (s *EnrollmentService) Get(ctx context.Context, actor policy.Actor, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionRead, policy.ResourceEnrollment, factsFromEnrollment(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEnrollment, policy.ActionRead)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this enrollment")
	}
	return detail, nil
}

// Create enrolls a student into a subject. The subject must exist before the
// permission decision runs; a duplicate (student, subject) pair in any state
// is a conflict.
func (s *EnrollmentService) Create(ctx context.Context, actor policy.Actor, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if d := policy.Decide(actor, policy.ActionCreate, policy.ResourceEnrollment, factsFromSubject(subject)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEnrollment, policy.ActionCreate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to enroll students in this subject")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "referenced user is not a student")
	}

	exists, err := s.repo.Exists(ctx, req.StudentID, req.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this subject")
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, SubjectID: req.SubjectID, Active: true}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this subject")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Update applies a partial update (activation flag). Admin or the subject's
// owning teacher.
func (s *EnrollmentService) Update(ctx context.Context, actor policy.Actor, id string, req UpdateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d := policy.Decide(actor, policy.ActionUpdate, policy.ResourceEnrollment, factsFromEnrollment(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEnrollment, policy.ActionUpdate)
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this enrollment")
	}

	enrollment := detail.Enrollment
	if req.Active != nil {
		enrollment.Active = *req.Active
	}

	if err := s.repo.Update(ctx, &enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update enrollment")
	}

	updated, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return updated, nil
}

// Delete removes an enrollment. Admin or the subject's owning teacher.
func (s *EnrollmentService) Delete(ctx context.Context, actor policy.Actor, id string) error {
	detail, err := s.findDetail(ctx, id)
	if err != nil {
		return err
	}
	if d := policy.Decide(actor, policy.ActionDelete, policy.ResourceEnrollment, factsFromEnrollment(detail)); !d.Allowed {
		s.metrics.observeDenial(policy.ResourceEnrollment, policy.ActionDelete)
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this enrollment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete enrollment")
	}
	return nil
}

func (s *EnrollmentService) findDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

func factsFromEnrollment(detail *models.EnrollmentDetail) policy.Facts {
	facts := policy.Facts{StudentID: detail.StudentID}
	if detail.SubjectTeacherID != nil {
		facts.TeacherID = *detail.SubjectTeacherID
	}
	return facts
}
