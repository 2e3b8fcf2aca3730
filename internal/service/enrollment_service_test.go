package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-control-api/internal/models"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]*models.EnrollmentDetail
	deleted     []string
}

func newEnrollmentRepo(enrollments ...*models.EnrollmentDetail) *mockEnrollmentRepo {
	repo := &mockEnrollmentRepo{enrollments: make(map[string]*models.EnrollmentDetail)}
	for _, e := range enrollments {
		repo.enrollments[e.ID] = e
	}
	return repo
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e.Enrollment, nil
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && (e.SubjectTeacherID == nil || *e.SubjectTeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "generated"
	}
	m.enrollments[enrollment.ID] = &models.EnrollmentDetail{Enrollment: *enrollment}
	return nil
}

func (m *mockEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	if existing, ok := m.enrollments[enrollment.ID]; ok {
		existing.Enrollment = *enrollment
	}
	return nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func enrollmentDetail(id, studentID, subjectID, teacherID string) *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment:       models.Enrollment{ID: id, StudentID: studentID, SubjectID: subjectID, Active: true},
		SubjectTeacherID: &teacherID,
	}
}

func TestEnrollmentServiceCreateDuplicateConflict(t *testing.T) {
	repo := newEnrollmentRepo(enrollmentDetail("e1", "student-1", "sub-1", "teacher-1"))
	subjects := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	users := newUserRepo(&models.User{ID: "student-1", Role: models.RoleStudent})
	svc := NewEnrollmentService(repo, subjects, users, validator.New(), zap.NewNop(), nil)

	_, err := svc.Create(context.Background(), adminActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: "sub-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateMissingSubject(t *testing.T) {
	repo := newEnrollmentRepo()
	subjects := newSubjectRepo()
	users := newUserRepo(&models.User{ID: "student-1", Role: models.RoleStudent})
	svc := NewEnrollmentService(repo, subjects, users, validator.New(), zap.NewNop(), nil)

	_, err := svc.Create(context.Background(), adminActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateOwnershipGate(t *testing.T) {
	subjects := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"), subjectOwnedBy("sub-2", "teacher-2"))
	users := newUserRepo(&models.User{ID: "student-1", Role: models.RoleStudent})

	svc := NewEnrollmentService(newEnrollmentRepo(), subjects, users, validator.New(), zap.NewNop(), nil)

	detail, err := svc.Create(context.Background(), teacherActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: "sub-1"})
	require.NoError(t, err)
	assert.True(t, detail.Active)

	_, err = svc.Create(context.Background(), teacherActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: "sub-2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceCreateRejectsNonStudent(t *testing.T) {
	subjects := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	users := newUserRepo(&models.User{ID: "teacher-2", Role: models.RoleTeacher})
	svc := NewEnrollmentService(newEnrollmentRepo(), subjects, users, validator.New(), zap.NewNop(), nil)

	_, err := svc.Create(context.Background(), adminActor, CreateEnrollmentRequest{StudentID: "teacher-2", SubjectID: "sub-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceStudentCannotEnroll(t *testing.T) {
	subjects := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	users := newUserRepo(&models.User{ID: "student-1", Role: models.RoleStudent})
	svc := NewEnrollmentService(newEnrollmentRepo(), subjects, users, validator.New(), zap.NewNop(), nil)

	_, err := svc.Create(context.Background(), studentActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: "sub-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceListScopesStudent(t *testing.T) {
	repo := newEnrollmentRepo(
		enrollmentDetail("e1", "student-1", "sub-1", "teacher-1"),
		enrollmentDetail("e2", "student-2", "sub-1", "teacher-1"),
	)
	svc := NewEnrollmentService(repo, newSubjectRepo(), newUserRepo(), validator.New(), zap.NewNop(), nil)

	// Filters pointing at other students are overridden.
	enrollments, _, err := svc.List(context.Background(), studentActor, models.EnrollmentFilter{StudentID: "student-2"})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "student-1", enrollments[0].StudentID)
}

func TestEnrollmentServiceUpdateDeactivate(t *testing.T) {
	repo := newEnrollmentRepo(enrollmentDetail("e1", "student-1", "sub-1", "teacher-1"))
	svc := NewEnrollmentService(repo, newSubjectRepo(), newUserRepo(), validator.New(), zap.NewNop(), nil)

	inactive := false
	detail, err := svc.Update(context.Background(), teacherActor, "e1", UpdateEnrollmentRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, detail.Active)
}

func TestEnrollmentServiceDeleteMissing(t *testing.T) {
	svc := NewEnrollmentService(newEnrollmentRepo(), newSubjectRepo(), newUserRepo(), validator.New(), zap.NewNop(), nil)

	err := svc.Delete(context.Background(), adminActor, "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
