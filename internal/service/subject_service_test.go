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

type mockSubjectRepo struct {
	subjects map[string]*models.Subject
	deleted  []string
}

func newSubjectRepo(subjects ...*models.Subject) *mockSubjectRepo {
	repo := &mockSubjectRepo{subjects: make(map[string]*models.Subject)}
	for _, s := range subjects {
		repo.subjects[s.ID] = s
	}
	return repo
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (m *mockSubjectRepo) FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	s, ok := m.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SubjectDetail{Subject: *s}, nil
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, s := range m.subjects {
		if filter.TeacherID != "" && (s.TeacherID == nil || *s.TeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = "generated"
	}
	m.subjects[subject.ID] = subject
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	m.subjects[subject.ID] = subject
	return nil
}

func (m *mockSubjectRepo) Delete(ctx context.Context, id string) error {
	delete(m.subjects, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEnrollmentChecker struct {
	pairs map[[2]string]bool
}

func (m *mockEnrollmentChecker) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	return m.pairs[[2]string{studentID, subjectID}], nil
}

func enrolled(pairs ...[2]string) *mockEnrollmentChecker {
	m := &mockEnrollmentChecker{pairs: make(map[[2]string]bool)}
	for _, p := range pairs {
		m.pairs[p] = true
	}
	return m
}

func subjectOwnedBy(id, teacherID string) *models.Subject {
	return &models.Subject{ID: id, Name: "Math", TeacherID: &teacherID}
}

func TestSubjectServiceCreateAdminOnly(t *testing.T) {
	repo := newSubjectRepo()
	svc := NewSubjectService(repo, enrolled(), validator.New(), zap.NewNop(), nil)

	_, err := svc.Create(context.Background(), teacherActor, CreateSubjectRequest{Name: "Math"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	detail, err := svc.Create(context.Background(), adminActor, CreateSubjectRequest{Name: "Math"})
	require.NoError(t, err)
	assert.Equal(t, "Math", detail.Name)
}

func TestSubjectServiceGetEnrollmentGate(t *testing.T) {
	repo := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	svc := NewSubjectService(repo, enrolled([2]string{"student-1", "sub-1"}), validator.New(), zap.NewNop(), nil)

	_, err := svc.Get(context.Background(), studentActor, "sub-1")
	require.NoError(t, err)

	other := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	svcNoEnroll := NewSubjectService(other, enrolled(), validator.New(), zap.NewNop(), nil)
	_, err = svcNoEnroll.Get(context.Background(), studentActor, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceGetMissingBeforeForbidden(t *testing.T) {
	repo := newSubjectRepo()
	svc := NewSubjectService(repo, enrolled(), validator.New(), zap.NewNop(), nil)

	_, err := svc.Get(context.Background(), studentActor, "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceUpdateOwnership(t *testing.T) {
	repo := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	svc := NewSubjectService(repo, enrolled(), validator.New(), zap.NewNop(), nil)

	name := "Advanced Math"
	detail, err := svc.Update(context.Background(), teacherActor, "sub-1", UpdateSubjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Math", detail.Name)

	repo2 := newSubjectRepo(subjectOwnedBy("sub-2", "teacher-2"))
	svc2 := NewSubjectService(repo2, enrolled(), validator.New(), zap.NewNop(), nil)
	_, err = svc2.Update(context.Background(), teacherActor, "sub-2", UpdateSubjectRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceDeleteAdminOnly(t *testing.T) {
	repo := newSubjectRepo(subjectOwnedBy("sub-1", "teacher-1"))
	svc := NewSubjectService(repo, enrolled(), validator.New(), zap.NewNop(), nil)

	// Even the owning teacher cannot delete.
	err := svc.Delete(context.Background(), teacherActor, "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), adminActor, "sub-1"))
	assert.Contains(t, repo.deleted, "sub-1")
}

func TestSubjectServiceListScopesTeacher(t *testing.T) {
	repo := newSubjectRepo(
		subjectOwnedBy("sub-1", "teacher-1"),
		subjectOwnedBy("sub-2", "teacher-2"),
	)
	svc := NewSubjectService(repo, enrolled(), validator.New(), zap.NewNop(), nil)

	subjects, _, err := svc.List(context.Background(), teacherActor, models.SubjectFilter{})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "sub-1", subjects[0].ID)
}
