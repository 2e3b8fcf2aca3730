package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-control-api/internal/models"
)

// schoolStore is a shared in-memory backing store whose typed views resolve
// relational expansions the way the SQL joins do, so detail responses carry
// real linkage instead of fixture-supplied fields.
type schoolStore struct {
	users       map[string]*models.User
	subjects    map[string]*models.Subject
	enrollments map[string]*models.Enrollment
	evaluations map[string]*models.Evaluation
	grades      map[string]*models.Grade
	seq         int
}

func newSchoolStore(users ...*models.User) *schoolStore {
	s := &schoolStore{
		users:       make(map[string]*models.User),
		subjects:    make(map[string]*models.Subject),
		enrollments: make(map[string]*models.Enrollment),
		evaluations: make(map[string]*models.Evaluation),
		grades:      make(map[string]*models.Grade),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *schoolStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type storeUsers struct{ db *schoolStore }

func (v storeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := v.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

type storeSubjects struct{ db *schoolStore }

func (v storeSubjects) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := v.db.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (v storeSubjects) FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	s, ok := v.db.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.SubjectDetail{Subject: *s, Enrollments: []models.Enrollment{}, Evaluations: []models.Evaluation{}}
	if s.TeacherID != nil {
		if teacher, ok := v.db.users[*s.TeacherID]; ok {
			info := teacher.Info()
			detail.Teacher = &info
		}
	}
	for _, e := range v.db.enrollments {
		if e.SubjectID == id {
			detail.Enrollments = append(detail.Enrollments, *e)
		}
	}
	for _, e := range v.db.evaluations {
		if e.SubjectID == id {
			detail.Evaluations = append(detail.Evaluations, *e)
		}
	}
	return detail, nil
}

func (v storeSubjects) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, s := range v.db.subjects {
		if filter.TeacherID != "" && (s.TeacherID == nil || *s.TeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (v storeSubjects) Create(ctx context.Context, subject *models.Subject) error {
	subject.ID = v.db.nextID("sub")
	v.db.subjects[subject.ID] = subject
	return nil
}

func (v storeSubjects) Update(ctx context.Context, subject *models.Subject) error {
	v.db.subjects[subject.ID] = subject
	return nil
}

func (v storeSubjects) Delete(ctx context.Context, id string) error {
	delete(v.db.subjects, id)
	return nil
}

type storeEnrollments struct{ db *schoolStore }

func (v storeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := v.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (v storeEnrollments) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := v.db.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.EnrollmentDetail{Enrollment: *e}
	if student, ok := v.db.users[e.StudentID]; ok {
		detail.StudentName = student.Name
		detail.StudentEmail = student.Email
	}
	if subject, ok := v.db.subjects[e.SubjectID]; ok {
		detail.SubjectName = subject.Name
		detail.SubjectTeacherID = subject.TeacherID
	}
	return detail, nil
}

func (v storeEnrollments) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	for _, e := range v.db.enrollments {
		if e.StudentID == studentID && e.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (v storeEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for id := range v.db.enrollments {
		detail, _ := v.FindDetailByID(ctx, id)
		if filter.StudentID != "" && detail.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && (detail.SubjectTeacherID == nil || *detail.SubjectTeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (v storeEnrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = v.db.nextID("enr")
	v.db.enrollments[enrollment.ID] = enrollment
	return nil
}

func (v storeEnrollments) Update(ctx context.Context, enrollment *models.Enrollment) error {
	v.db.enrollments[enrollment.ID] = enrollment
	return nil
}

func (v storeEnrollments) Delete(ctx context.Context, id string) error {
	delete(v.db.enrollments, id)
	return nil
}

type storeEvaluations struct{ db *schoolStore }

func (v storeEvaluations) FindByID(ctx context.Context, id string) (*models.Evaluation, error) {
	e, ok := v.db.evaluations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (v storeEvaluations) FindDetailByID(ctx context.Context, id string) (*models.EvaluationDetail, error) {
	e, ok := v.db.evaluations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.EvaluationDetail{Evaluation: *e}
	if subject, ok := v.db.subjects[e.SubjectID]; ok {
		detail.SubjectName = subject.Name
		detail.SubjectTeacherID = subject.TeacherID
	}
	return detail, nil
}

func (v storeEvaluations) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	var out []models.EvaluationDetail
	for id := range v.db.evaluations {
		detail, _ := v.FindDetailByID(ctx, id)
		if filter.SubjectID != "" && detail.SubjectID != filter.SubjectID {
			continue
		}
		if filter.TeacherID != "" && (detail.SubjectTeacherID == nil || *detail.SubjectTeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (v storeEvaluations) Create(ctx context.Context, evaluation *models.Evaluation) error {
	evaluation.ID = v.db.nextID("ev")
	v.db.evaluations[evaluation.ID] = evaluation
	return nil
}

func (v storeEvaluations) Update(ctx context.Context, evaluation *models.Evaluation) error {
	v.db.evaluations[evaluation.ID] = evaluation
	return nil
}

func (v storeEvaluations) Delete(ctx context.Context, id string) error {
	delete(v.db.evaluations, id)
	return nil
}

type storeGrades struct{ db *schoolStore }

func (v storeGrades) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	g, ok := v.db.grades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return g, nil
}

func (v storeGrades) FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error) {
	g, ok := v.db.grades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.GradeDetail{Grade: *g}
	if student, ok := v.db.users[g.StudentID]; ok {
		detail.StudentName = student.Name
		detail.StudentEmail = student.Email
	}
	if evaluation, ok := v.db.evaluations[g.EvaluationID]; ok {
		detail.EvaluationName = evaluation.Name
		detail.SubjectID = evaluation.SubjectID
		if subject, ok := v.db.subjects[evaluation.SubjectID]; ok {
			detail.SubjectName = subject.Name
			detail.SubjectTeacherID = subject.TeacherID
		}
	}
	return detail, nil
}

func (v storeGrades) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	var out []models.GradeDetail
	for id := range v.db.grades {
		detail, _ := v.FindDetailByID(ctx, id)
		if filter.StudentID != "" && detail.StudentID != filter.StudentID {
			continue
		}
		if filter.TeacherID != "" && (detail.SubjectTeacherID == nil || *detail.SubjectTeacherID != filter.TeacherID) {
			continue
		}
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (v storeGrades) ListBySubject(ctx context.Context, subjectID string) ([]models.GradeDetail, error) {
	var out []models.GradeDetail
	for id := range v.db.grades {
		detail, _ := v.FindDetailByID(ctx, id)
		if detail.SubjectID == subjectID {
			out = append(out, *detail)
		}
	}
	return out, nil
}

func (v storeGrades) Create(ctx context.Context, grade *models.Grade) error {
	grade.ID = v.db.nextID("grd")
	v.db.grades[grade.ID] = grade
	return nil
}

func (v storeGrades) Update(ctx context.Context, grade *models.Grade) error {
	v.db.grades[grade.ID] = grade
	return nil
}

func (v storeGrades) Delete(ctx context.Context, id string) error {
	delete(v.db.grades, id)
	return nil
}

// Walks the whole lifecycle against one shared store: subject, enrollment,
// evaluation, grade, then verifies every read-side expansion resolves the
// linkage set up along the way.
func TestSubjectEvaluationGradeLifecycle(t *testing.T) {
	ctx := context.Background()
	teacherID := "teacher-1"
	db := newSchoolStore(
		&models.User{ID: teacherID, Name: "Luisa Prado", Email: "luisa@example.com", Role: models.RoleTeacher, Active: true},
		&models.User{ID: "student-1", Name: "Ana Suarez", Email: "ana@example.com", Role: models.RoleStudent, Active: true},
	)
	subjects := storeSubjects{db}
	enrollments := storeEnrollments{db}
	evaluations := storeEvaluations{db}
	grades := storeGrades{db}
	users := storeUsers{db}

	validate := validator.New()
	subjectSvc := NewSubjectService(subjects, enrollments, validate, zap.NewNop(), nil)
	enrollmentSvc := NewEnrollmentService(enrollments, subjects, users, validate, zap.NewNop(), nil)
	evaluationSvc := NewEvaluationService(evaluations, subjects, enrollments, validate, zap.NewNop(), nil)
	gradeSvc := NewGradeService(grades, evaluations, users, validate, zap.NewNop(), nil)
	reportSvc := NewReportService(subjects, grades, zap.NewNop(), nil)

	subject, err := subjectSvc.Create(ctx, adminActor, CreateSubjectRequest{Name: "Chemistry", TeacherID: &teacherID})
	require.NoError(t, err)
	require.NotNil(t, subject.Teacher)
	assert.Equal(t, "Luisa Prado", subject.Teacher.Name)

	enrollment, err := enrollmentSvc.Create(ctx, teacherActor, CreateEnrollmentRequest{StudentID: "student-1", SubjectID: subject.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ana Suarez", enrollment.StudentName)
	assert.Equal(t, "Chemistry", enrollment.SubjectName)
	require.NotNil(t, enrollment.SubjectTeacherID)
	assert.Equal(t, teacherID, *enrollment.SubjectTeacherID)

	evaluation, err := evaluationSvc.Create(ctx, teacherActor, CreateEvaluationRequest{Name: "Lab Exam", Percentage: 40, SubjectID: subject.ID})
	require.NoError(t, err)
	assert.Equal(t, "Chemistry", evaluation.SubjectName)

	grade, err := gradeSvc.Create(ctx, teacherActor, CreateGradeRequest{StudentID: "student-1", EvaluationID: evaluation.ID, Score: 4.2})
	require.NoError(t, err)
	assert.Equal(t, "Ana Suarez", grade.StudentName)
	assert.Equal(t, "ana@example.com", grade.StudentEmail)
	assert.Equal(t, "Lab Exam", grade.EvaluationName)
	assert.Equal(t, subject.ID, grade.SubjectID)
	assert.Equal(t, "Chemistry", grade.SubjectName)
	require.NotNil(t, grade.SubjectTeacherID)
	assert.Equal(t, teacherID, *grade.SubjectTeacherID)

	// The graded student reads the same record back as record owner.
	seen, err := gradeSvc.Get(ctx, studentActor, grade.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.2, seen.Score)
	assert.Equal(t, "Lab Exam", seen.EvaluationName)

	// The enrolled student sees the subject with both expansions attached.
	subjectSeen, err := subjectSvc.Get(ctx, studentActor, subject.ID)
	require.NoError(t, err)
	require.Len(t, subjectSeen.Enrollments, 1)
	require.Len(t, subjectSeen.Evaluations, 1)
	assert.Equal(t, "Lab Exam", subjectSeen.Evaluations[0].Name)

	report, err := reportSvc.SubjectGradeReport(ctx, teacherActor, subject.ID, "csv")
	require.NoError(t, err)
	body := string(report.Content)
	assert.True(t, strings.Contains(body, "Ana Suarez,ana@example.com,Lab Exam,4.20"))
	assert.True(t, strings.Contains(body, "Ana Suarez,ana@example.com,AVERAGE,4.20"))
}
