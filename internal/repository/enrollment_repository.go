package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-control-api/internal/models"
)

const enrollmentDetailColumns = `e.id, e.student_id, e.subject_id, e.active, e.enrolled_at, e.updated_at,
	u.name AS student_name, u.email AS student_email, s.name AS subject_name, s.teacher_id AS subject_teacher_id`

const enrollmentDetailJoins = `FROM enrollments e
	JOIN users u ON u.id = e.student_id
	JOIN subjects s ON s.id = e.subject_id`

// EnrollmentRepository provides database access for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new instance of EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, subject_id, active, enrolled_at, updated_at FROM enrollments WHERE id = $1 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by id: %w", err)
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment joined with its student and subject.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1 LIMIT 1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment detail: %w", err)
	}
	return &detail, nil
}

// Exists reports whether any enrollment row, active or not, links the student
// to the subject.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, subjectID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND subject_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, subjectID); err != nil {
		return false, fmt.Errorf("check enrollment exists: %w", err)
	}
	return exists, nil
}

// List returns enrollment details based on filters with total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	baseQuery := enrollmentDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("e.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d", enrollmentDetailColumns, baseQuery, pageSize, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	return enrollments, total, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, subject_id, active, enrolled_at, updated_at) VALUES (:id, :student_id, :subject_id, :active, :enrolled_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an enrollment.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment row.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}
