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

const subjectColumns = "id, name, description, teacher_id, created_at, updated_at"

// SubjectRepository provides database access for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new instance of SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID returns a subject by identifier.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE id = $1 LIMIT 1", subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject by id: %w", err)
	}
	return &subject, nil
}

// FindDetailByID returns a subject with its teacher, enrollments and
// evaluations pre-resolved.
func (r *SubjectRepository) FindDetailByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	subject, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.SubjectDetail{Subject: *subject, Enrollments: []models.Enrollment{}, Evaluations: []models.Evaluation{}}

	if subject.TeacherID != nil {
		const teacherQuery = `SELECT id, name, email, id_number, role FROM users WHERE id = $1 LIMIT 1`
		var teacher models.UserInfo
		err := r.db.GetContext(ctx, &teacher, teacherQuery, *subject.TeacherID)
		switch err {
		case nil:
			detail.Teacher = &teacher
		case sql.ErrNoRows:
			// dangling teacher reference; leave expansion empty
		default:
			return nil, fmt.Errorf("find subject teacher: %w", err)
		}
	}

	const enrollmentQuery = `SELECT id, student_id, subject_id, active, enrolled_at, updated_at FROM enrollments WHERE subject_id = $1 ORDER BY enrolled_at`
	if err := r.db.SelectContext(ctx, &detail.Enrollments, enrollmentQuery, id); err != nil {
		return nil, fmt.Errorf("load subject enrollments: %w", err)
	}

	const evaluationQuery = `SELECT id, name, description, percentage, subject_id, created_at, updated_at FROM evaluations WHERE subject_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &detail.Evaluations, evaluationQuery, id); err != nil {
		return nil, fmt.Errorf("load subject evaluations: %w", err)
	}

	return detail, nil
}

// List returns subjects based on filters with total count.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	baseQuery := `FROM subjects s WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.EnrolledStudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e WHERE e.subject_id = s.id AND e.student_id = $%d)", len(args)+1))
		args = append(args, filter.EnrolledStudentID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"name": true, "created_at": true, "updated_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT s.id, s.name, s.description, s.teacher_id, s.created_at, s.updated_at %s ORDER BY s.%s %s LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const query = `INSERT INTO subjects (id, name, description, teacher_id, created_at, updated_at) VALUES (:id, :name, :description, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = :name, description = :description, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject row.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM subjects WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
