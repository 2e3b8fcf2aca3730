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

const gradeDetailColumns = `g.id, g.student_id, g.evaluation_id, g.score, g.created_at, g.updated_at,
	u.name AS student_name, u.email AS student_email, ev.name AS evaluation_name,
	s.id AS subject_id, s.name AS subject_name, s.teacher_id AS subject_teacher_id`

const gradeDetailJoins = `FROM grades g
	JOIN users u ON u.id = g.student_id
	JOIN evaluations ev ON ev.id = g.evaluation_id
	JOIN subjects s ON s.id = ev.subject_id`

// GradeRepository provides database access for grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new instance of GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindByID returns a grade by identifier.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, evaluation_id, score, created_at, updated_at FROM grades WHERE id = $1 LIMIT 1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade by id: %w", err)
	}
	return &grade, nil
}

// FindDetailByID returns a grade joined with its student, evaluation and
// subject; the join resolves the owning teacher for permission checks.
func (r *GradeRepository) FindDetailByID(ctx context.Context, id string) (*models.GradeDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE g.id = $1 LIMIT 1", gradeDetailColumns, gradeDetailJoins)
	var detail models.GradeDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade detail: %w", err)
	}
	return &detail, nil
}

// List returns grade details based on filters with total count.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	baseQuery := gradeDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EvaluationID != "" {
		conditions = append(conditions, fmt.Sprintf("g.evaluation_id = $%d", len(args)+1))
		args = append(args, filter.EvaluationID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("ev.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY g.created_at DESC LIMIT %d OFFSET %d", gradeDetailColumns, baseQuery, pageSize, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}

	return grades, total, nil
}

// ListBySubject returns all grade details for a subject ordered by student,
// used by the subject report.
func (r *GradeRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.GradeDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE ev.subject_id = $1 ORDER BY u.name, ev.created_at, g.created_at", gradeDetailColumns, gradeDetailJoins)
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, subjectID); err != nil {
		return nil, fmt.Errorf("list grades by subject: %w", err)
	}
	return grades, nil
}

// Create inserts a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, student_id, evaluation_id, score, created_at, updated_at) VALUES (:id, :student_id, :evaluation_id, :score, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET score = :score, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade row.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM grades WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}
