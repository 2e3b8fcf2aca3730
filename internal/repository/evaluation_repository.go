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

const evaluationDetailColumns = `ev.id, ev.name, ev.description, ev.percentage, ev.subject_id, ev.created_at, ev.updated_at,
	s.name AS subject_name, s.teacher_id AS subject_teacher_id`

const evaluationDetailJoins = `FROM evaluations ev
	JOIN subjects s ON s.id = ev.subject_id`

// EvaluationRepository provides database access for evaluations.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository creates a new instance of EvaluationRepository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// FindByID returns an evaluation by identifier.
func (r *EvaluationRepository) FindByID(ctx context.Context, id string) (*models.Evaluation, error) {
	const query = `SELECT id, name, description, percentage, subject_id, created_at, updated_at FROM evaluations WHERE id = $1 LIMIT 1`
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find evaluation by id: %w", err)
	}
	return &evaluation, nil
}

// FindDetailByID returns an evaluation joined with its subject, resolving the
// owning teacher in the same query.
func (r *EvaluationRepository) FindDetailByID(ctx context.Context, id string) (*models.EvaluationDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE ev.id = $1 LIMIT 1", evaluationDetailColumns, evaluationDetailJoins)
	var detail models.EvaluationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find evaluation detail: %w", err)
	}

	const gradesQuery = `SELECT id, student_id, evaluation_id, score, created_at, updated_at FROM grades WHERE evaluation_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &detail.Grades, gradesQuery, id); err != nil {
		return nil, fmt.Errorf("load evaluation grades: %w", err)
	}

	return &detail, nil
}

// List returns evaluation details based on filters with total count.
func (r *EvaluationRepository) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	baseQuery := evaluationDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("ev.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.EnrolledStudentID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e WHERE e.subject_id = ev.subject_id AND e.student_id = $%d)", len(args)+1))
		args = append(args, filter.EnrolledStudentID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY ev.created_at DESC LIMIT %d OFFSET %d", evaluationDetailColumns, baseQuery, pageSize, offset)

	var evaluations []models.EvaluationDetail
	if err := r.db.SelectContext(ctx, &evaluations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list evaluations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count evaluations: %w", err)
	}

	return evaluations, total, nil
}

// Create inserts a new evaluation.
func (r *EvaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if evaluation.CreatedAt.IsZero() {
		evaluation.CreatedAt = now
	}
	evaluation.UpdatedAt = now

	const query = `INSERT INTO evaluations (id, name, description, percentage, subject_id, created_at, updated_at) VALUES (:id, :name, :description, :percentage, :subject_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evaluation); err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an evaluation.
func (r *EvaluationRepository) Update(ctx context.Context, evaluation *models.Evaluation) error {
	evaluation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE evaluations SET name = :name, description = :description, percentage = :percentage, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, evaluation); err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	return nil
}

// Delete removes an evaluation row.
func (r *EvaluationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM evaluations WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	return nil
}
