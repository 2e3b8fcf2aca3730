package models

import "time"

// Evaluation represents a graded component of a subject. Percentage stores
// the evaluation's weight within the subject; no aggregation consumes it yet.
type Evaluation struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Percentage  int       `db:"percentage" json:"percentage"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EvaluationDetail enriches Evaluation with subject linkage for responses and
// permission resolution.
type EvaluationDetail struct {
	Evaluation
	SubjectName      string  `db:"subject_name" json:"subject_name"`
	SubjectTeacherID *string `db:"subject_teacher_id" json:"subject_teacher_id,omitempty"`
	Grades           []Grade `json:"grades,omitempty"`
}

// EvaluationFilter provides filters for listing evaluations.
type EvaluationFilter struct {
	SubjectID string
	// TeacherID scopes to evaluations of subjects owned by the teacher.
	TeacherID string
	// EnrolledStudentID scopes to evaluations of subjects the student is
	// enrolled in.
	EnrolledStudentID string
	Page              int
	PageSize          int
}
