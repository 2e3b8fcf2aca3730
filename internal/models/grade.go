package models

import "time"

// Grade records a student's score for one evaluation. Scores live in [0, 5].
// A student may hold several grade rows for the same evaluation (retakes).
type Grade struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	EvaluationID string    `db:"evaluation_id" json:"evaluation_id"`
	Score        float64   `db:"score" json:"score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeDetail enriches Grade with its student, evaluation and subject
// expansions. SubjectTeacherID resolves the ownership chain
// grade -> evaluation -> subject -> teacher.
type GradeDetail struct {
	Grade
	StudentName      string  `db:"student_name" json:"student_name"`
	StudentEmail     string  `db:"student_email" json:"student_email"`
	EvaluationName   string  `db:"evaluation_name" json:"evaluation_name"`
	SubjectID        string  `db:"subject_id" json:"subject_id"`
	SubjectName      string  `db:"subject_name" json:"subject_name"`
	SubjectTeacherID *string `db:"subject_teacher_id" json:"subject_teacher_id,omitempty"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID    string
	EvaluationID string
	SubjectID    string
	// TeacherID scopes to grades of subjects owned by the teacher.
	TeacherID string
	Page      int
	PageSize  int
}
