package models

import "time"

// Enrollment links one student to one subject. At most one row exists per
// (student_id, subject_id) pair regardless of the active flag.
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	Active     bool      `db:"active" json:"active"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and subject info,
// including the owning teacher used for permission resolution.
type EnrollmentDetail struct {
	Enrollment
	StudentName      string  `db:"student_name" json:"student_name"`
	StudentEmail     string  `db:"student_email" json:"student_email"`
	SubjectName      string  `db:"subject_name" json:"subject_name"`
	SubjectTeacherID *string `db:"subject_teacher_id" json:"subject_teacher_id,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SubjectID string
	// TeacherID scopes to enrollments of subjects owned by the teacher.
	TeacherID string
	Active    *bool
	Page      int
	PageSize  int
}
