package models

import "time"

// Subject represents an academic subject, optionally owned by one teacher.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail enriches Subject with its relational expansions.
type SubjectDetail struct {
	Subject
	Teacher     *UserInfo    `json:"teacher,omitempty"`
	Enrollments []Enrollment `json:"enrollments"`
	Evaluations []Evaluation `json:"evaluations"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	TeacherID string
	// EnrolledStudentID restricts results to subjects the student holds an
	// enrollment for.
	EnrolledStudentID string
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
