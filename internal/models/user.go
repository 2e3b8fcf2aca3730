package models

import "time"

// UserRole represents the available roles for the authorization policy.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	IDNumber     string    `db:"id_number" json:"id_number"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	Age          *int      `db:"age" json:"age,omitempty"`
	Photo        *string   `db:"photo" json:"photo,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserInfo is the compact user representation embedded in expansions.
type UserInfo struct {
	ID       string   `db:"id" json:"id"`
	Name     string   `db:"name" json:"name"`
	Email    string   `db:"email" json:"email"`
	IDNumber string   `db:"id_number" json:"id_number"`
	Role     UserRole `db:"role" json:"role"`
}

// Info projects the user onto its compact representation.
func (u User) Info() UserInfo {
	return UserInfo{ID: u.ID, Name: u.Name, Email: u.Email, IDNumber: u.IDNumber, Role: u.Role}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
