package models

import "time"

// Faculty represents an instructor employed by the institution.
type Faculty struct {
	ID         string    `db:"id" json:"id"`
	EmployeeNo string    `db:"employee_no" json:"employee_no"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	Department string    `db:"department" json:"department"`
	Title      string    `db:"title" json:"title"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// FacultyFilter captures search parameters for listing faculty.
type FacultyFilter struct {
	Search     string
	Department string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// FacultyDetail enriches a faculty member with teaching load context.
type FacultyDetail struct {
	Faculty
	SectionCount int `db:"section_count" json:"section_count"`
}
