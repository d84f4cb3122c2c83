package models

import "time"

// Student represents a learner admitted to the institution.
type Student struct {
	ID            string    `db:"id" json:"id"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	DegreeCode    string    `db:"degree_code" json:"degree_code"`
	CatalogYear   int       `db:"catalog_year" json:"catalog_year"`
	AdmitTermID   *string   `db:"admit_term_id" json:"admit_term_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	DegreeCode string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// StudentDetail contains student information with academic standing context.
type StudentDetail struct {
	Student
	CompletedCredits float64 `db:"completed_credits" json:"completed_credits"`
	CurrentGPA       float64 `db:"current_gpa" json:"current_gpa"`
	AdvisorID        *string `db:"advisor_id" json:"advisor_id,omitempty"`
	AdvisorName      *string `db:"advisor_name" json:"advisor_name,omitempty"`
}
