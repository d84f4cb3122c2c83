package models

import "time"

// CourseSection is a scheduled offering of a course within a term.
type CourseSection struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	FacultyID *string   `db:"faculty_id" json:"faculty_id,omitempty"`
	Section   string    `db:"section" json:"section"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Enrolled  int       `db:"enrolled" json:"enrolled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasOpenSeat reports whether the section can accept another enrollment.
func (s CourseSection) HasOpenSeat() bool {
	return s.Enrolled < s.Capacity
}

// SectionDetail enriches a section with course and instructor context.
type SectionDetail struct {
	CourseSection
	SubjectCode  string  `db:"subject_code" json:"subject_code"`
	CourseNumber int     `db:"course_number" json:"course_number"`
	CourseTitle  string  `db:"course_title" json:"course_title"`
	CreditHours  float64 `db:"credit_hours" json:"credit_hours"`
	FacultyName  *string `db:"faculty_name" json:"faculty_name,omitempty"`
}

// SectionFilter defines filters for listing sections.
type SectionFilter struct {
	TermID    string
	CourseID  string
	FacultyID string
	OpenOnly  bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
