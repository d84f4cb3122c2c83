package models

import "time"

// Subject represents an academic subject area such as CS or MATH.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Course represents a catalog course offering.
type Course struct {
	ID          string    `db:"id" json:"id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	Number      int       `db:"number" json:"number"`
	Title       string    `db:"title" json:"title"`
	CreditHours float64   `db:"credit_hours" json:"credit_hours"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Level returns the course level derived from the leading digit of the
// course number, e.g. 301 -> 300. Levels group courses into bands for
// course-group requirements.
func (c Course) Level() int {
	n := c.Number
	for n >= 10 {
		n /= 10
	}
	return n * 100
}

// PrerequisiteLink records that a course requires another course first.
type PrerequisiteLink struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	PrereqCourseID string    `db:"prereq_course_id" json:"prereq_course_id"`
	Position       int       `db:"position" json:"position"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail enriches a course with its prerequisite chain.
type CourseDetail struct {
	Course
	Prerequisites []Course `json:"prerequisites"`
}

// CourseFilter defines filters supported by catalog list endpoints.
type CourseFilter struct {
	SubjectCode string
	MinLevel    int
	MaxLevel    int
	Search      string
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
