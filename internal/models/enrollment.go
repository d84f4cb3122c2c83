package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
)

// Enrollment captures a student's registration in a course section.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	GradedBy   *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt   *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string  `db:"student_name" json:"student_name"`
	StudentNumber string  `db:"student_number" json:"student_number"`
	SubjectCode   string  `db:"subject_code" json:"subject_code"`
	CourseNumber  int     `db:"course_number" json:"course_number"`
	CourseTitle   string  `db:"course_title" json:"course_title"`
	CreditHours   float64 `db:"credit_hours" json:"credit_hours"`
	TermID        string  `db:"term_id" json:"term_id"`
	TermCode      string  `db:"term_code" json:"term_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CompletedCourse is a course a student finished with a final grade. It
// feeds transcript rows and degree audit evaluation.
type CompletedCourse struct {
	StudentID   string    `db:"student_id" json:"student_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	SubjectCode string    `db:"subject_code" json:"subject_code"`
	Number      int       `db:"number" json:"number"`
	Title       string    `db:"title" json:"title"`
	CreditHours float64   `db:"credit_hours" json:"credit_hours"`
	Grade       string    `db:"grade" json:"grade"`
	TermID      string    `db:"term_id" json:"term_id"`
	TermCode    string    `db:"term_code" json:"term_code"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}
