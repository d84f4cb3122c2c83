package models

import "time"

// Transfer credit review statuses.
const (
	TransferStatusPending  = "PENDING"
	TransferStatusApproved = "APPROVED"
	TransferStatusRejected = "REJECTED"
)

// TransferCredit records coursework completed at another institution and
// its mapping onto a local course. Only approved rows count toward
// audits, and transfer grades never enter GPA.
type TransferCredit struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	Institution        string     `db:"institution" json:"institution"`
	ExternalCourseCode string     `db:"external_course_code" json:"external_course_code"`
	ExternalTitle      string     `db:"external_title" json:"external_title"`
	EquivalentCourseID *string    `db:"equivalent_course_id" json:"equivalent_course_id,omitempty"`
	CreditHours        float64    `db:"credit_hours" json:"credit_hours"`
	GradeLabel         string     `db:"grade_label" json:"grade_label,omitempty"`
	Status             string     `db:"status" json:"status"`
	DecisionNote       string     `db:"decision_note" json:"decision_note,omitempty"`
	DecidedBy          *string    `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt          *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
