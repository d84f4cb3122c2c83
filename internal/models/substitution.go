package models

import "time"

// CourseSubstitution lets an approved course stand in for a required one
// during audits. A nil ExpirationDate means the approval is open ended.
type CourseSubstitution struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	OriginalCourseID   string     `db:"original_course_id" json:"original_course_id"`
	SubstituteCourseID string     `db:"substitute_course_id" json:"substitute_course_id"`
	Reason             string     `db:"reason" json:"reason,omitempty"`
	ApprovedBy         string     `db:"approved_by" json:"approved_by"`
	EffectiveDate      time.Time  `db:"effective_date" json:"effective_date"`
	ExpirationDate     *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// ActiveAt reports whether the substitution applies at the given instant.
func (s *CourseSubstitution) ActiveAt(t time.Time) bool {
	if t.Before(s.EffectiveDate) {
		return false
	}
	return s.ExpirationDate == nil || !t.After(*s.ExpirationDate)
}
