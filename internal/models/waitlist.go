package models

import "time"

// Waitlist entry statuses.
const (
	WaitlistStatusWaiting   = "WAITING"
	WaitlistStatusPromoted  = "PROMOTED"
	WaitlistStatusExpired   = "EXPIRED"
	WaitlistStatusCancelled = "CANCELLED"
)

// Waitlist priority bands. Lower values are served first; within a band
// entries are served in position order.
const (
	WaitlistPriorityGraduating = 1
	WaitlistPriorityMajor      = 2
	WaitlistPriorityStandard   = 3
)

// WaitlistEntry queues a student for a full section. Position is
// assigned per section and priority band at join time and never reused.
type WaitlistEntry struct {
	ID         string     `db:"id" json:"id"`
	SectionID  string     `db:"section_id" json:"section_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Priority   int        `db:"priority" json:"priority"`
	Position   int        `db:"position" json:"position"`
	Status     string     `db:"status" json:"status"`
	NotifiedAt *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// WaitlistEntryDetail joins queue rows with student and section context
// for roster views.
type WaitlistEntryDetail struct {
	WaitlistEntry
	StudentNumber string `db:"student_number" json:"student_number"`
	StudentName   string `db:"student_name" json:"student_name"`
	CourseCode    string `db:"course_code" json:"course_code"`
	SectionCode   string `db:"section_code" json:"section_code"`
	TermID        string `db:"term_id" json:"term_id"`
}
