package dto

import (
	"time"

	"github.com/campusops/registrar-api/internal/models"
)

// TranscriptRow is one graded course line.
type TranscriptRow struct {
	CourseID      string  `json:"course_id"`
	CourseCode    string  `json:"course_code"`
	Title         string  `json:"title"`
	CreditHours   float64 `json:"credit_hours"`
	Grade         string  `json:"grade"`
	QualityPoints float64 `json:"quality_points"`
	Earned        bool    `json:"earned"`
}

// TranscriptTerm groups transcript rows under one academic term.
type TranscriptTerm struct {
	TermID   string          `json:"term_id"`
	TermCode string          `json:"term_code"`
	Rows     []TranscriptRow `json:"rows"`
	TermGPA  float64         `json:"term_gpa"`
	Credits  float64         `json:"credits"`
}

// TranscriptResponse is the student's full academic record.
type TranscriptResponse struct {
	Student          models.Student   `json:"student"`
	Terms            []TranscriptTerm `json:"terms"`
	CumulativeGPA    float64          `json:"cumulative_gpa"`
	CreditsAttempted float64          `json:"credits_attempted"`
	CreditsEarned    float64          `json:"credits_earned"`
	TransferCredits  float64          `json:"transfer_credits"`
	QualityPoints    float64          `json:"quality_points"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// GradeDistributionResponse summarizes finalized grades in a section.
type GradeDistributionResponse struct {
	SectionID   string         `json:"section_id"`
	CourseCode  string         `json:"course_code"`
	Counts      map[string]int `json:"counts"`
	GradedCount int            `json:"graded_count"`
	AverageGPA  float64        `json:"average_gpa"`
}
