package dto

import (
	"time"

	"github.com/campusops/registrar-api/internal/degree"
)

// CourseSummary is the catalog slice recommendation responses carry.
type CourseSummary struct {
	CourseID    string  `json:"course_id"`
	CourseCode  string  `json:"course_code"`
	Title       string  `json:"title"`
	CreditHours float64 `json:"credit_hours"`
	Level       int     `json:"level"`
}

// RecommendationItem is one suggested course with its score breakdown.
// Semester is the course's position in the catalog prerequisite
// sequence, not a promise about the student's own timeline.
type RecommendationItem struct {
	Course       CourseSummary `json:"course"`
	Score        float64       `json:"score"`
	Urgency      float64       `json:"urgency"`
	LevelFit     float64       `json:"level_fit"`
	CreditFit    float64       `json:"credit_fit"`
	Requirements []string      `json:"requirements"`
	Semester     int           `json:"semester"`
}

// RecommendationResponse lists the highest scoring next courses for a
// student under the template in effect for their degree code.
type RecommendationResponse struct {
	StudentID   string               `json:"student_id"`
	DegreeCode  string               `json:"degree_code"`
	TemplateID  string               `json:"template_id"`
	Items       []RecommendationItem `json:"items"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// SemesterPlan groups the outstanding courses of one recommended
// semester.
type SemesterPlan struct {
	Semester int             `json:"semester"`
	Courses  []CourseSummary `json:"courses"`
	Credits  float64         `json:"credits"`
}

// SequenceResponse is the prerequisite-ordered study plan over the
// courses a student still needs for their degree.
type SequenceResponse struct {
	StudentID   string         `json:"student_id"`
	DegreeCode  string         `json:"degree_code"`
	TemplateID  string         `json:"template_id"`
	Semesters   []SemesterPlan `json:"semesters"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// ComparisonSide scores one course of a head to head comparison.
type ComparisonSide struct {
	Course         CourseSummary `json:"course"`
	Score          float64       `json:"score"`
	Eligible       bool          `json:"eligible"`
	MissingPrereqs []string      `json:"missing_prereqs,omitempty"`
	Requirements   []string      `json:"requirements"`
}

// ComparisonResponse reports which of two courses advances the
// student's remaining requirements more. Winner is empty on a tie.
type ComparisonResponse struct {
	StudentID   string         `json:"student_id"`
	First       ComparisonSide `json:"first"`
	Second      ComparisonSide `json:"second"`
	Winner      string         `json:"winner"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// PathPlanResponse wraps conditional path planning for one requirement.
type PathPlanResponse struct {
	StudentID     string        `json:"student_id"`
	RequirementID string        `json:"requirement_id"`
	Paths         []degree.Path `json:"paths"`
	GeneratedAt   time.Time     `json:"generated_at"`
}
