package models

import (
	"time"

	"github.com/lib/pq"
)

// RequirementType discriminates stored degree requirement variants.
type RequirementType string

const (
	RequirementSpecificCourses RequirementType = "SPECIFIC_COURSES"
	RequirementCourseGroup     RequirementType = "COURSE_GROUP"
	RequirementConditional     RequirementType = "CONDITIONAL_GROUP"
	RequirementSequenced       RequirementType = "SEQUENCED_COURSES"
	RequirementCreditHours     RequirementType = "CREDIT_HOURS"
)

// DegreeTemplate is a versioned set of graduation requirements for a
// degree code. At most one template per code may be in effect at any
// instant; the effective window enforces this.
type DegreeTemplate struct {
	ID             string     `db:"id" json:"id"`
	DegreeCode     string     `db:"degree_code" json:"degree_code"`
	Name           string     `db:"name" json:"name"`
	CatalogYear    int        `db:"catalog_year" json:"catalog_year"`
	TotalCredits   int        `db:"total_credits" json:"total_credits"`
	RequiredGPA    float64    `db:"required_gpa" json:"required_gpa"`
	EffectiveDate  time.Time  `db:"effective_date" json:"effective_date"`
	ExpirationDate *time.Time `db:"expiration_date" json:"expiration_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// RequirementCategory is a named bucket of requirements with its own
// credit quota, e.g. "General Education".
type RequirementCategory struct {
	ID              string `db:"id" json:"id"`
	TemplateID      string `db:"template_id" json:"template_id"`
	Name            string `db:"name" json:"name"`
	CreditsRequired int    `db:"credits_required" json:"credits_required"`
	Position        int    `db:"position" json:"position"`
}

// DegreeRequirement is one stored requirement row. Variant columns are
// meaningful per Type; unused columns stay at their zero values.
type DegreeRequirement struct {
	ID              string          `db:"id" json:"id"`
	CategoryID      string          `db:"category_id" json:"category_id"`
	Type            RequirementType `db:"type" json:"type"`
	Description     string          `db:"description" json:"description"`
	CreditsRequired int             `db:"credits_required" json:"credits_required"`
	CourseIDs       pq.StringArray  `db:"course_ids" json:"course_ids,omitempty"`
	SubjectCodes    pq.StringArray  `db:"subject_codes" json:"subject_codes,omitempty"`
	MinLevel        int             `db:"min_level" json:"min_level,omitempty"`
	MaxLevel        int             `db:"max_level" json:"max_level,omitempty"`
	Position        int             `db:"position" json:"position"`
}

// RequirementAlternative is one option inside a conditional requirement.
type RequirementAlternative struct {
	ID              string         `db:"id" json:"id"`
	RequirementID   string         `db:"requirement_id" json:"requirement_id"`
	Description     string         `db:"description" json:"description"`
	CourseIDs       pq.StringArray `db:"course_ids" json:"course_ids,omitempty"`
	SubjectCodes    pq.StringArray `db:"subject_codes" json:"subject_codes,omitempty"`
	MinLevel        int            `db:"min_level" json:"min_level,omitempty"`
	MaxLevel        int            `db:"max_level" json:"max_level,omitempty"`
	CreditsRequired int            `db:"credits_required" json:"credits_required"`
	CoursesRequired int            `db:"courses_required" json:"courses_required"`
	MinGPA          float64        `db:"min_gpa" json:"min_gpa,omitempty"`
	Position        int            `db:"position" json:"position"`
}

// SequenceLink is one ordered edge of a sequenced requirement's chain.
type SequenceLink struct {
	RequirementID  string `db:"requirement_id" json:"requirement_id"`
	CourseID       string `db:"course_id" json:"course_id"`
	PrereqCourseID string `db:"prereq_course_id" json:"prereq_course_id"`
	Position       int    `db:"position" json:"position"`
}

// RequirementDetail bundles a requirement with its variant children.
type RequirementDetail struct {
	DegreeRequirement
	Alternatives []RequirementAlternative `json:"alternatives,omitempty"`
	Sequence     []SequenceLink           `json:"sequence,omitempty"`
}

// CategoryDetail bundles a category with its requirements.
type CategoryDetail struct {
	RequirementCategory
	Requirements []RequirementDetail `json:"requirements"`
}

// TemplateDetail is the fully loaded requirement tree for evaluation.
type TemplateDetail struct {
	DegreeTemplate
	Categories []CategoryDetail `json:"categories"`
}
