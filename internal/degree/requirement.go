package degree

// RequirementType names a degree requirement variant.
type RequirementType string

const (
	TypeSpecificCourses  RequirementType = "SPECIFIC_COURSES"
	TypeCourseGroup      RequirementType = "COURSE_GROUP"
	TypeConditionalGroup RequirementType = "CONDITIONAL_GROUP"
	TypeSequencedCourses RequirementType = "SEQUENCED_COURSES"
	TypeCreditHours      RequirementType = "CREDIT_HOURS"
)

// Base carries the fields shared by every requirement variant.
type Base struct {
	ID              string
	Description     string
	CreditsRequired int
}

// Meta exposes the shared fields through the Requirement interface.
func (b Base) Meta() Base { return b }

func (Base) requirement() {}

// Requirement is the closed union of degree requirement variants.
// Embedding Base seals the set to this package's types.
type Requirement interface {
	Meta() Base
	requirement()
}

// SpecificCourses requires credits from an explicit course set.
type SpecificCourses struct {
	Base
	CourseIDs []string
}

// CourseGroup requires credits from subjects within a level band. A
// MaxLevel of zero leaves the band unbounded above.
type CourseGroup struct {
	Base
	SubjectCodes []string
	MinLevel     int
	MaxLevel     int
}

// Alternative is one pattern able to satisfy a conditional group. A
// completed course applies when its id is in CourseIDs or its subject
// is in SubjectCodes with a level inside the band. The alternative is
// satisfied when both the credit and course-count thresholds hold and
// the GPA gate, when set, is met.
type Alternative struct {
	ID              string
	Description     string
	CourseIDs       []string
	SubjectCodes    []string
	MinLevel        int
	MaxLevel        int
	CreditsRequired int
	CoursesRequired int
	MinGPA          float64
}

// ConditionalGroup is satisfied by any one of its alternatives.
type ConditionalGroup struct {
	Base
	Alternatives []Alternative
}

// SequencedCourses requires the chain's credits with every prerequisite
// edge respected: a completed course whose chain prerequisite is not
// completed leaves the requirement unsatisfied.
type SequencedCourses struct {
	Base
	Chain []PrerequisiteLink
}

// CreditHours requires a plain total of completed credit hours with no
// course filtering.
type CreditHours struct {
	Base
}

// TypeOf reports the variant tag for a requirement. Variants are used
// as value types throughout the package.
func TypeOf(r Requirement) RequirementType {
	switch r.(type) {
	case SpecificCourses:
		return TypeSpecificCourses
	case CourseGroup:
		return TypeCourseGroup
	case ConditionalGroup:
		return TypeConditionalGroup
	case SequencedCourses:
		return TypeSequencedCourses
	case CreditHours:
		return TypeCreditHours
	default:
		return ""
	}
}
