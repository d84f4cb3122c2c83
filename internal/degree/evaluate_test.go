package degree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedCourse(id, subject string, number int, credits float64, grade string) CompletedCourse {
	return CompletedCourse{
		CourseID:    id,
		SubjectCode: subject,
		Number:      number,
		CreditHours: credits,
		Grade:       grade,
	}
}

func TestEvaluateSpecificCoursesPartial(t *testing.T) {
	req := SpecificCourses{
		Base:      Base{ID: "cap", Description: "Capstone pair", CreditsRequired: 6},
		CourseIDs: []string{"501", "502"},
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("501", "CS", 501, 3, GradeB),
	}}

	result := Evaluate(req, snap)

	assert.False(t, result.Satisfied)
	assert.Equal(t, 3.0, result.CreditsSatisfied)
	assert.Equal(t, 50, result.ProgressPercentage)
	assert.Equal(t, []string{"501"}, result.SatisfyingCourseIDs)
	assert.Equal(t, TypeSpecificCourses, result.Type)
}

func TestEvaluateSpecificCoursesSatisfied(t *testing.T) {
	req := SpecificCourses{
		Base:      Base{ID: "cap", CreditsRequired: 6},
		CourseIDs: []string{"501", "502"},
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("501", "CS", 501, 3, GradeB),
		completedCourse("502", "CS", 502, 3, GradeA),
		completedCourse("999", "ART", 110, 3, GradeA),
	}}

	result := Evaluate(req, snap)

	assert.True(t, result.Satisfied)
	assert.Equal(t, 6.0, result.CreditsSatisfied)
	assert.Equal(t, 100, result.ProgressPercentage)
	assert.NotContains(t, result.SatisfyingCourseIDs, "999")
}

func TestEvaluateCreditHoursCapsProgress(t *testing.T) {
	req := CreditHours{Base: Base{ID: "total", CreditsRequired: 120}}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("a", "CS", 101, 60, GradeA),
		completedCourse("b", "CS", 201, 60, GradeB),
		completedCourse("c", "CS", 301, 5, GradeC),
	}}

	result := Evaluate(req, snap)

	assert.True(t, result.Satisfied)
	assert.Equal(t, 125.0, result.CreditsSatisfied)
	assert.Equal(t, 100, result.ProgressPercentage)
}

func TestEvaluateCourseGroupFiltersSubjectAndLevel(t *testing.T) {
	req := CourseGroup{
		Base:         Base{ID: "upper-cs", CreditsRequired: 6},
		SubjectCodes: []string{"CS"},
		MinLevel:     300,
		MaxLevel:     400,
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("cs101", "CS", 101, 3, GradeA),
		completedCourse("cs301", "CS", 301, 3, GradeB),
		completedCourse("cs401", "CS", 401, 3, GradeB),
		completedCourse("cs501", "CS", 501, 3, GradeA),
		completedCourse("ma301", "MATH", 301, 3, GradeA),
	}}

	result := Evaluate(req, snap)

	assert.True(t, result.Satisfied)
	assert.Equal(t, 6.0, result.CreditsSatisfied)
	assert.ElementsMatch(t, []string{"cs301", "cs401"}, result.SatisfyingCourseIDs)
}

func TestEvaluateCourseGroupOpenUpperBound(t *testing.T) {
	req := CourseGroup{
		Base:         Base{ID: "adv", CreditsRequired: 3},
		SubjectCodes: []string{"CS"},
		MinLevel:     300,
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("cs501", "CS", 501, 3, GradeA),
	}}

	result := Evaluate(req, snap)

	assert.True(t, result.Satisfied)
}

func TestEvaluateConditionalGroupORSemantics(t *testing.T) {
	req := ConditionalGroup{
		Base: Base{ID: "lang", Description: "Language option"},
		Alternatives: []Alternative{
			{
				ID:              "alt-fr",
				CourseIDs:       []string{"fr101", "fr102"},
				CreditsRequired: 8,
				CoursesRequired: 2,
			},
			{
				ID:              "alt-de",
				CourseIDs:       []string{"de101", "de102"},
				CreditsRequired: 8,
				CoursesRequired: 2,
			},
		},
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("de101", "GER", 101, 4, GradeB),
		completedCourse("de102", "GER", 102, 4, GradeB),
	}}

	result := Evaluate(req, snap)

	require.True(t, result.Satisfied)
	assert.Equal(t, 100, result.ProgressPercentage)
	require.Len(t, result.Alternatives, 2)
	assert.False(t, result.Alternatives[0].Satisfied)
	assert.True(t, result.Alternatives[1].Satisfied)
	assert.ElementsMatch(t, []string{"de101", "de102"}, result.SatisfyingCourseIDs)
}

func TestEvaluateConditionalGroupBinaryProgress(t *testing.T) {
	req := ConditionalGroup{
		Base: Base{ID: "lang"},
		Alternatives: []Alternative{
			{ID: "alt", CourseIDs: []string{"fr101"}, CreditsRequired: 4, CoursesRequired: 1},
		},
	}

	unsat := Evaluate(req, Snapshot{})
	assert.False(t, unsat.Satisfied)
	assert.Equal(t, 0, unsat.ProgressPercentage)

	sat := Evaluate(req, Snapshot{Completed: []CompletedCourse{
		completedCourse("fr101", "FRE", 101, 4, GradeA),
	}})
	assert.True(t, sat.Satisfied)
	assert.Equal(t, 100, sat.ProgressPercentage)
}

func TestEvaluateConditionalAlternativeThresholdsAreAnded(t *testing.T) {
	// Credits met but course count short: the alternative stays
	// unsatisfied while both percentages report independently.
	req := ConditionalGroup{
		Base: Base{ID: "sci"},
		Alternatives: []Alternative{
			{ID: "alt", SubjectCodes: []string{"BIO"}, CreditsRequired: 4, CoursesRequired: 2},
		},
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("bio210", "BIO", 210, 5, GradeA),
	}}

	result := Evaluate(req, snap)

	require.Len(t, result.Alternatives, 1)
	alt := result.Alternatives[0]
	assert.False(t, alt.Satisfied)
	assert.Equal(t, 100, alt.CreditsProgress)
	assert.Equal(t, 50, alt.CoursesProgress)
	assert.False(t, result.Satisfied)
}

func TestEvaluateConditionalGPAGate(t *testing.T) {
	req := ConditionalGroup{
		Base: Base{ID: "honors"},
		Alternatives: []Alternative{
			{ID: "alt", CourseIDs: []string{"hon400"}, CreditsRequired: 3, CoursesRequired: 1, MinGPA: 3.5},
		},
	}
	completed := []CompletedCourse{completedCourse("hon400", "HON", 400, 3, GradeA)}

	below := Evaluate(req, Snapshot{Completed: completed, GPA: 3.2})
	require.Len(t, below.Alternatives, 1)
	assert.False(t, below.Alternatives[0].GPAMet)
	assert.False(t, below.Satisfied)

	above := Evaluate(req, Snapshot{Completed: completed, GPA: 3.6})
	assert.True(t, above.Satisfied)
}

func TestEvaluateSequencedCoursesInOrder(t *testing.T) {
	req := SequencedCourses{
		Base: Base{ID: "core-seq", CreditsRequired: 9},
		Chain: []PrerequisiteLink{
			{CourseID: "cs201", PrereqID: "cs101", Position: 1},
			{CourseID: "cs301", PrereqID: "cs201", Position: 2},
		},
	}
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("cs101", "CS", 101, 3, GradeA),
		completedCourse("cs201", "CS", 201, 3, GradeB),
		completedCourse("cs301", "CS", 301, 3, GradeB),
	}}

	result := Evaluate(req, snap)

	assert.True(t, result.Satisfied)
	assert.Equal(t, 9.0, result.CreditsSatisfied)
	assert.Equal(t, 100, result.ProgressPercentage)
}

func TestEvaluateSequencedCoursesOutOfOrderBreaks(t *testing.T) {
	req := SequencedCourses{
		Base: Base{ID: "core-seq", CreditsRequired: 6},
		Chain: []PrerequisiteLink{
			{CourseID: "cs201", PrereqID: "cs101", Position: 1},
		},
	}
	// cs201 done without cs101: credits still count, satisfaction
	// does not.
	snap := Snapshot{Completed: []CompletedCourse{
		completedCourse("cs201", "CS", 201, 3, GradeB),
		completedCourse("cs999", "CS", 999, 3, GradeA),
	}}

	result := Evaluate(req, snap)

	assert.False(t, result.Satisfied)
	assert.Equal(t, 3.0, result.CreditsSatisfied)
	assert.Equal(t, 50, result.ProgressPercentage)
}

func TestEvaluateMonotonicity(t *testing.T) {
	requirements := []Requirement{
		SpecificCourses{Base: Base{ID: "s", CreditsRequired: 9}, CourseIDs: []string{"a", "b", "c"}},
		CourseGroup{Base: Base{ID: "g", CreditsRequired: 9}, SubjectCodes: []string{"CS"}, MinLevel: 100},
		CreditHours{Base: Base{ID: "h", CreditsRequired: 9}},
	}
	before := []CompletedCourse{completedCourse("a", "CS", 101, 3, GradeB)}
	after := append(append([]CompletedCourse(nil), before...), completedCourse("b", "CS", 201, 3, GradeA))

	for _, req := range requirements {
		first := Evaluate(req, Snapshot{Completed: before})
		second := Evaluate(req, Snapshot{Completed: after})
		assert.GreaterOrEqual(t, second.CreditsSatisfied, first.CreditsSatisfied, "requirement %s", req.Meta().ID)
		assert.GreaterOrEqual(t, second.ProgressPercentage, first.ProgressPercentage, "requirement %s", req.Meta().ID)
	}
}

func TestProgressGuards(t *testing.T) {
	assert.Equal(t, 100, progress(3, 0))
	assert.Equal(t, 100, progress(0, -1))
	assert.Equal(t, 0, progress(0, 10))
	assert.Equal(t, 33, progress(1, 3))
}
