package degree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func basicTemplate() Template {
	return Template{
		ID:           "tpl-cs",
		DegreeCode:   "BSCS",
		Name:         "BS Computer Science",
		TotalCredits: 120,
		RequiredGPA:  2.0,
		Categories: []Category{
			{
				ID:              "core",
				Name:            "Core",
				CreditsRequired: 6,
				Requirements: []Requirement{
					SpecificCourses{
						Base:      Base{ID: "intro", Description: "Intro pair", CreditsRequired: 6},
						CourseIDs: []string{"cs101", "cs102"},
					},
				},
			},
		},
	}
}

func TestRunAuditGPADeficiency(t *testing.T) {
	input := AuditInput{
		StudentID:  "stu-1",
		Template:   basicTemplate(),
		CurrentGPA: 1.7,
		Now:        time.Now().UTC(),
	}

	result := RunAudit(input)
	assert.InDelta(t, 0.3, result.GPADeficiency, 1e-9)

	input.CurrentGPA = 2.5
	result = RunAudit(input)
	assert.Zero(t, result.GPADeficiency)
}

func TestRunAuditEligibility(t *testing.T) {
	tpl := basicTemplate()
	tpl.TotalCredits = 6

	completed := []CompletedCourse{
		completedCourse("cs101", "CS", 101, 3, GradeA),
		completedCourse("cs102", "CS", 102, 3, GradeB),
	}

	result := RunAudit(AuditInput{
		StudentID:  "stu-1",
		Template:   tpl,
		Completed:  completed,
		CurrentGPA: 3.5,
		Now:        time.Now().UTC(),
	})

	assert.True(t, result.EligibleForGraduation)
	assert.Empty(t, result.Outstanding)
	assert.Equal(t, 100.0, result.CompletionPercentage)
	require.Len(t, result.Categories, 1)
	assert.True(t, result.Categories[0].Satisfied)
}

func TestRunAuditOutstandingBlocksEligibility(t *testing.T) {
	tpl := basicTemplate()
	tpl.TotalCredits = 3

	result := RunAudit(AuditInput{
		StudentID: "stu-1",
		Template:  tpl,
		Completed: []CompletedCourse{
			completedCourse("cs101", "CS", 101, 3, GradeA),
		},
		CurrentGPA: 3.0,
		Now:        time.Now().UTC(),
	})

	// Credits and GPA pass, the intro requirement does not.
	assert.False(t, result.EligibleForGraduation)
	require.Len(t, result.Outstanding, 1)
	assert.Equal(t, "intro", result.Outstanding[0].RequirementID)
}

func TestRunAuditCategoryClamp(t *testing.T) {
	tpl := basicTemplate()
	tpl.Categories = []Category{
		{
			ID:              "dup",
			Name:            "Double count",
			CreditsRequired: 6,
			Requirements: []Requirement{
				SpecificCourses{Base: Base{ID: "r1", CreditsRequired: 4}, CourseIDs: []string{"cs101"}},
				SpecificCourses{Base: Base{ID: "r2", CreditsRequired: 4}, CourseIDs: []string{"cs101"}},
			},
		},
	}

	result := RunAudit(AuditInput{
		StudentID: "stu-1",
		Template:  tpl,
		Completed: []CompletedCourse{
			completedCourse("cs101", "CS", 101, 4, GradeA),
		},
		CurrentGPA: 4.0,
		Now:        time.Now().UTC(),
	})

	require.Len(t, result.Categories, 1)
	assert.Equal(t, 6.0, result.Categories[0].CreditsCompleted)
}

func TestRunAuditCompletionPercentageRounded(t *testing.T) {
	tpl := basicTemplate()
	tpl.TotalCredits = 120

	result := RunAudit(AuditInput{
		StudentID: "stu-1",
		Template:  tpl,
		Completed: []CompletedCourse{
			completedCourse("cs101", "CS", 101, 50, GradeA),
		},
		TransferCredits: 10,
		CurrentGPA:      3.0,
		Now:             time.Now().UTC(),
	})

	assert.Equal(t, 60.0, result.TotalCreditsCompleted)
	assert.Equal(t, 50.0, result.CompletionPercentage)
}

func TestRunAuditTransferCreditsCount(t *testing.T) {
	tpl := basicTemplate()
	tpl.TotalCredits = 9
	tpl.Categories = nil

	result := RunAudit(AuditInput{
		StudentID: "stu-1",
		Template:  tpl,
		Completed: []CompletedCourse{
			completedCourse("cs101", "CS", 101, 3, GradeB),
		},
		TransferCredits: 6,
		CurrentGPA:      3.0,
		Now:             time.Now().UTC(),
	})

	assert.Equal(t, 9.0, result.TotalCreditsCompleted)
	assert.True(t, result.EligibleForGraduation)
}

func TestApplySubstitutionsActiveWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	catalog := map[string]Course{
		"cs250": {ID: "cs250", SubjectCode: "CS", Number: 250, CreditHours: 4},
	}
	completed := []CompletedCourse{
		completedCourse("cs240", "CS", 240, 3, GradeB),
	}

	active := Substitution{
		OriginalCourseID:   "cs240",
		SubstituteCourseID: "cs250",
		EffectiveDate:      now.AddDate(0, -1, 0),
	}

	out := ApplySubstitutions(completed, []Substitution{active}, catalog, now)
	require.Len(t, out, 1)
	assert.Equal(t, "cs250", out[0].CourseID)
	assert.Equal(t, 4.0, out[0].CreditHours)
	assert.Equal(t, GradeB, out[0].Grade)
}

func TestApplySubstitutionsWindowBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	catalog := map[string]Course{
		"cs250": {ID: "cs250", SubjectCode: "CS", Number: 250, CreditHours: 4},
	}
	completed := []CompletedCourse{
		completedCourse("cs240", "CS", 240, 3, GradeB),
	}

	notYet := Substitution{
		OriginalCourseID:   "cs240",
		SubstituteCourseID: "cs250",
		EffectiveDate:      now.AddDate(0, 1, 0),
	}
	expired := Substitution{
		OriginalCourseID:   "cs240",
		SubstituteCourseID: "cs250",
		EffectiveDate:      now.AddDate(0, -2, 0),
		ExpirationDate:     timePtr(now.AddDate(0, -1, 0)),
	}
	openEnded := Substitution{
		OriginalCourseID:   "cs240",
		SubstituteCourseID: "cs250",
		EffectiveDate:      now.AddDate(0, -1, 0),
		ExpirationDate:     nil,
	}

	for _, sub := range []Substitution{notYet, expired} {
		out := ApplySubstitutions(completed, []Substitution{sub}, catalog, now)
		require.Len(t, out, 1)
		assert.Equal(t, "cs240", out[0].CourseID)
	}

	out := ApplySubstitutions(completed, []Substitution{openEnded}, catalog, now)
	assert.Equal(t, "cs250", out[0].CourseID)
}

func TestApplySubstitutionsMissingSubstituteKeepsOriginal(t *testing.T) {
	now := time.Now().UTC()
	completed := []CompletedCourse{
		completedCourse("cs240", "CS", 240, 3, GradeB),
	}
	sub := Substitution{
		OriginalCourseID:   "cs240",
		SubstituteCourseID: "ghost",
		EffectiveDate:      now.AddDate(0, -1, 0),
	}

	out := ApplySubstitutions(completed, []Substitution{sub}, map[string]Course{}, now)

	require.Len(t, out, 1)
	assert.Equal(t, "cs240", out[0].CourseID)
}

func TestRunAuditAppliesSubstitutionBeforeEvaluation(t *testing.T) {
	now := time.Now().UTC()
	tpl := basicTemplate()
	tpl.Categories[0].Requirements = []Requirement{
		SpecificCourses{Base: Base{ID: "intro", CreditsRequired: 4}, CourseIDs: []string{"cs250"}},
	}
	tpl.TotalCredits = 4

	result := RunAudit(AuditInput{
		StudentID: "stu-1",
		Template:  tpl,
		Completed: []CompletedCourse{
			completedCourse("cs240", "CS", 240, 3, GradeB),
		},
		Substitutions: []Substitution{{
			OriginalCourseID:   "cs240",
			SubstituteCourseID: "cs250",
			EffectiveDate:      now.AddDate(0, -1, 0),
		}},
		Catalog: map[string]Course{
			"cs250": {ID: "cs250", SubjectCode: "CS", Number: 250, CreditHours: 4},
		},
		CurrentGPA: 3.0,
		Now:        now,
	})

	assert.Empty(t, result.Outstanding)
	assert.True(t, result.EligibleForGraduation)
	assert.Equal(t, 4.0, result.TotalCreditsCompleted)
}
