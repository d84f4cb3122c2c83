package degree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogCourse(id, subject string, number int, credits float64) Course {
	return Course{ID: id, SubjectCode: subject, Number: number, CreditHours: credits}
}

func TestPlanPathsGreedyFill(t *testing.T) {
	group := ConditionalGroup{
		Base: Base{ID: "lang"},
		Alternatives: []Alternative{
			{
				ID:              "spanish",
				SubjectCodes:    []string{"SPA"},
				CreditsRequired: 8,
				CoursesRequired: 2,
			},
		},
	}
	catalog := []Course{
		catalogCourse("spa340", "SPA", 340, 5),
		catalogCourse("spa102", "SPA", 102, 4),
		catalogCourse("spa201", "SPA", 201, 3),
		catalogCourse("fr101", "FRE", 101, 4),
	}
	completed := []CompletedCourse{
		completedCourse("spa101", "SPA", 101, 4, GradeB),
	}

	paths := PlanPaths(group, catalog, completed, 3.0)

	require.Len(t, paths, 1)
	path := paths[0]
	assert.Equal(t, "spanish", path.AlternativeID)
	assert.Equal(t, 4.0, path.CreditsApplied)
	assert.Equal(t, 4.0, path.AdditionalCreditsNeeded)
	assert.Equal(t, 1, path.AdditionalCoursesNeeded)
	assert.True(t, path.Recommended)

	// Smallest-credit courses are taken first, which here costs an
	// extra course over picking spa102 alone.
	require.Len(t, path.SelectedCourses, 2)
	assert.Equal(t, "spa201", path.SelectedCourses[0].ID)
	assert.Equal(t, "spa102", path.SelectedCourses[1].ID)
	assert.InDelta(t, 2+4.0/3, path.Effort, 1e-9)
}

func TestPlanPathsRanksByEffort(t *testing.T) {
	group := ConditionalGroup{
		Base: Base{ID: "sci"},
		Alternatives: []Alternative{
			{
				ID:              "chem",
				SubjectCodes:    []string{"CHEM"},
				CreditsRequired: 8,
				CoursesRequired: 2,
			},
			{
				ID:              "bio",
				SubjectCodes:    []string{"BIO"},
				CreditsRequired: 8,
				CoursesRequired: 2,
			},
		},
	}
	catalog := []Course{
		catalogCourse("chem101", "CHEM", 101, 4),
		catalogCourse("chem102", "CHEM", 102, 4),
		catalogCourse("bio102", "BIO", 102, 4),
	}
	// One bio course done already, so the bio path needs less.
	completed := []CompletedCourse{
		completedCourse("bio101", "BIO", 101, 4, GradeA),
	}

	paths := PlanPaths(group, catalog, completed, 3.0)

	require.Len(t, paths, 2)
	assert.Equal(t, "bio", paths[0].AlternativeID)
	assert.True(t, paths[0].Recommended)
	assert.False(t, paths[1].Recommended)
	assert.Less(t, paths[0].Effort, paths[1].Effort)
}

func TestPlanPathsSatisfiedAlternativeNeedsNothing(t *testing.T) {
	group := ConditionalGroup{
		Base: Base{ID: "lang"},
		Alternatives: []Alternative{
			{ID: "done", CourseIDs: []string{"fr101"}, CreditsRequired: 4, CoursesRequired: 1},
		},
	}
	completed := []CompletedCourse{
		completedCourse("fr101", "FRE", 101, 4, GradeA),
	}

	paths := PlanPaths(group, []Course{catalogCourse("fr102", "FRE", 102, 4)}, completed, 3.0)

	require.Len(t, paths, 1)
	assert.Zero(t, paths[0].AdditionalCreditsNeeded)
	assert.Zero(t, paths[0].AdditionalCoursesNeeded)
	assert.Empty(t, paths[0].SelectedCourses)
	assert.Zero(t, paths[0].Effort)
}

func TestPlanPathsExcludesCompletedAndForeignCourses(t *testing.T) {
	group := ConditionalGroup{
		Base: Base{ID: "lang"},
		Alternatives: []Alternative{
			{ID: "spanish", SubjectCodes: []string{"SPA"}, CreditsRequired: 8, CoursesRequired: 2},
		},
	}
	catalog := []Course{
		catalogCourse("spa101", "SPA", 101, 4),
		catalogCourse("art110", "ART", 110, 3),
		catalogCourse("spa102", "SPA", 102, 4),
	}
	completed := []CompletedCourse{
		completedCourse("spa101", "SPA", 101, 4, GradeC),
	}

	paths := PlanPaths(group, catalog, completed, 2.0)

	require.Len(t, paths, 1)
	require.Len(t, paths[0].SelectedCourses, 1)
	assert.Equal(t, "spa102", paths[0].SelectedCourses[0].ID)
}

func TestPlanPathsReportsGPAGate(t *testing.T) {
	group := ConditionalGroup{
		Base: Base{ID: "honors"},
		Alternatives: []Alternative{
			{ID: "hon", CourseIDs: []string{"hon400"}, CreditsRequired: 3, CoursesRequired: 1, MinGPA: 3.5},
		},
	}

	paths := PlanPaths(group, []Course{catalogCourse("hon400", "HON", 400, 3)}, nil, 3.0)

	require.Len(t, paths, 1)
	assert.False(t, paths[0].GPAGateMet)
}
