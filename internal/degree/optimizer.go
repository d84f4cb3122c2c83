package degree

import "sort"

// effortCreditDivisor weights remaining credits against selected course
// count in the effort score. Tunable, not derived.
const effortCreditDivisor = 3.0

// Path describes how one conditional alternative could be completed:
// the courses already applied, the remaining gaps and a greedy pick of
// catalog courses that closes them.
type Path struct {
	AlternativeID           string
	Description             string
	CreditsApplied          float64
	CoursesApplied          int
	AdditionalCreditsNeeded float64
	AdditionalCoursesNeeded int
	SelectedCourses         []Course
	Effort                  float64
	GPAGateMet              bool
	Recommended             bool
}

// PlanPaths produces one path per alternative of a conditional group,
// ranked ascending by effort. The cheapest path is marked recommended.
// Course selection is greedy by ascending credit hours; it minimizes
// course count as a side effect and is a heuristic, not an optimum.
func PlanPaths(group ConditionalGroup, catalog []Course, completed []CompletedCourse, gpa float64) []Path {
	snap := Snapshot{Completed: completed, GPA: gpa}
	done := make(map[string]bool, len(completed))
	for _, cc := range completed {
		done[cc.CourseID] = true
	}

	paths := make([]Path, 0, len(group.Alternatives))
	for _, alt := range group.Alternatives {
		status := evaluateAlternative(alt, snap)

		path := Path{
			AlternativeID:  alt.ID,
			Description:    alt.Description,
			CreditsApplied: status.CreditsApplied,
			CoursesApplied: status.CoursesApplied,
			GPAGateMet:     status.GPAMet,
		}

		path.AdditionalCreditsNeeded = float64(alt.CreditsRequired) - status.CreditsApplied
		if path.AdditionalCreditsNeeded < 0 {
			path.AdditionalCreditsNeeded = 0
		}
		path.AdditionalCoursesNeeded = alt.CoursesRequired - status.CoursesApplied
		if path.AdditionalCoursesNeeded < 0 {
			path.AdditionalCoursesNeeded = 0
		}

		path.SelectedCourses = pickCourses(alt, catalog, done, path.AdditionalCreditsNeeded, path.AdditionalCoursesNeeded)
		path.Effort = float64(len(path.SelectedCourses)) + path.AdditionalCreditsNeeded/effortCreditDivisor

		paths = append(paths, path)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Effort < paths[j].Effort
	})
	if len(paths) > 0 {
		paths[0].Recommended = true
	}
	return paths
}

// pickCourses greedily fills the remaining credit and count gaps with
// the smallest eligible courses first.
func pickCourses(alt Alternative, catalog []Course, done map[string]bool, creditsNeeded float64, coursesNeeded int) []Course {
	if creditsNeeded <= 0 && coursesNeeded <= 0 {
		return nil
	}

	eligible := make([]Course, 0, len(catalog))
	for _, course := range catalog {
		if done[course.ID] {
			continue
		}
		if !courseEligible(alt, course) {
			continue
		}
		eligible = append(eligible, course)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CreditHours != eligible[j].CreditHours {
			return eligible[i].CreditHours < eligible[j].CreditHours
		}
		if eligible[i].SubjectCode != eligible[j].SubjectCode {
			return eligible[i].SubjectCode < eligible[j].SubjectCode
		}
		return eligible[i].Number < eligible[j].Number
	})

	var picked []Course
	var credits float64
	for _, course := range eligible {
		if credits >= creditsNeeded && len(picked) >= coursesNeeded {
			break
		}
		picked = append(picked, course)
		credits += course.CreditHours
	}
	return picked
}

func courseEligible(alt Alternative, course Course) bool {
	for _, id := range alt.CourseIDs {
		if id == course.ID {
			return true
		}
	}
	for _, code := range alt.SubjectCodes {
		if code == course.SubjectCode && levelWithin(course.Level(), alt.MinLevel, alt.MaxLevel) {
			return true
		}
	}
	return false
}
