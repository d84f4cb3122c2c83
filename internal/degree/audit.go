package degree

import (
	"math"
	"time"
)

// Template is a degree requirement template with its categories.
type Template struct {
	ID           string
	DegreeCode   string
	Name         string
	CatalogYear  int
	TotalCredits int
	RequiredGPA  float64
	Categories   []Category
}

// Category groups requirements under a shared credit quota.
type Category struct {
	ID              string
	Name            string
	CreditsRequired int
	Requirements    []Requirement
}

// Substitution swaps an approved original course for a substitute
// inside the completed set. A nil expiration leaves the approval
// window open-ended.
type Substitution struct {
	OriginalCourseID   string
	SubstituteCourseID string
	EffectiveDate      time.Time
	ExpirationDate     *time.Time
}

// ActiveAt reports whether the approval window covers the instant.
func (s Substitution) ActiveAt(now time.Time) bool {
	if now.Before(s.EffectiveDate) {
		return false
	}
	if s.ExpirationDate != nil && now.After(*s.ExpirationDate) {
		return false
	}
	return true
}

// AuditInput is the materialized snapshot a degree audit runs on. The
// evaluator never reaches back to storage: completed courses, catalog
// and substitutions arrive fully loaded, and CurrentGPA reflects the
// student's full graded history.
type AuditInput struct {
	StudentID       string
	Completed       []CompletedCourse
	TransferCredits float64
	CurrentGPA      float64
	Template        Template
	Substitutions   []Substitution
	Catalog         map[string]Course
	Now             time.Time
}

// CategoryResult is the clamped rollup for one requirement category.
type CategoryResult struct {
	CategoryID       string
	Name             string
	CreditsRequired  int
	CreditsCompleted float64
	Satisfied        bool
	Requirements     []Satisfaction
}

// AuditResult is the full outcome of a degree audit. It is a value;
// persisting the snapshot is the caller's concern.
type AuditResult struct {
	StudentID             string
	TemplateID            string
	DegreeCode            string
	TotalCreditsCompleted float64
	TotalCreditsRequired  int
	CompletionPercentage  float64
	CurrentGPA            float64
	RequiredGPA           float64
	GPADeficiency         float64
	EligibleForGraduation bool
	Categories            []CategoryResult
	Outstanding           []Satisfaction
	GeneratedAt           time.Time
}

// RunAudit evaluates the template against the student snapshot.
// Substitutions with an active approval window are applied to the
// completed set before any requirement is evaluated.
func RunAudit(input AuditInput) AuditResult {
	completed := ApplySubstitutions(input.Completed, input.Substitutions, input.Catalog, input.Now)
	snap := Snapshot{Completed: completed, GPA: input.CurrentGPA}

	result := AuditResult{
		StudentID:            input.StudentID,
		TemplateID:           input.Template.ID,
		DegreeCode:           input.Template.DegreeCode,
		TotalCreditsRequired: input.Template.TotalCredits,
		CurrentGPA:           input.CurrentGPA,
		RequiredGPA:          input.Template.RequiredGPA,
		GeneratedAt:          input.Now,
	}

	for _, cc := range completed {
		result.TotalCreditsCompleted += cc.CreditHours
	}
	result.TotalCreditsCompleted += input.TransferCredits

	for _, category := range input.Template.Categories {
		catResult := CategoryResult{
			CategoryID:      category.ID,
			Name:            category.Name,
			CreditsRequired: category.CreditsRequired,
		}

		var satisfiedCredits float64
		allSatisfied := true
		for _, req := range category.Requirements {
			sat := Evaluate(req, snap)
			catResult.Requirements = append(catResult.Requirements, sat)
			satisfiedCredits += sat.CreditsSatisfied
			if !sat.Satisfied {
				allSatisfied = false
				result.Outstanding = append(result.Outstanding, sat)
			}
		}

		// Requirements in one category may count the same course;
		// the rollup never exceeds the category quota.
		catResult.CreditsCompleted = math.Min(satisfiedCredits, float64(category.CreditsRequired))
		catResult.Satisfied = allSatisfied
		result.Categories = append(result.Categories, catResult)
	}

	if result.TotalCreditsRequired > 0 {
		pct := result.TotalCreditsCompleted / float64(result.TotalCreditsRequired) * 100
		result.CompletionPercentage = math.Min(100, round2(pct))
	} else {
		result.CompletionPercentage = 100
	}
	result.GPADeficiency = round2(math.Max(0, result.RequiredGPA-result.CurrentGPA))
	result.EligibleForGraduation = result.TotalCreditsCompleted >= float64(result.TotalCreditsRequired) &&
		result.CurrentGPA >= result.RequiredGPA &&
		len(result.Outstanding) == 0

	return result
}

// ApplySubstitutions returns a completed set with each active
// substitution's original removed and its substitute inserted using the
// substitute's catalog credits and the original's grade. Substitutions
// whose original is not completed, or whose substitute no longer
// resolves in the catalog, are skipped.
func ApplySubstitutions(completed []CompletedCourse, subs []Substitution, catalog map[string]Course, now time.Time) []CompletedCourse {
	if len(subs) == 0 {
		return completed
	}

	byOriginal := make(map[string]Substitution)
	for _, sub := range subs {
		if sub.ActiveAt(now) {
			byOriginal[sub.OriginalCourseID] = sub
		}
	}
	if len(byOriginal) == 0 {
		return completed
	}

	present := make(map[string]bool, len(completed))
	for _, cc := range completed {
		present[cc.CourseID] = true
	}

	out := make([]CompletedCourse, 0, len(completed))
	for _, cc := range completed {
		sub, ok := byOriginal[cc.CourseID]
		if !ok {
			out = append(out, cc)
			continue
		}
		substitute, ok := catalog[sub.SubstituteCourseID]
		if !ok || present[sub.SubstituteCourseID] {
			// Unresolvable substitute or one already completed
			// outright; keep the original fact.
			out = append(out, cc)
			continue
		}
		out = append(out, CompletedCourse{
			CourseID:    substitute.ID,
			SubjectCode: substitute.SubjectCode,
			Number:      substitute.Number,
			CreditHours: substitute.CreditHours,
			Grade:       cc.Grade,
			TermCode:    cc.TermCode,
		})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
