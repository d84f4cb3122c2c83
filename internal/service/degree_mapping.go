package service

import (
	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
)

// Conversions between stored requirement rows and the evaluator's value
// types. The evaluator stays free of db tags and variant columns; this
// file is the only place the two shapes meet.

func templateToDegree(detail *models.TemplateDetail) degree.Template {
	tpl := degree.Template{
		ID:           detail.ID,
		DegreeCode:   detail.DegreeCode,
		Name:         detail.Name,
		CatalogYear:  detail.CatalogYear,
		TotalCredits: detail.TotalCredits,
		RequiredGPA:  detail.RequiredGPA,
	}
	for _, cat := range detail.Categories {
		category := degree.Category{
			ID:              cat.ID,
			Name:            cat.Name,
			CreditsRequired: cat.CreditsRequired,
		}
		for _, req := range cat.Requirements {
			category.Requirements = append(category.Requirements, requirementToDegree(req))
		}
		tpl.Categories = append(tpl.Categories, category)
	}
	return tpl
}

func requirementToDegree(req models.RequirementDetail) degree.Requirement {
	base := degree.Base{
		ID:              req.ID,
		Description:     req.Description,
		CreditsRequired: req.CreditsRequired,
	}
	switch req.Type {
	case models.RequirementSpecificCourses:
		return degree.SpecificCourses{Base: base, CourseIDs: req.CourseIDs}
	case models.RequirementCourseGroup:
		return degree.CourseGroup{
			Base:         base,
			SubjectCodes: req.SubjectCodes,
			MinLevel:     req.MinLevel,
			MaxLevel:     req.MaxLevel,
		}
	case models.RequirementConditional:
		group := degree.ConditionalGroup{Base: base}
		for _, alt := range req.Alternatives {
			group.Alternatives = append(group.Alternatives, degree.Alternative{
				ID:              alt.ID,
				Description:     alt.Description,
				CourseIDs:       alt.CourseIDs,
				SubjectCodes:    alt.SubjectCodes,
				MinLevel:        alt.MinLevel,
				MaxLevel:        alt.MaxLevel,
				CreditsRequired: alt.CreditsRequired,
				CoursesRequired: alt.CoursesRequired,
				MinGPA:          alt.MinGPA,
			})
		}
		return group
	case models.RequirementSequenced:
		seq := degree.SequencedCourses{Base: base}
		for _, link := range req.Sequence {
			seq.Chain = append(seq.Chain, degree.PrerequisiteLink{
				CourseID: link.CourseID,
				PrereqID: link.PrereqCourseID,
				Position: link.Position,
			})
		}
		return seq
	default:
		return degree.CreditHours{Base: base}
	}
}

func completedToDegree(completed []models.CompletedCourse) []degree.CompletedCourse {
	out := make([]degree.CompletedCourse, 0, len(completed))
	for _, cc := range completed {
		out = append(out, degree.CompletedCourse{
			CourseID:    cc.CourseID,
			SubjectCode: cc.SubjectCode,
			Number:      cc.Number,
			CreditHours: cc.CreditHours,
			Grade:       cc.Grade,
			TermCode:    cc.TermCode,
		})
	}
	return out
}

func courseToDegree(c models.Course) degree.Course {
	return degree.Course{
		ID:          c.ID,
		SubjectCode: c.SubjectCode,
		Number:      c.Number,
		Title:       c.Title,
		CreditHours: c.CreditHours,
	}
}

func catalogToDegree(courses []models.Course) map[string]degree.Course {
	catalog := make(map[string]degree.Course, len(courses))
	for _, c := range courses {
		catalog[c.ID] = courseToDegree(c)
	}
	return catalog
}

func substitutionsToDegree(subs []models.CourseSubstitution) []degree.Substitution {
	out := make([]degree.Substitution, 0, len(subs))
	for _, sub := range subs {
		out = append(out, degree.Substitution{
			OriginalCourseID:   sub.OriginalCourseID,
			SubstituteCourseID: sub.SubstituteCourseID,
			EffectiveDate:      sub.EffectiveDate,
			ExpirationDate:     sub.ExpirationDate,
		})
	}
	return out
}

func linksToDegree(links []models.PrerequisiteLink) []degree.PrerequisiteLink {
	out := make([]degree.PrerequisiteLink, 0, len(links))
	for _, link := range links {
		out = append(out, degree.PrerequisiteLink{
			CourseID: link.CourseID,
			PrereqID: link.PrereqCourseID,
			Position: link.Position,
		})
	}
	return out
}
