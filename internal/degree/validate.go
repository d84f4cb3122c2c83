package degree

import (
	"fmt"
	"strings"
)

// ValidateTemplate checks a template for structural defects before it
// is used for evaluation. Problems are collected as messages, never
// raised; the caller decides whether to block persistence. A clean
// template returns nil.
func ValidateTemplate(tpl Template) []string {
	var problems []string

	if strings.TrimSpace(tpl.Name) == "" {
		problems = append(problems, "template name is empty")
	}
	if tpl.TotalCredits <= 0 {
		problems = append(problems, fmt.Sprintf("template %q: total credits must be positive", tpl.Name))
	}
	if len(tpl.Categories) == 0 {
		problems = append(problems, fmt.Sprintf("template %q: no requirement categories", tpl.Name))
	}

	for _, category := range tpl.Categories {
		if strings.TrimSpace(category.Name) == "" {
			problems = append(problems, "category name is empty")
		}
		if category.CreditsRequired < 0 {
			problems = append(problems, fmt.Sprintf("category %q: negative credit quota", category.Name))
		}
		for _, req := range category.Requirements {
			problems = append(problems, validateRequirement(req)...)
		}
	}

	return problems
}

func validateRequirement(req Requirement) []string {
	var problems []string
	base := req.Meta()

	name := base.Description
	if strings.TrimSpace(name) == "" {
		name = base.ID
		problems = append(problems, fmt.Sprintf("requirement %q: missing description", base.ID))
	}
	if base.CreditsRequired < 0 {
		problems = append(problems, fmt.Sprintf("requirement %q: negative credits required", name))
	}

	switch r := req.(type) {
	case SpecificCourses:
		if len(r.CourseIDs) == 0 {
			problems = append(problems, fmt.Sprintf("requirement %q: empty course list", name))
		}
	case CourseGroup:
		if len(r.SubjectCodes) == 0 {
			problems = append(problems, fmt.Sprintf("requirement %q: empty subject list", name))
		}
		if r.MaxLevel > 0 && r.MinLevel > r.MaxLevel {
			problems = append(problems, fmt.Sprintf("requirement %q: min level %d exceeds max level %d", name, r.MinLevel, r.MaxLevel))
		}
	case ConditionalGroup:
		if len(r.Alternatives) == 0 {
			problems = append(problems, fmt.Sprintf("requirement %q: conditional group has no alternatives", name))
		}
		for _, alt := range r.Alternatives {
			problems = append(problems, validateAlternative(name, alt)...)
		}
	case SequencedCourses:
		if len(r.Chain) == 0 {
			problems = append(problems, fmt.Sprintf("requirement %q: empty course sequence", name))
			break
		}
		if cycle := BuildGraph(r.Chain).DetectCycle(); cycle != nil {
			problems = append(problems, fmt.Sprintf("requirement %q: prerequisite cycle %s", name, strings.Join(cycle, " -> ")))
		}
	case CreditHours:
		// Base checks cover everything for a plain credit tally.
	default:
		problems = append(problems, fmt.Sprintf("requirement %q: unknown requirement variant", name))
	}

	return problems
}

func validateAlternative(owner string, alt Alternative) []string {
	var problems []string

	if len(alt.CourseIDs) == 0 && len(alt.SubjectCodes) == 0 {
		problems = append(problems, fmt.Sprintf("requirement %q: alternative %q matches no courses", owner, alt.Description))
	}
	if alt.CreditsRequired < 0 {
		problems = append(problems, fmt.Sprintf("requirement %q: alternative %q has negative credits", owner, alt.Description))
	}
	if alt.CoursesRequired < 0 {
		problems = append(problems, fmt.Sprintf("requirement %q: alternative %q has negative course count", owner, alt.Description))
	}
	if alt.MaxLevel > 0 && alt.MinLevel > alt.MaxLevel {
		problems = append(problems, fmt.Sprintf("requirement %q: alternative %q level band inverted", owner, alt.Description))
	}

	return problems
}
