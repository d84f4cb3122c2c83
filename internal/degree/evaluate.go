package degree

import "math"

// Snapshot is the materialized student data evaluation runs against.
// GPA is supplied by the caller so the matching set can be restricted
// to credit-earning completions while the GPA still reflects the full
// graded history.
type Snapshot struct {
	Completed []CompletedCourse
	GPA       float64
}

// AlternativeStatus reports one conditional alternative's thresholds.
// Credit and course-count progress are tracked separately.
type AlternativeStatus struct {
	AlternativeID   string
	Description     string
	Satisfied       bool
	CreditsApplied  float64
	CreditsProgress int
	CoursesApplied  int
	CoursesProgress int
	GPAMet          bool
}

// Satisfaction reports how far a requirement is from being met.
type Satisfaction struct {
	RequirementID       string
	Type                RequirementType
	Description         string
	Satisfied           bool
	CreditsSatisfied    float64
	CreditsRequired     int
	ProgressPercentage  int
	SatisfyingCourseIDs []string
	Alternatives        []AlternativeStatus
}

// Evaluate dispatches on the requirement variant and scores it against
// the snapshot. Unknown variants evaluate as unsatisfied with zero
// progress; structural validation catches them before evaluation.
func Evaluate(req Requirement, snap Snapshot) Satisfaction {
	base := req.Meta()
	result := Satisfaction{
		RequirementID:   base.ID,
		Type:            TypeOf(req),
		Description:     base.Description,
		CreditsRequired: base.CreditsRequired,
	}

	switch r := req.(type) {
	case SpecificCourses:
		evaluateSpecific(r, snap, &result)
	case CourseGroup:
		evaluateGroup(r, snap, &result)
	case ConditionalGroup:
		evaluateConditional(r, snap, &result)
	case SequencedCourses:
		evaluateSequence(r, snap, &result)
	case CreditHours:
		evaluateCreditHours(r, snap, &result)
	default:
		return result
	}

	return result
}

// --- Variant evaluation ---

func evaluateSpecific(r SpecificCourses, snap Snapshot, out *Satisfaction) {
	required := make(map[string]bool, len(r.CourseIDs))
	for _, id := range r.CourseIDs {
		required[id] = true
	}

	for _, cc := range snap.Completed {
		if !required[cc.CourseID] {
			continue
		}
		out.CreditsSatisfied += cc.CreditHours
		out.SatisfyingCourseIDs = append(out.SatisfyingCourseIDs, cc.CourseID)
	}

	out.Satisfied = out.CreditsSatisfied >= float64(r.CreditsRequired)
	out.ProgressPercentage = progress(out.CreditsSatisfied, r.CreditsRequired)
}

func evaluateGroup(r CourseGroup, snap Snapshot, out *Satisfaction) {
	subjects := make(map[string]bool, len(r.SubjectCodes))
	for _, code := range r.SubjectCodes {
		subjects[code] = true
	}

	for _, cc := range snap.Completed {
		if !subjects[cc.SubjectCode] {
			continue
		}
		if !levelWithin(cc.Level(), r.MinLevel, r.MaxLevel) {
			continue
		}
		out.CreditsSatisfied += cc.CreditHours
		out.SatisfyingCourseIDs = append(out.SatisfyingCourseIDs, cc.CourseID)
	}

	out.Satisfied = out.CreditsSatisfied >= float64(r.CreditsRequired)
	out.ProgressPercentage = progress(out.CreditsSatisfied, r.CreditsRequired)
}

func evaluateConditional(r ConditionalGroup, snap Snapshot, out *Satisfaction) {
	for _, alt := range r.Alternatives {
		status := evaluateAlternative(alt, snap)
		out.Alternatives = append(out.Alternatives, status)
		if status.Satisfied && !out.Satisfied {
			out.Satisfied = true
			out.CreditsSatisfied = status.CreditsApplied
			out.SatisfyingCourseIDs = applicableCourseIDs(alt, snap.Completed)
		}
	}

	// Conditional groups have no natural credit measure; progress is
	// binary.
	if out.Satisfied {
		out.ProgressPercentage = 100
	}
}

func evaluateSequence(r SequencedCourses, snap Snapshot, out *Satisfaction) {
	inChain := make(map[string]bool)
	for _, link := range r.Chain {
		if link.CourseID != "" {
			inChain[link.CourseID] = true
		}
		if link.PrereqID != "" {
			inChain[link.PrereqID] = true
		}
	}

	completed := make(map[string]bool, len(snap.Completed))
	for _, cc := range snap.Completed {
		if !inChain[cc.CourseID] {
			continue
		}
		completed[cc.CourseID] = true
		out.CreditsSatisfied += cc.CreditHours
		out.SatisfyingCourseIDs = append(out.SatisfyingCourseIDs, cc.CourseID)
	}

	// One completed course with an uncompleted chain prerequisite
	// breaks the whole requirement.
	orderOK := true
	for _, link := range r.Chain {
		if link.PrereqID == "" {
			continue
		}
		if completed[link.CourseID] && !completed[link.PrereqID] {
			orderOK = false
			break
		}
	}

	out.Satisfied = orderOK && out.CreditsSatisfied >= float64(r.CreditsRequired)
	out.ProgressPercentage = progress(out.CreditsSatisfied, r.CreditsRequired)
}

func evaluateCreditHours(r CreditHours, snap Snapshot, out *Satisfaction) {
	for _, cc := range snap.Completed {
		out.CreditsSatisfied += cc.CreditHours
		out.SatisfyingCourseIDs = append(out.SatisfyingCourseIDs, cc.CourseID)
	}

	out.Satisfied = out.CreditsSatisfied >= float64(r.CreditsRequired)
	out.ProgressPercentage = progress(out.CreditsSatisfied, r.CreditsRequired)
}

// --- Alternatives ---

func evaluateAlternative(alt Alternative, snap Snapshot) AlternativeStatus {
	status := AlternativeStatus{
		AlternativeID: alt.ID,
		Description:   alt.Description,
		GPAMet:        alt.MinGPA <= 0 || snap.GPA >= alt.MinGPA,
	}

	for _, cc := range snap.Completed {
		if !alternativeApplies(alt, cc) {
			continue
		}
		status.CreditsApplied += cc.CreditHours
		status.CoursesApplied++
	}

	status.CreditsProgress = progress(status.CreditsApplied, alt.CreditsRequired)
	status.CoursesProgress = progress(float64(status.CoursesApplied), alt.CoursesRequired)

	// Both thresholds must hold; each is reported as its own
	// percentage above.
	status.Satisfied = status.GPAMet &&
		status.CreditsApplied >= float64(alt.CreditsRequired) &&
		status.CoursesApplied >= alt.CoursesRequired

	return status
}

func alternativeApplies(alt Alternative, cc CompletedCourse) bool {
	for _, id := range alt.CourseIDs {
		if id == cc.CourseID {
			return true
		}
	}
	for _, code := range alt.SubjectCodes {
		if code == cc.SubjectCode && levelWithin(cc.Level(), alt.MinLevel, alt.MaxLevel) {
			return true
		}
	}
	return false
}

func applicableCourseIDs(alt Alternative, completed []CompletedCourse) []string {
	var ids []string
	for _, cc := range completed {
		if alternativeApplies(alt, cc) {
			ids = append(ids, cc.CourseID)
		}
	}
	return ids
}

// --- Helpers ---

// progress computes min(100, floor(credits * 100 / required)). A
// non-positive requirement counts as fully met.
func progress(satisfied float64, required int) int {
	if required <= 0 {
		return 100
	}
	pct := int(math.Floor(satisfied * 100 / float64(required)))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// levelWithin checks a course level against an inclusive band. A zero
// max leaves the band open above.
func levelWithin(level, minLevel, maxLevel int) bool {
	if level < minLevel {
		return false
	}
	if maxLevel > 0 && level > maxLevel {
		return false
	}
	return true
}
