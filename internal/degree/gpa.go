package degree

// Letter grades recorded on transcripts.
const (
	GradeAPlus  = "A+"
	GradeA      = "A"
	GradeAMinus = "A-"
	GradeBPlus  = "B+"
	GradeB      = "B"
	GradeBMinus = "B-"
	GradeCPlus  = "C+"
	GradeC      = "C"
	GradeCMinus = "C-"
	GradeDPlus  = "D+"
	GradeD      = "D"
	GradeDMinus = "D-"
	GradeF      = "F"
	GradeW      = "W"
	GradeI      = "I"
	GradeP      = "P"
	GradeNC     = "NC"
)

// gradePoints maps GPA-bearing letter grades to their point values.
// A+ carries no bonus over A.
var gradePoints = map[string]float64{
	GradeAPlus:  4.0,
	GradeA:      4.0,
	GradeAMinus: 3.7,
	GradeBPlus:  3.3,
	GradeB:      3.0,
	GradeBMinus: 2.7,
	GradeCPlus:  2.3,
	GradeC:      2.0,
	GradeCMinus: 1.7,
	GradeDPlus:  1.3,
	GradeD:      1.0,
	GradeDMinus: 0.7,
	GradeF:      0.0,
}

// GradePoints returns the point value for a letter grade. The second
// return is false for marks that carry no grade points (W, I, P, NC)
// and for unknown letters.
func GradePoints(letter string) (float64, bool) {
	points, ok := gradePoints[letter]
	return points, ok
}

// IsPassing reports whether a grade earns credit toward requirements.
// D- and above pass, as does the credit-only P mark.
func IsPassing(letter string) bool {
	if letter == GradeP {
		return true
	}
	_, ok := gradePoints[letter]
	return ok && letter != GradeF
}

// QualityPoints returns grade points multiplied by credit hours. Marks
// without grade points contribute zero.
func QualityPoints(letter string, creditHours float64) float64 {
	points, ok := gradePoints[letter]
	if !ok {
		return 0
	}
	return points * creditHours
}

// GPA computes sum(quality points) / sum(credit hours) over GPA-bearing
// grades only. Returns 0 when no graded credits exist.
func GPA(completed []CompletedCourse) float64 {
	var qualityPoints, credits float64
	for _, cc := range completed {
		points, ok := gradePoints[cc.Grade]
		if !ok {
			continue
		}
		qualityPoints += points * cc.CreditHours
		credits += cc.CreditHours
	}
	if credits == 0 {
		return 0
	}
	return qualityPoints / credits
}

// CourseLevel derives the level band from a numeric course code using
// its leading digit, e.g. 301 -> 300.
func CourseLevel(number int) int {
	if number <= 0 {
		return 0
	}
	n := number
	for n >= 10 {
		n /= 10
	}
	return n * 100
}
