package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/dto"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

// Weights for the next course score. Tunable, not derived.
const (
	weightUrgency   = 0.5
	weightLevelFit  = 0.3
	weightCreditFit = 0.2
)

type recommendationTemplateReader interface {
	FindActive(ctx context.Context, degreeCode string, at time.Time) (*models.DegreeTemplate, error)
	FindDetail(ctx context.Context, id string) (*models.TemplateDetail, error)
}

type courseGraphRepository interface {
	ListAll(ctx context.Context) ([]models.Course, error)
	ListPrerequisiteLinks(ctx context.Context) ([]models.PrerequisiteLink, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type activeEnrollmentReader interface {
	ActiveCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// RecommendationService ranks the catalog against a student's unmet
// requirements: next course suggestions, a prerequisite ordered study
// plan, head to head course comparison and conditional path planning.
// Responses are cached per student and degree code; enrollment and
// grade changes invalidate them through the student pattern sweep.
type RecommendationService struct {
	templates  recommendationTemplateReader
	students   studentReader
	history    completedCourseReader
	subs       substitutionReader
	courses    courseGraphRepository
	active     activeEnrollmentReader
	cache      *CacheService
	metrics    *MetricsService
	cacheTTL   time.Duration
	maxResults int
	logger     *zap.Logger
}

// NewRecommendationService constructs RecommendationService.
func NewRecommendationService(
	templates recommendationTemplateReader,
	students studentReader,
	history completedCourseReader,
	subs substitutionReader,
	courses courseGraphRepository,
	active activeEnrollmentReader,
	cache *CacheService,
	metrics *MetricsService,
	cacheTTL time.Duration,
	maxResults int,
	logger *zap.Logger,
) *RecommendationService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationService{
		templates:  templates,
		students:   students,
		history:    history,
		subs:       subs,
		courses:    courses,
		active:     active,
		cache:      cache,
		metrics:    metrics,
		cacheTTL:   cacheTTL,
		maxResults: maxResults,
		logger:     logger,
	}
}

// studentPlan is one student's materialized planning state: effective
// completions with substitutions applied, the active catalog with its
// prerequisite graph and the unmet requirements of the template in
// effect.
type studentPlan struct {
	detail   *models.TemplateDetail
	tpl      degree.Template
	snap     degree.Snapshot
	courses  []degree.Course
	byID     map[string]degree.Course
	graph    *degree.PrereqGraph
	done     map[string]bool
	inflight map[string]bool
	unmet    []unmetRequirement
}

type unmetRequirement struct {
	req degree.Requirement
	sat degree.Satisfaction
}

// eligibleNow reports whether every catalog prerequisite of the course
// is already completed.
func (p *studentPlan) eligibleNow(courseID string) bool {
	for _, pre := range p.graph.Prerequisites(courseID) {
		if !p.done[pre] {
			return false
		}
	}
	return true
}

// missingPrereqs lists the unfinished prerequisites of a course as
// course codes, falling back to the raw identifier for courses no
// longer in the active catalog.
func (p *studentPlan) missingPrereqs(courseID string) []string {
	var missing []string
	for _, pre := range p.graph.Prerequisites(courseID) {
		if p.done[pre] {
			continue
		}
		if course, ok := p.byID[pre]; ok {
			missing = append(missing, fmt.Sprintf("%s %d", course.SubjectCode, course.Number))
		} else {
			missing = append(missing, pre)
		}
	}
	return missing
}

// NextCourses scores every eligible catalog course against the
// student's unmet requirements and returns the top picks. A course
// scores by the urgency of the requirements it advances, its level
// proximity to the student's standing and how well its credits close
// the widest remaining gap. The bool reports whether the response was
// served from cache.
func (s *RecommendationService) NextCourses(ctx context.Context, studentID string) (*dto.RecommendationResponse, bool, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, false, err
	}

	cacheKey := repository.RecommendationCacheKey(student.ID, student.DegreeCode)
	var cached dto.RecommendationResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	plan, err := s.loadPlan(ctx, student)
	if err != nil {
		return nil, false, err
	}

	type candidate struct {
		course       degree.Course
		urgency      float64
		maxRemaining float64
		requirements []string
	}
	candidates := make(map[string]*candidate)
	for _, ur := range plan.unmet {
		weight := 1 - float64(ur.sat.ProgressPercentage)/100
		remaining := float64(ur.sat.CreditsRequired) - ur.sat.CreditsSatisfied
		if remaining < 0 {
			remaining = 0
		}
		for _, course := range plan.courses {
			if plan.done[course.ID] || plan.inflight[course.ID] {
				continue
			}
			if !courseAdvances(ur.req, course, plan.done) {
				continue
			}
			if !plan.eligibleNow(course.ID) {
				continue
			}
			cand, ok := candidates[course.ID]
			if !ok {
				cand = &candidate{course: course}
				candidates[course.ID] = cand
			}
			cand.urgency += weight
			if remaining > cand.maxRemaining {
				cand.maxRemaining = remaining
			}
			cand.requirements = append(cand.requirements, ur.sat.Description)
		}
	}

	catalogSemesters := plan.graph.SemesterMap()
	target := targetLevel(plan.snap.Completed)
	items := make([]dto.RecommendationItem, 0, len(candidates))
	for _, cand := range candidates {
		urgency := cand.urgency
		level := levelFit(cand.course.Level(), target)
		credit := creditFit(cand.course.CreditHours, cand.maxRemaining)
		item := dto.RecommendationItem{
			Course:       summarize(cand.course),
			Score:        round2(weightUrgency*urgency + weightLevelFit*level + weightCreditFit*credit),
			Urgency:      round2(urgency),
			LevelFit:     round2(level),
			CreditFit:    round2(credit),
			Requirements: cand.requirements,
			Semester:     1,
		}
		if sem, ok := catalogSemesters[cand.course.ID]; ok {
			item.Semester = sem
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Course.CourseCode < items[j].Course.CourseCode
	})
	if len(items) > s.maxResults {
		items = items[:s.maxResults]
	}

	resp := &dto.RecommendationResponse{
		StudentID:   student.ID,
		DegreeCode:  student.DegreeCode,
		TemplateID:  plan.detail.ID,
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	}
	s.metrics.ObserveRecommendation(time.Since(start))
	if err := s.cache.Set(ctx, cacheKey, resp, s.cacheTTL); err != nil {
		s.logger.Warn("cache recommendations failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	return resp, false, nil
}

// Sequence levels the courses the student still needs into a semester
// by semester plan honoring the remaining prerequisite edges. The bool
// reports whether the response was served from cache.
func (s *RecommendationService) Sequence(ctx context.Context, studentID string) (*dto.SequenceResponse, bool, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, false, err
	}

	cacheKey := repository.SequenceCacheKey(student.ID, student.DegreeCode)
	var cached dto.SequenceResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	plan, err := s.loadPlan(ctx, student)
	if err != nil {
		return nil, false, err
	}

	needed := make(map[string]bool)
	for _, ur := range plan.unmet {
		for _, course := range plan.courses {
			if plan.done[course.ID] || plan.inflight[course.ID] {
				continue
			}
			if courseAdvances(ur.req, course, plan.done) {
				needed[course.ID] = true
			}
		}
	}

	semesters := remainingSemesters(plan)
	if semesters == nil {
		return nil, false, appErrors.Clone(appErrors.ErrCyclicPrereq, "prerequisite graph contains a cycle")
	}

	grouped := make(map[int][]dto.CourseSummary)
	for id := range needed {
		sem := semesters[id]
		if sem == 0 {
			sem = 1
		}
		grouped[sem] = append(grouped[sem], summarize(plan.byID[id]))
	}

	numbers := make([]int, 0, len(grouped))
	for sem := range grouped {
		numbers = append(numbers, sem)
	}
	sort.Ints(numbers)

	plans := make([]dto.SemesterPlan, 0, len(numbers))
	for _, sem := range numbers {
		courses := grouped[sem]
		sort.SliceStable(courses, func(i, j int) bool {
			return courses[i].CourseCode < courses[j].CourseCode
		})
		var credits float64
		for _, course := range courses {
			credits += course.CreditHours
		}
		plans = append(plans, dto.SemesterPlan{Semester: sem, Courses: courses, Credits: credits})
	}

	resp := &dto.SequenceResponse{
		StudentID:   student.ID,
		DegreeCode:  student.DegreeCode,
		TemplateID:  plan.detail.ID,
		Semesters:   plans,
		GeneratedAt: time.Now().UTC(),
	}
	s.metrics.ObserveRecommendation(time.Since(start))
	if err := s.cache.Set(ctx, cacheKey, resp, s.cacheTTL); err != nil {
		s.logger.Warn("cache sequence plan failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	return resp, false, nil
}

// Compare scores two courses against the student's remaining
// requirements. Winner carries the course with the higher score and
// stays empty on a tie.
func (s *RecommendationService) Compare(ctx context.Context, studentID, firstCourseID, secondCourseID string) (*dto.ComparisonResponse, error) {
	if firstCourseID == "" || secondCourseID == "" || firstCourseID == secondCourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comparison needs two distinct courses")
	}
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	plan, err := s.loadPlan(ctx, student)
	if err != nil {
		return nil, err
	}
	first, err := s.loadCourse(ctx, firstCourseID)
	if err != nil {
		return nil, err
	}
	second, err := s.loadCourse(ctx, secondCourseID)
	if err != nil {
		return nil, err
	}

	target := targetLevel(plan.snap.Completed)
	resp := &dto.ComparisonResponse{
		StudentID:   student.ID,
		First:       scoreSide(plan, first, target),
		Second:      scoreSide(plan, second, target),
		GeneratedAt: time.Now().UTC(),
	}
	if resp.First.Score > resp.Second.Score {
		resp.Winner = first.ID
	} else if resp.Second.Score > resp.First.Score {
		resp.Winner = second.ID
	}
	return resp, nil
}

// PlanConditional runs conditional path planning for one requirement of
// the template in effect for the student's degree code.
func (s *RecommendationService) PlanConditional(ctx context.Context, studentID, requirementID string) (*dto.PathPlanResponse, error) {
	if requirementID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requirement id is required")
	}
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	plan, err := s.loadPlan(ctx, student)
	if err != nil {
		return nil, err
	}

	req, ok := findRequirement(plan.tpl, requirementID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "requirement not found in degree template")
	}
	group, ok := req.(degree.ConditionalGroup)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requirement is not a conditional group")
	}

	return &dto.PathPlanResponse{
		StudentID:     student.ID,
		RequirementID: requirementID,
		Paths:         degree.PlanPaths(group, plan.courses, plan.snap.Completed, plan.snap.GPA),
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

func (s *RecommendationService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *RecommendationService) loadCourse(ctx context.Context, courseID string) (degree.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return degree.Course{}, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return degree.Course{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return courseToDegree(*course), nil
}

// loadPlan materializes the planning state. The GPA covers the full
// graded history while the matching set holds only credit-earning
// completions with active substitutions applied.
func (s *RecommendationService) loadPlan(ctx context.Context, student *models.Student) (*studentPlan, error) {
	now := time.Now().UTC()
	active, err := s.templates.FindActive(ctx, student.DegreeCode, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrTemplateInactive, "no degree template in effect for "+student.DegreeCode)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve degree template")
	}
	detail, err := s.templates.FindDetail(ctx, active.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree template")
	}
	graded, err := s.history.ListCompleted(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	subs, err := s.subs.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitutions")
	}
	catalog, err := s.courses.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course catalog")
	}
	links, err := s.courses.ListPrerequisiteLinks(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}
	activeIDs, err := s.active.ActiveCourseIDs(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live enrollments")
	}

	full := completedToDegree(graded)
	passing := make([]degree.CompletedCourse, 0, len(full))
	for _, cc := range full {
		if degree.IsPassing(cc.Grade) {
			passing = append(passing, cc)
		}
	}
	catalogMap := catalogToDegree(catalog)
	effective := degree.ApplySubstitutions(passing, substitutionsToDegree(subs), catalogMap, now)

	plan := &studentPlan{
		detail:   detail,
		tpl:      templateToDegree(detail),
		snap:     degree.Snapshot{Completed: effective, GPA: degree.GPA(full)},
		byID:     catalogMap,
		graph:    degree.BuildGraph(linksToDegree(links)),
		done:     make(map[string]bool, len(effective)),
		inflight: make(map[string]bool, len(activeIDs)),
	}
	plan.courses = make([]degree.Course, 0, len(catalog))
	for _, course := range catalog {
		plan.courses = append(plan.courses, courseToDegree(course))
	}
	for _, cc := range effective {
		plan.done[cc.CourseID] = true
	}
	for _, id := range activeIDs {
		plan.inflight[id] = true
	}
	for _, category := range plan.tpl.Categories {
		for _, req := range category.Requirements {
			sat := degree.Evaluate(req, plan.snap)
			if sat.Satisfied {
				continue
			}
			plan.unmet = append(plan.unmet, unmetRequirement{req: req, sat: sat})
		}
	}
	return plan, nil
}

// --- Scoring helpers ---

func scoreSide(plan *studentPlan, course degree.Course, target int) dto.ComparisonSide {
	side := dto.ComparisonSide{Course: summarize(course)}

	var urgency, maxRemaining float64
	for _, ur := range plan.unmet {
		if !courseAdvances(ur.req, course, plan.done) {
			continue
		}
		urgency += 1 - float64(ur.sat.ProgressPercentage)/100
		remaining := float64(ur.sat.CreditsRequired) - ur.sat.CreditsSatisfied
		if remaining > maxRemaining {
			maxRemaining = remaining
		}
		side.Requirements = append(side.Requirements, ur.sat.Description)
	}

	side.MissingPrereqs = plan.missingPrereqs(course.ID)
	side.Eligible = len(side.MissingPrereqs) == 0
	side.Score = round2(weightUrgency*urgency +
		weightLevelFit*levelFit(course.Level(), target) +
		weightCreditFit*creditFit(course.CreditHours, maxRemaining))
	return side
}

// courseAdvances reports whether completing the course would add
// progress to the requirement.
func courseAdvances(req degree.Requirement, course degree.Course, done map[string]bool) bool {
	switch r := req.(type) {
	case degree.SpecificCourses:
		return containsID(r.CourseIDs, course.ID)
	case degree.CourseGroup:
		return subjectInBand(course, r.SubjectCodes, r.MinLevel, r.MaxLevel)
	case degree.ConditionalGroup:
		for _, alt := range r.Alternatives {
			if containsID(alt.CourseIDs, course.ID) || subjectInBand(course, alt.SubjectCodes, alt.MinLevel, alt.MaxLevel) {
				return true
			}
		}
		return false
	case degree.SequencedCourses:
		return containsID(chainCandidates(r, done), course.ID)
	case degree.CreditHours:
		return true
	default:
		return false
	}
}

// chainCandidates returns the chain courses whose in-chain
// prerequisites are all completed.
func chainCandidates(r degree.SequencedCourses, done map[string]bool) []string {
	prereqs := make(map[string][]string)
	seen := make(map[string]bool)
	var nodes []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		nodes = append(nodes, id)
	}
	for _, link := range r.Chain {
		add(link.CourseID)
		add(link.PrereqID)
		if link.CourseID != "" && link.PrereqID != "" {
			prereqs[link.CourseID] = append(prereqs[link.CourseID], link.PrereqID)
		}
	}

	var ids []string
	for _, id := range nodes {
		if done[id] {
			continue
		}
		ready := true
		for _, pre := range prereqs[id] {
			if !done[pre] {
				ready = false
				break
			}
		}
		if ready {
			ids = append(ids, id)
		}
	}
	return ids
}

// remainingSemesters levels the prerequisite graph with completed
// courses collapsed out, so a course whose prerequisites are all done
// lands in semester one. Returns nil when the stored graph is cyclic.
func remainingSemesters(plan *studentPlan) map[string]int {
	var links []degree.PrerequisiteLink
	for _, id := range plan.graph.Nodes() {
		if plan.done[id] {
			continue
		}
		links = append(links, degree.PrerequisiteLink{CourseID: id})
		for _, pre := range plan.graph.Prerequisites(id) {
			if plan.done[pre] {
				continue
			}
			links = append(links, degree.PrerequisiteLink{CourseID: id, PrereqID: pre})
		}
	}
	return degree.BuildGraph(links).SemesterMap()
}

func findRequirement(tpl degree.Template, requirementID string) (degree.Requirement, bool) {
	for _, category := range tpl.Categories {
		for _, req := range category.Requirements {
			if req.Meta().ID == requirementID {
				return req, true
			}
		}
	}
	return nil, false
}

// targetLevel is the band the student most plausibly registers in
// next: one above the highest completed level, floored at 100.
func targetLevel(completed []degree.CompletedCourse) int {
	highest := 0
	for _, cc := range completed {
		if cc.Level() > highest {
			highest = cc.Level()
		}
	}
	if highest == 0 {
		return 100
	}
	return highest + 100
}

// levelFit decays with distance from the target band; one full band
// away halves the component.
func levelFit(level, target int) float64 {
	distance := math.Abs(float64(level-target)) / 100
	return 1 / (1 + distance)
}

// creditFit rewards courses whose credit hours all count against the
// widest remaining gap; oversized courses waste the difference.
func creditFit(creditHours, remaining float64) float64 {
	if creditHours <= 0 || remaining <= 0 {
		return 0
	}
	if remaining >= creditHours {
		return 1
	}
	return remaining / creditHours
}

func summarize(course degree.Course) dto.CourseSummary {
	return dto.CourseSummary{
		CourseID:    course.ID,
		CourseCode:  fmt.Sprintf("%s %d", course.SubjectCode, course.Number),
		Title:       course.Title,
		CreditHours: course.CreditHours,
		Level:       course.Level(),
	}
}

func subjectInBand(course degree.Course, subjects []string, minLevel, maxLevel int) bool {
	for _, code := range subjects {
		if code != course.SubjectCode {
			continue
		}
		level := course.Level()
		if level < minLevel {
			return false
		}
		if maxLevel > 0 && level > maxLevel {
			return false
		}
		return true
	}
	return false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
