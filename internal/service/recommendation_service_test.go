package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/dto"
	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type courseGraphStub struct {
	courses []models.Course
	links   []models.PrerequisiteLink
}

func (m *courseGraphStub) ListAll(ctx context.Context) ([]models.Course, error) {
	return m.courses, nil
}

func (m *courseGraphStub) ListPrerequisiteLinks(ctx context.Context) ([]models.PrerequisiteLink, error) {
	return m.links, nil
}

func (m *courseGraphStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	for i := range m.courses {
		if m.courses[i].ID == id {
			return &m.courses[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type activeCoursesStub struct {
	ids map[string][]string
}

func (m *activeCoursesStub) ActiveCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	return m.ids[studentID], nil
}

type recCacheStub struct {
	nextResp *dto.RecommendationResponse
	seqResp  *dto.SequenceResponse
	sets     []string
}

func (m *recCacheStub) Get(_ context.Context, key string, dest interface{}) error {
	switch out := dest.(type) {
	case *dto.RecommendationResponse:
		if m.nextResp != nil {
			*out = *m.nextResp
			return nil
		}
	case *dto.SequenceResponse:
		if m.seqResp != nil {
			*out = *m.seqResp
			return nil
		}
	}
	return appErrors.ErrCacheMiss
}

func (m *recCacheStub) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets = append(m.sets, key)
	return nil
}

func (m *recCacheStub) DeleteByPattern(context.Context, string) error { return nil }

type recommendationFixture struct {
	templates  *auditTemplateRepoStub
	students   *mockStudentReader
	history    *auditHistoryStub
	subs       *subReaderStub
	courses    *courseGraphStub
	active     *activeCoursesStub
	cache      *recCacheStub
	maxResults int
}

// newRecommendationFixture seeds a four course catalog where CS 2500
// requires CS 1100 and CS 3200 requires CS 2500, under a template
// asking for eight core credits and a math elective. The student has
// completed CS 1100 with an A.
func newRecommendationFixture() *recommendationFixture {
	detail := &models.TemplateDetail{
		DegreeTemplate: models.DegreeTemplate{ID: "tpl-1", DegreeCode: "BSCS", Name: "BS Computer Science", CatalogYear: 2025, TotalCredits: 15, RequiredGPA: 2.0},
		Categories: []models.CategoryDetail{
			{
				RequirementCategory: models.RequirementCategory{ID: "cat-core", TemplateID: "tpl-1", Name: "Core", CreditsRequired: 11},
				Requirements: []models.RequirementDetail{
					{DegreeRequirement: models.DegreeRequirement{ID: "req-core", Type: models.RequirementSpecificCourses, Description: "Core sequence", CreditsRequired: 8, CourseIDs: pq.StringArray{"c1", "c2", "c3"}}},
					{DegreeRequirement: models.DegreeRequirement{ID: "req-math", Type: models.RequirementCourseGroup, Description: "Math elective", CreditsRequired: 3, SubjectCodes: pq.StringArray{"MATH"}, MinLevel: 100}},
				},
			},
		},
	}
	return &recommendationFixture{
		templates: &auditTemplateRepoStub{
			active:  map[string]*models.DegreeTemplate{"BSCS": {ID: "tpl-1", DegreeCode: "BSCS"}},
			details: map[string]*models.TemplateDetail{"tpl-1": detail},
		},
		students: &mockStudentReader{students: map[string]*models.Student{
			"s1": {ID: "s1", FullName: "Dana Okafor", DegreeCode: "BSCS", Active: true},
			"s2": {ID: "s2", FullName: "Leo Grant", DegreeCode: "BSBA", Active: true},
		}},
		history: &auditHistoryStub{completed: []models.CompletedCourse{
			{CourseID: "c1", SubjectCode: "CS", Number: 1100, CreditHours: 4, Grade: "A", TermCode: "FA24"},
		}},
		subs: &subReaderStub{},
		courses: &courseGraphStub{
			courses: []models.Course{
				{ID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Active: true},
				{ID: "c2", SubjectCode: "CS", Number: 2500, Title: "Algorithms", CreditHours: 4, Active: true},
				{ID: "c3", SubjectCode: "CS", Number: 3200, Title: "Operating Systems", CreditHours: 4, Active: true},
				{ID: "m1", SubjectCode: "MATH", Number: 1200, Title: "Calculus I", CreditHours: 3, Active: true},
			},
			links: []models.PrerequisiteLink{
				{ID: "l1", CourseID: "c2", PrereqCourseID: "c1", Position: 1},
				{ID: "l2", CourseID: "c3", PrereqCourseID: "c2", Position: 1},
			},
		},
		active: &activeCoursesStub{ids: map[string][]string{}},
	}
}

func (f *recommendationFixture) service() *RecommendationService {
	var cache *CacheService
	if f.cache != nil {
		cache = NewCacheService(f.cache, nil, time.Minute, zap.NewNop(), true)
	}
	return NewRecommendationService(f.templates, f.students, f.history, f.subs, f.courses, f.active, cache, nil, time.Minute, f.maxResults, zap.NewNop())
}

func TestRecommendationServiceNextCourses(t *testing.T) {
	f := newRecommendationFixture()

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "s1", resp.StudentID)
	assert.Equal(t, "BSCS", resp.DegreeCode)
	assert.Equal(t, "tpl-1", resp.TemplateID)
	assert.False(t, resp.GeneratedAt.IsZero())
	require.Len(t, resp.Items, 2)

	// The math elective is fully unmet and sits at the student's level,
	// so it outranks the half done core sequence.
	math := resp.Items[0]
	assert.Equal(t, "m1", math.Course.CourseID)
	assert.Equal(t, "MATH 1200", math.Course.CourseCode)
	assert.Equal(t, 0.85, math.Score)
	assert.Equal(t, 1.0, math.Urgency)
	assert.Equal(t, 0.5, math.LevelFit)
	assert.Equal(t, 1.0, math.CreditFit)
	assert.Equal(t, 1, math.Semester)
	assert.Contains(t, math.Requirements, "Math elective")

	algo := resp.Items[1]
	assert.Equal(t, "c2", algo.Course.CourseID)
	assert.Equal(t, 0.75, algo.Score)
	assert.Equal(t, 0.5, algo.Urgency)
	assert.Equal(t, 1.0, algo.CreditFit)
	assert.Equal(t, 2, algo.Semester)
	assert.Contains(t, algo.Requirements, "Core sequence")
}

func TestRecommendationServiceNextCoursesSkipsInFlight(t *testing.T) {
	f := newRecommendationFixture()
	f.active.ids["s1"] = []string{"m1"}

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "c2", resp.Items[0].Course.CourseID)
}

func TestRecommendationServiceNextCoursesServesCached(t *testing.T) {
	f := newRecommendationFixture()
	f.cache = &recCacheStub{nextResp: &dto.RecommendationResponse{
		StudentID:  "s1",
		DegreeCode: "BSCS",
		TemplateID: "tpl-1",
		Items:      []dto.RecommendationItem{{Course: dto.CourseSummary{CourseID: "c3"}, Score: 0.9}},
	}}

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, cached)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "c3", resp.Items[0].Course.CourseID)
	assert.Empty(t, f.cache.sets)
}

func TestRecommendationServiceNextCoursesRetakesFailedCourse(t *testing.T) {
	f := newRecommendationFixture()
	f.history.completed = []models.CompletedCourse{
		{CourseID: "c1", SubjectCode: "CS", Number: 1100, CreditHours: 4, Grade: "F", TermCode: "FA24"},
	}

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, resp.Items, 2)
	// A failed course earns no credit, so the intro course comes back
	// as a candidate and its dependents stay locked.
	assert.Equal(t, "c1", resp.Items[0].Course.CourseID)
	assert.Equal(t, "m1", resp.Items[1].Course.CourseID)
}

func TestRecommendationServiceNextCoursesHonorsSubstitution(t *testing.T) {
	f := newRecommendationFixture()
	f.history.completed = append(f.history.completed, models.CompletedCourse{
		CourseID: "c9", SubjectCode: "MATH", Number: 3100, CreditHours: 3, Grade: "B+", TermCode: "SP25",
	})
	f.subs.subs = []models.CourseSubstitution{
		{ID: "sub-1", StudentID: "s1", OriginalCourseID: "c9", SubstituteCourseID: "c2", EffectiveDate: time.Now().Add(-30 * 24 * time.Hour)},
	}

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	// The substitution closes the core requirement, leaving only the
	// math elective open.
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "m1", resp.Items[0].Course.CourseID)
}

func TestRecommendationServiceNextCoursesCapsResults(t *testing.T) {
	f := newRecommendationFixture()
	f.maxResults = 1

	resp, cached, err := f.service().NextCourses(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "m1", resp.Items[0].Course.CourseID)
}

func TestRecommendationServiceNextCoursesNoTemplate(t *testing.T) {
	f := newRecommendationFixture()

	_, _, err := f.service().NextCourses(context.Background(), "s2")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrTemplateInactive.Code, appErr.Code)
}

func TestRecommendationServiceNextCoursesStudentNotFound(t *testing.T) {
	f := newRecommendationFixture()

	_, _, err := f.service().NextCourses(context.Background(), "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRecommendationServiceSequence(t *testing.T) {
	f := newRecommendationFixture()

	resp, cached, err := f.service().Sequence(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "tpl-1", resp.TemplateID)
	require.Len(t, resp.Semesters, 2)

	first := resp.Semesters[0]
	assert.Equal(t, 1, first.Semester)
	require.Len(t, first.Courses, 2)
	assert.Equal(t, "CS 2500", first.Courses[0].CourseCode)
	assert.Equal(t, "MATH 1200", first.Courses[1].CourseCode)
	assert.Equal(t, 7.0, first.Credits)

	second := resp.Semesters[1]
	assert.Equal(t, 2, second.Semester)
	require.Len(t, second.Courses, 1)
	assert.Equal(t, "c3", second.Courses[0].CourseID)
	assert.Equal(t, 4.0, second.Credits)
}

func TestRecommendationServiceSequenceCyclicGraph(t *testing.T) {
	f := newRecommendationFixture()
	f.courses.links = []models.PrerequisiteLink{
		{ID: "l1", CourseID: "c2", PrereqCourseID: "c3", Position: 1},
		{ID: "l2", CourseID: "c3", PrereqCourseID: "c2", Position: 1},
	}

	_, _, err := f.service().Sequence(context.Background(), "s1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCyclicPrereq.Code, appErr.Code)
}

func TestRecommendationServiceCompare(t *testing.T) {
	f := newRecommendationFixture()

	resp, err := f.service().Compare(context.Background(), "s1", "c2", "c3")
	require.NoError(t, err)
	assert.Equal(t, "c2", resp.Winner)

	assert.Equal(t, 0.75, resp.First.Score)
	assert.True(t, resp.First.Eligible)
	assert.Empty(t, resp.First.MissingPrereqs)
	assert.Contains(t, resp.First.Requirements, "Core sequence")

	assert.Equal(t, 0.6, resp.Second.Score)
	assert.False(t, resp.Second.Eligible)
	assert.Equal(t, []string{"CS 2500"}, resp.Second.MissingPrereqs)
}

func TestRecommendationServiceCompareValidation(t *testing.T) {
	f := newRecommendationFixture()
	svc := f.service()

	_, err := svc.Compare(context.Background(), "s1", "c2", "c2")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.Compare(context.Background(), "s1", "c2", "ghost")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRecommendationServicePlanConditional(t *testing.T) {
	f := newRecommendationFixture()
	f.templates.details["tpl-1"] = &models.TemplateDetail{
		DegreeTemplate: models.DegreeTemplate{ID: "tpl-1", DegreeCode: "BSCS", Name: "BS Computer Science", CatalogYear: 2025, TotalCredits: 15, RequiredGPA: 2.0},
		Categories: []models.CategoryDetail{
			{
				RequirementCategory: models.RequirementCategory{ID: "cat-focus", TemplateID: "tpl-1", Name: "Focus", CreditsRequired: 6},
				Requirements: []models.RequirementDetail{
					{
						DegreeRequirement: models.DegreeRequirement{ID: "req-focus", Type: models.RequirementConditional, Description: "Focus area"},
						Alternatives: []models.RequirementAlternative{
							{ID: "alt-systems", Description: "Systems focus", CourseIDs: pq.StringArray{"c3"}, CreditsRequired: 4, CoursesRequired: 1},
							{ID: "alt-math", Description: "Math focus", SubjectCodes: pq.StringArray{"MATH"}, MinLevel: 100, CreditsRequired: 6, CoursesRequired: 2},
						},
					},
				},
			},
		},
	}

	resp, err := f.service().PlanConditional(context.Background(), "s1", "req-focus")
	require.NoError(t, err)
	assert.Equal(t, "req-focus", resp.RequirementID)
	require.Len(t, resp.Paths, 2)

	// One four credit course beats six math credits, so the systems
	// path comes out cheapest.
	systems := resp.Paths[0]
	assert.Equal(t, "alt-systems", systems.AlternativeID)
	assert.True(t, systems.Recommended)
	assert.Equal(t, 4.0, systems.AdditionalCreditsNeeded)
	assert.Equal(t, 1, systems.AdditionalCoursesNeeded)
	require.Len(t, systems.SelectedCourses, 1)
	assert.Equal(t, "c3", systems.SelectedCourses[0].ID)

	math := resp.Paths[1]
	assert.Equal(t, "alt-math", math.AlternativeID)
	assert.False(t, math.Recommended)
	assert.Equal(t, 6.0, math.AdditionalCreditsNeeded)
	assert.True(t, math.GPAGateMet)
	require.Len(t, math.SelectedCourses, 1)
	assert.Equal(t, "m1", math.SelectedCourses[0].ID)
}

func TestRecommendationServicePlanConditionalErrors(t *testing.T) {
	f := newRecommendationFixture()
	svc := f.service()

	_, err := svc.PlanConditional(context.Background(), "s1", "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	// A specific course requirement has no alternatives to plan over.
	_, err = svc.PlanConditional(context.Background(), "s1", "req-core")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.PlanConditional(context.Background(), "s1", "")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
