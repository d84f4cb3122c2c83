package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type courseRepoStub struct {
	subjects []models.Subject
	courses  map[string]*models.Course
	list     []models.Course
	total    int
	links    []models.PrerequisiteLink
	prereqs  map[string][]models.Course
	created  *models.Course
	updated  *models.Course
	replaced map[string][]string
}

func newCourseRepoStub() *courseRepoStub {
	return &courseRepoStub{
		subjects: []models.Subject{
			{ID: "sub-cs", Code: "CS", Name: "Computer Science"},
			{ID: "sub-math", Code: "MATH", Name: "Mathematics"},
		},
		courses: map[string]*models.Course{
			"c1": {ID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Active: true},
			"c2": {ID: "c2", SubjectCode: "CS", Number: 2500, Title: "Algorithms", CreditHours: 4, Active: true},
			"c3": {ID: "c3", SubjectCode: "CS", Number: 3200, Title: "Operating Systems", CreditHours: 4, Active: true},
		},
		prereqs:  make(map[string][]models.Course),
		replaced: make(map[string][]string),
	}
}

func (m *courseRepoStub) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	return m.subjects, nil
}

func (m *courseRepoStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	return m.list, m.total, nil
}

func (m *courseRepoStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := m.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

func (m *courseRepoStub) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	var found []models.Course
	for _, id := range ids {
		if course, ok := m.courses[id]; ok {
			found = append(found, *course)
		}
	}
	return found, nil
}

func (m *courseRepoStub) Create(ctx context.Context, course *models.Course) error {
	course.ID = "crs-new"
	m.created = course
	m.courses[course.ID] = course
	return nil
}

func (m *courseRepoStub) Update(ctx context.Context, course *models.Course) error {
	m.updated = course
	return nil
}

func (m *courseRepoStub) ListPrerequisiteLinks(ctx context.Context) ([]models.PrerequisiteLink, error) {
	return m.links, nil
}

func (m *courseRepoStub) ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error) {
	return m.prereqs[courseID], nil
}

func (m *courseRepoStub) ReplacePrerequisites(ctx context.Context, courseID string, prereqIDs []string) error {
	m.replaced[courseID] = prereqIDs
	var courses []models.Course
	for _, id := range prereqIDs {
		if course, ok := m.courses[id]; ok {
			courses = append(courses, *course)
		}
	}
	m.prereqs[courseID] = courses
	return nil
}

func newCourseServiceForTest(repo *courseRepoStub) *CourseService {
	return NewCourseService(repo, validator.New(), zap.NewNop())
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectCode: " cs ",
		Number:      4400,
		Title:       "Distributed Systems",
		CreditHours: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "crs-new", course.ID)
	assert.Equal(t, "CS", course.SubjectCode)
	assert.True(t, course.Active)
	require.NotNil(t, repo.created)
}

func TestCourseServiceCreateUnknownSubject(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		SubjectCode: "BIO",
		Number:      1000,
		Title:       "Biology I",
		CreditHours: 3,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "BIO")
}

func TestCourseServiceCreateInvalidPayload(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	_, err := svc.Create(context.Background(), CreateCourseRequest{SubjectCode: "CS", Title: "No number"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCourseServiceUpdate(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	course, err := svc.Update(context.Background(), UpdateCourseRequest{
		CourseID:    "c1",
		Title:       "Foundations of Computing",
		CreditHours: 3,
		Active:      false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Foundations of Computing", course.Title)
	assert.Equal(t, 3.0, course.CreditHours)
	assert.False(t, course.Active)
	require.NotNil(t, repo.updated)
	assert.Equal(t, "c1", repo.updated.ID)
}

func TestCourseServiceUpdateNotFound(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	_, err := svc.Update(context.Background(), UpdateCourseRequest{CourseID: "ghost", Title: "X", CreditHours: 3})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseServiceReplacePrerequisites(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	detail, err := svc.ReplacePrerequisites(context.Background(), ReplacePrerequisitesRequest{
		CourseID:  "c3",
		PrereqIDs: []string{"c1", "c2", "c1"},
	})
	require.NoError(t, err)
	// Duplicates collapse before the write.
	assert.Equal(t, []string{"c1", "c2"}, repo.replaced["c3"])
	require.Len(t, detail.Prerequisites, 2)
	assert.Equal(t, "c3", detail.ID)
}

func TestCourseServiceReplacePrerequisitesClears(t *testing.T) {
	repo := newCourseRepoStub()
	repo.links = []models.PrerequisiteLink{{ID: "l1", CourseID: "c3", PrereqCourseID: "c2", Position: 1}}
	repo.prereqs["c3"] = []models.Course{*repo.courses["c2"]}
	svc := newCourseServiceForTest(repo)

	detail, err := svc.ReplacePrerequisites(context.Background(), ReplacePrerequisitesRequest{CourseID: "c3"})
	require.NoError(t, err)
	assert.Empty(t, repo.replaced["c3"])
	assert.Empty(t, detail.Prerequisites)
}

func TestCourseServiceReplacePrerequisitesCycle(t *testing.T) {
	repo := newCourseRepoStub()
	repo.links = []models.PrerequisiteLink{
		{ID: "l1", CourseID: "c2", PrereqCourseID: "c1", Position: 1},
		{ID: "l2", CourseID: "c3", PrereqCourseID: "c2", Position: 1},
	}
	svc := newCourseServiceForTest(repo)

	// c1 -> c3 closes the loop c3 -> c2 -> c1.
	_, err := svc.ReplacePrerequisites(context.Background(), ReplacePrerequisitesRequest{
		CourseID:  "c1",
		PrereqIDs: []string{"c3"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCyclicPrereq.Code, appErr.Code)

	codes, ok := appErr.Details.([]string)
	require.True(t, ok)
	assert.Contains(t, codes, "CS 1100")
	assert.Contains(t, codes, "CS 3200")
	_, wrote := repo.replaced["c1"]
	assert.False(t, wrote)
}

func TestCourseServiceReplacePrerequisitesSelf(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	_, err := svc.ReplacePrerequisites(context.Background(), ReplacePrerequisitesRequest{
		CourseID:  "c1",
		PrereqIDs: []string{"c1"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "itself")
}

func TestCourseServiceReplacePrerequisitesUnknownCourse(t *testing.T) {
	repo := newCourseRepoStub()
	svc := newCourseServiceForTest(repo)

	_, err := svc.ReplacePrerequisites(context.Background(), ReplacePrerequisitesRequest{
		CourseID:  "c1",
		PrereqIDs: []string{"ghost"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseServiceDetail(t *testing.T) {
	repo := newCourseRepoStub()
	repo.prereqs["c2"] = []models.Course{*repo.courses["c1"]}
	svc := newCourseServiceForTest(repo)

	detail, err := svc.Detail(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", detail.Title)
	require.Len(t, detail.Prerequisites, 1)
	assert.Equal(t, "c1", detail.Prerequisites[0].ID)

	_, err = svc.Detail(context.Background(), "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestCourseServiceList(t *testing.T) {
	repo := newCourseRepoStub()
	repo.list = []models.Course{*repo.courses["c1"], *repo.courses["c2"]}
	repo.total = 42
	svc := newCourseServiceForTest(repo)

	courses, pagination, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 42, pagination.TotalCount)
}

func TestCourseServicePrerequisites(t *testing.T) {
	repo := newCourseRepoStub()
	repo.prereqs["c3"] = []models.Course{*repo.courses["c2"]}
	svc := newCourseServiceForTest(repo)

	prereqs, err := svc.Prerequisites(context.Background(), "c3")
	require.NoError(t, err)
	require.Len(t, prereqs, 1)
	assert.Equal(t, "c2", prereqs[0].ID)

	_, err = svc.Prerequisites(context.Background(), "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
