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

type sectionAdminRepoStub struct {
	sections map[string]*models.CourseSection
	details  map[string]*models.SectionDetail
	list     []models.SectionDetail
	total    int
	created  *models.CourseSection
	updated  *models.CourseSection
}

func newSectionAdminRepoStub() *sectionAdminRepoStub {
	return &sectionAdminRepoStub{
		sections: make(map[string]*models.CourseSection),
		details:  make(map[string]*models.SectionDetail),
	}
}

func (m *sectionAdminRepoStub) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	return m.list, m.total, nil
}

func (m *sectionAdminRepoStub) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	if section, ok := m.sections[id]; ok {
		return section, nil
	}
	return nil, sql.ErrNoRows
}

func (m *sectionAdminRepoStub) FindDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	if detail, ok := m.details[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *sectionAdminRepoStub) Create(ctx context.Context, section *models.CourseSection) error {
	section.ID = "sec-new"
	m.created = section
	m.sections[section.ID] = section
	return nil
}

func (m *sectionAdminRepoStub) Update(ctx context.Context, section *models.CourseSection) error {
	m.updated = section
	return nil
}

type sweeperStub struct {
	swept    []string
	promoted int
}

func (m *sweeperStub) Sweep(ctx context.Context, sectionID string) (int, error) {
	m.swept = append(m.swept, sectionID)
	return m.promoted, nil
}

type sectionFixture struct {
	repo    *sectionAdminRepoStub
	courses *courseGraphStub
	terms   *mockTermReader
	faculty *facultyReaderStub
	sweeper *sweeperStub
}

func newSectionFixture() *sectionFixture {
	return &sectionFixture{
		repo: newSectionAdminRepoStub(),
		courses: &courseGraphStub{courses: []models.Course{
			{ID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Active: true},
			{ID: "c-retired", SubjectCode: "CS", Number: 1900, Title: "Pascal Programming", CreditHours: 3, Active: false},
		}},
		terms: &mockTermReader{},
		faculty: &facultyReaderStub{faculty: map[string]*models.Faculty{
			"f1": {ID: "f1", FullName: "Prof. Amina Diallo", Department: "CS", Active: true},
			"f2": {ID: "f2", FullName: "Prof. Emeritus Hale", Department: "CS", Active: false},
		}},
		sweeper: &sweeperStub{},
	}
}

func (f *sectionFixture) service() *SectionService {
	var sweeper waitlistSweeper
	if f.sweeper != nil {
		sweeper = f.sweeper
	}
	return NewSectionService(f.repo, f.courses, f.terms, f.faculty, sweeper, validator.New(), zap.NewNop())
}

func TestSectionServiceCreate(t *testing.T) {
	f := newSectionFixture()

	section, err := f.service().Create(context.Background(), CreateSectionRequest{
		CourseID:  "c1",
		TermID:    "t1",
		Section:   " A ",
		Capacity:  30,
		FacultyID: "f1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sec-new", section.ID)
	assert.Equal(t, "A", section.Section)
	require.NotNil(t, section.FacultyID)
	assert.Equal(t, "f1", *section.FacultyID)
	require.NotNil(t, f.repo.created)
}

func TestSectionServiceCreateRetiredCourse(t *testing.T) {
	f := newSectionFixture()

	_, err := f.service().Create(context.Background(), CreateSectionRequest{
		CourseID: "c-retired",
		TermID:   "t1",
		Section:  "A",
		Capacity: 30,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestSectionServiceCreateUnknownTerm(t *testing.T) {
	f := newSectionFixture()

	_, err := f.service().Create(context.Background(), CreateSectionRequest{
		CourseID: "c1",
		TermID:   "missing",
		Section:  "A",
		Capacity: 30,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSectionServiceCreateInstructorGuards(t *testing.T) {
	f := newSectionFixture()
	svc := f.service()

	_, err := svc.Create(context.Background(), CreateSectionRequest{
		CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, FacultyID: "ghost",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.Create(context.Background(), CreateSectionRequest{
		CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, FacultyID: "f2",
	})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestSectionServiceUpdateRaisesCapacity(t *testing.T) {
	f := newSectionFixture()
	f.repo.sections["sec1"] = &models.CourseSection{ID: "sec1", CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, Enrolled: 30}
	f.sweeper.promoted = 2

	section, err := f.service().Update(context.Background(), UpdateSectionRequest{
		SectionID: "sec1",
		Capacity:  35,
	})
	require.NoError(t, err)
	assert.Equal(t, 35, section.Capacity)
	// New seats go straight to the queue.
	assert.Equal(t, []string{"sec1"}, f.sweeper.swept)
}

func TestSectionServiceUpdateSameCapacitySkipsSweep(t *testing.T) {
	f := newSectionFixture()
	f.repo.sections["sec1"] = &models.CourseSection{ID: "sec1", CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, Enrolled: 12}

	_, err := f.service().Update(context.Background(), UpdateSectionRequest{
		SectionID: "sec1",
		Capacity:  30,
	})
	require.NoError(t, err)
	assert.Empty(t, f.sweeper.swept)
}

func TestSectionServiceUpdateBelowEnrollment(t *testing.T) {
	f := newSectionFixture()
	f.repo.sections["sec1"] = &models.CourseSection{ID: "sec1", CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, Enrolled: 25}

	_, err := f.service().Update(context.Background(), UpdateSectionRequest{
		SectionID: "sec1",
		Capacity:  20,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "enrollment")
}

func TestSectionServiceUpdateInstructor(t *testing.T) {
	f := newSectionFixture()
	instructor := "f1"
	f.repo.sections["sec1"] = &models.CourseSection{ID: "sec1", CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, Enrolled: 12, FacultyID: &instructor}
	svc := f.service()

	cleared := ""
	section, err := svc.Update(context.Background(), UpdateSectionRequest{
		SectionID: "sec1",
		Capacity:  30,
		FacultyID: &cleared,
	})
	require.NoError(t, err)
	assert.Nil(t, section.FacultyID)

	replacement := "f1"
	section, err = svc.Update(context.Background(), UpdateSectionRequest{
		SectionID: "sec1",
		Capacity:  30,
		FacultyID: &replacement,
	})
	require.NoError(t, err)
	require.NotNil(t, section.FacultyID)
	assert.Equal(t, "f1", *section.FacultyID)
}

func TestSectionServiceGet(t *testing.T) {
	f := newSectionFixture()
	f.repo.details["sec1"] = &models.SectionDetail{
		CourseSection: models.CourseSection{ID: "sec1", CourseID: "c1", TermID: "t1", Section: "A", Capacity: 30, Enrolled: 12},
		SubjectCode:   "CS",
		CourseNumber:  1100,
		CourseTitle:   "Intro to CS",
		CreditHours:   4,
	}
	svc := f.service()

	detail, err := svc.Get(context.Background(), "sec1")
	require.NoError(t, err)
	assert.Equal(t, "CS", detail.SubjectCode)
	assert.Equal(t, 1100, detail.CourseNumber)

	_, err = svc.Get(context.Background(), "ghost")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSectionServiceList(t *testing.T) {
	f := newSectionFixture()
	f.repo.list = []models.SectionDetail{{CourseSection: models.CourseSection{ID: "sec1"}}}
	f.repo.total = 7

	sections, pagination, err := f.service().List(context.Background(), models.SectionFilter{})
	require.NoError(t, err)
	assert.Len(t, sections, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 7, pagination.TotalCount)
}
