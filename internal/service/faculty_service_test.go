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

type facultyAdminRepoStub struct {
	faculty     map[string]*models.Faculty
	details     map[string]*models.FacultyDetail
	list        []models.Faculty
	total       int
	created     *models.Faculty
	updated     *models.Faculty
	deactivated []string
}

func newFacultyAdminRepoStub() *facultyAdminRepoStub {
	return &facultyAdminRepoStub{
		faculty: map[string]*models.Faculty{},
		details: map[string]*models.FacultyDetail{},
	}
}

func (m *facultyAdminRepoStub) add(member *models.Faculty) {
	m.faculty[member.ID] = member
}

func (m *facultyAdminRepoStub) List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, int, error) {
	return m.list, m.total, nil
}

func (m *facultyAdminRepoStub) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	if member, ok := m.faculty[id]; ok {
		return member, nil
	}
	return nil, sql.ErrNoRows
}

func (m *facultyAdminRepoStub) FindDetail(ctx context.Context, id string) (*models.FacultyDetail, error) {
	if detail, ok := m.details[id]; ok {
		return detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *facultyAdminRepoStub) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	for id, member := range m.faculty {
		if member.Email == email && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *facultyAdminRepoStub) ExistsByEmployeeNo(ctx context.Context, employeeNo, excludeID string) (bool, error) {
	for id, member := range m.faculty {
		if member.EmployeeNo == employeeNo && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *facultyAdminRepoStub) Create(ctx context.Context, member *models.Faculty) error {
	member.ID = "fac-new"
	m.created = member
	m.faculty[member.ID] = member
	return nil
}

func (m *facultyAdminRepoStub) Update(ctx context.Context, member *models.Faculty) error {
	m.updated = member
	return nil
}

func (m *facultyAdminRepoStub) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

type facultyFixture struct {
	repo *facultyAdminRepoStub
}

func newFacultyFixture() *facultyFixture {
	repo := newFacultyAdminRepoStub()
	repo.add(&models.Faculty{
		ID:         "f1",
		EmployeeNo: "EMP-1001",
		FullName:   "Prof. Amina Diallo",
		Email:      "amina.diallo@university.edu",
		Department: "Computer Science",
		Title:      "Associate Professor",
		Active:     true,
	})
	repo.add(&models.Faculty{
		ID:         "f2",
		EmployeeNo: "EMP-1002",
		FullName:   "Prof. Renata Voss",
		Email:      "renata.voss@university.edu",
		Department: "Mathematics",
		Title:      "Professor",
		Active:     true,
	})
	return &facultyFixture{repo: repo}
}

func (f *facultyFixture) service() *FacultyService {
	return NewFacultyService(f.repo, validator.New(), zap.NewNop())
}

func TestFacultyServiceCreate(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	member, err := svc.Create(context.Background(), CreateFacultyRequest{
		EmployeeNo: " EMP-2001 ",
		FullName:   " Dr. Miguel Santos ",
		Email:      "miguel.santos@university.edu",
		Department: "Physics",
		Title:      "Assistant Professor",
	})

	require.NoError(t, err)
	assert.Equal(t, "fac-new", member.ID)
	assert.Equal(t, "EMP-2001", member.EmployeeNo)
	assert.Equal(t, "Dr. Miguel Santos", member.FullName)
	assert.Equal(t, "Physics", member.Department)
	assert.True(t, member.Active)
	assert.Same(t, member, f.repo.created)
}

func TestFacultyServiceCreateDuplicateEmail(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	_, err := svc.Create(context.Background(), CreateFacultyRequest{
		EmployeeNo: "EMP-2001",
		FullName:   "Dr. Miguel Santos",
		Email:      "amina.diallo@university.edu",
		Department: "Physics",
	})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "email")
	assert.Nil(t, f.repo.created)
}

func TestFacultyServiceCreateDuplicateEmployeeNo(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	_, err := svc.Create(context.Background(), CreateFacultyRequest{
		EmployeeNo: "EMP-1002",
		FullName:   "Dr. Miguel Santos",
		Email:      "miguel.santos@university.edu",
		Department: "Physics",
	})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "employee number")
}

func TestFacultyServiceCreateInvalidPayload(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	_, err := svc.Create(context.Background(), CreateFacultyRequest{
		EmployeeNo: "EMP-2001",
		FullName:   "Dr. Miguel Santos",
		Email:      "not-an-email",
		Department: "Physics",
	})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFacultyServiceUpdate(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()
	inactive := false

	// Keeping the member's own email must not trip the uniqueness check.
	member, err := svc.Update(context.Background(), "f1", UpdateFacultyRequest{
		FullName:   "Prof. Amina Diallo",
		Email:      "amina.diallo@university.edu",
		Department: "Data Science",
		Title:      "Professor",
		Active:     &inactive,
	})

	require.NoError(t, err)
	assert.Equal(t, "Data Science", member.Department)
	assert.Equal(t, "Professor", member.Title)
	assert.False(t, member.Active)
	assert.Same(t, member, f.repo.updated)
}

func TestFacultyServiceUpdateEmailTaken(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	_, err := svc.Update(context.Background(), "f1", UpdateFacultyRequest{
		FullName:   "Prof. Amina Diallo",
		Email:      "renata.voss@university.edu",
		Department: "Computer Science",
	})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, f.repo.updated)
}

func TestFacultyServiceUpdateNotFound(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	_, err := svc.Update(context.Background(), "ghost", UpdateFacultyRequest{
		FullName:   "Dr. Nobody",
		Email:      "nobody@university.edu",
		Department: "Philosophy",
	})

	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFacultyServiceGet(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	member, err := svc.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "Prof. Amina Diallo", member.FullName)

	_, err = svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFacultyServiceDetail(t *testing.T) {
	f := newFacultyFixture()
	f.repo.details["f1"] = &models.FacultyDetail{Faculty: *f.repo.faculty["f1"], SectionCount: 3}
	svc := f.service()

	detail, err := svc.Detail(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "EMP-1001", detail.EmployeeNo)
	assert.Equal(t, 3, detail.SectionCount)

	_, err = svc.Detail(context.Background(), "ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFacultyServiceDeactivate(t *testing.T) {
	f := newFacultyFixture()
	svc := f.service()

	require.NoError(t, svc.Deactivate(context.Background(), "f1"))
	assert.Equal(t, []string{"f1"}, f.repo.deactivated)

	err := svc.Deactivate(context.Background(), "ghost")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestFacultyServiceList(t *testing.T) {
	f := newFacultyFixture()
	f.repo.list = []models.Faculty{*f.repo.faculty["f1"], *f.repo.faculty["f2"]}
	f.repo.total = 12
	svc := f.service()

	members, pagination, err := svc.List(context.Background(), models.FacultyFilter{})

	require.NoError(t, err)
	require.Len(t, members, 2)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 12, pagination.TotalCount)
}
