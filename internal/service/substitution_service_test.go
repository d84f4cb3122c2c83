package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type substitutionStoreStub struct {
	subs    map[string]*models.CourseSubstitution
	list    []models.CourseSubstitution
	created *models.CourseSubstitution
	expired map[string]time.Time
}

func newSubstitutionStoreStub() *substitutionStoreStub {
	return &substitutionStoreStub{
		subs:    make(map[string]*models.CourseSubstitution),
		expired: make(map[string]time.Time),
	}
}

func (m *substitutionStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.CourseSubstitution, error) {
	return m.list, nil
}

func (m *substitutionStoreStub) FindByID(ctx context.Context, id string) (*models.CourseSubstitution, error) {
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (m *substitutionStoreStub) Create(ctx context.Context, sub *models.CourseSubstitution) error {
	sub.ID = "sub-1"
	m.created = sub
	m.subs[sub.ID] = sub
	return nil
}

func (m *substitutionStoreStub) Expire(ctx context.Context, id string, at time.Time) error {
	m.expired[id] = at
	return nil
}

type substitutionFixture struct {
	repo     *substitutionStoreStub
	students *mockStudentReader
	courses  *courseGraphStub
	trail    *trailStub
}

func newSubstitutionFixture() *substitutionFixture {
	return &substitutionFixture{
		repo: newSubstitutionStoreStub(),
		students: &mockStudentReader{students: map[string]*models.Student{
			"s1": {ID: "s1", FullName: "Dana Okafor", DegreeCode: "BSCS", Active: true},
			"s2": {ID: "s2", FullName: "Leo Grant", DegreeCode: "BSBA", Active: false},
		}},
		courses: &courseGraphStub{courses: []models.Course{
			{ID: "c1", SubjectCode: "CS", Number: 1100, Title: "Intro to CS", CreditHours: 4, Active: true},
			{ID: "c2", SubjectCode: "CS", Number: 2500, Title: "Algorithms", CreditHours: 4, Active: true},
		}},
		trail: &trailStub{},
	}
}

func (f *substitutionFixture) service() *SubstitutionService {
	return NewSubstitutionService(f.repo, f.students, f.courses, f.trail, nil, validator.New(), zap.NewNop())
}

func TestSubstitutionServiceCreate(t *testing.T) {
	f := newSubstitutionFixture()

	sub, err := f.service().Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s1",
		OriginalCourseID:   "c1",
		SubstituteCourseID: "c2",
		Reason:             "equivalent coverage",
		ApprovedBy:         "u-registrar",
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "c1", sub.OriginalCourseID)
	assert.Equal(t, "c2", sub.SubstituteCourseID)
	// A zero effective date means effective now.
	assert.False(t, sub.EffectiveDate.IsZero())

	require.Len(t, f.trail.logs, 1)
	assert.Equal(t, models.AuditActionSubstitution, f.trail.logs[0].Action)
}

func TestSubstitutionServiceCreateSameCourse(t *testing.T) {
	f := newSubstitutionFixture()

	_, err := f.service().Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s1",
		OriginalCourseID:   "c1",
		SubstituteCourseID: "c1",
		ApprovedBy:         "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "differ")
}

func TestSubstitutionServiceCreateUnknownCourse(t *testing.T) {
	f := newSubstitutionFixture()
	svc := f.service()

	_, err := svc.Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s1",
		OriginalCourseID:   "ghost",
		SubstituteCourseID: "c2",
		ApprovedBy:         "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "original course")

	_, err = svc.Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s1",
		OriginalCourseID:   "c1",
		SubstituteCourseID: "ghost",
		ApprovedBy:         "u-registrar",
	})
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "substitute course")
}

func TestSubstitutionServiceCreateInactiveStudent(t *testing.T) {
	f := newSubstitutionFixture()

	_, err := f.service().Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s2",
		OriginalCourseID:   "c1",
		SubstituteCourseID: "c2",
		ApprovedBy:         "u-registrar",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestSubstitutionServiceCreateWindowOrder(t *testing.T) {
	f := newSubstitutionFixture()
	effective := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	expires := effective.Add(-time.Hour)

	_, err := f.service().Create(context.Background(), CreateSubstitutionRequest{
		StudentID:          "s1",
		OriginalCourseID:   "c1",
		SubstituteCourseID: "c2",
		ApprovedBy:         "u-registrar",
		EffectiveDate:      effective,
		ExpirationDate:     &expires,
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Nil(t, f.repo.created)
}

func TestSubstitutionServiceExpire(t *testing.T) {
	f := newSubstitutionFixture()
	f.repo.subs["sub-9"] = &models.CourseSubstitution{
		ID:               "sub-9",
		StudentID:        "s1",
		OriginalCourseID: "c1", SubstituteCourseID: "c2",
		EffectiveDate: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	at := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	expired, err := f.service().Expire(context.Background(), ExpireSubstitutionRequest{
		SubstitutionID: "sub-9",
		ExpiredBy:      "u-registrar",
		At:             at,
	})
	require.NoError(t, err)
	require.NotNil(t, expired.ExpirationDate)
	assert.Equal(t, at, *expired.ExpirationDate)
	assert.Equal(t, at, f.repo.expired["sub-9"])
	require.Len(t, f.trail.logs, 1)
}

func TestSubstitutionServiceExpireGuards(t *testing.T) {
	f := newSubstitutionFixture()
	effective := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	f.repo.subs["sub-open"] = &models.CourseSubstitution{ID: "sub-open", StudentID: "s1", EffectiveDate: effective}
	f.repo.subs["sub-closed"] = &models.CourseSubstitution{ID: "sub-closed", StudentID: "s1", EffectiveDate: effective, ExpirationDate: &closed}
	svc := f.service()

	_, err := svc.Expire(context.Background(), ExpireSubstitutionRequest{SubstitutionID: "ghost", ExpiredBy: "u-registrar"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.Expire(context.Background(), ExpireSubstitutionRequest{
		SubstitutionID: "sub-open",
		ExpiredBy:      "u-registrar",
		At:             effective.Add(-time.Hour),
	})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.Expire(context.Background(), ExpireSubstitutionRequest{
		SubstitutionID: "sub-closed",
		ExpiredBy:      "u-registrar",
		At:             time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSubstitutionServiceList(t *testing.T) {
	f := newSubstitutionFixture()
	f.repo.list = []models.CourseSubstitution{{ID: "sub-1"}, {ID: "sub-2"}}

	subs, err := f.service().List(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}
