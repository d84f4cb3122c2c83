package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	listResp   []models.EnrollmentDetail
	pagination *models.Pagination
	listErr    error
	lastFilter models.EnrollmentFilter
	enrollResp *models.EnrollmentDetail
	enrollErr  error
	lastEnroll service.EnrollStudentRequest
	dropResp   *models.EnrollmentDetail
	dropErr    error
	dropped    string
	history    []models.CompletedCourse
	historyErr error
	roster     []models.EnrollmentDetail
	rosterErr  error
}

func (f *fakeEnrollmentSrv) List(_ context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	f.lastFilter = filter
	return f.listResp, f.pagination, f.listErr
}

func (f *fakeEnrollmentSrv) Enroll(_ context.Context, req service.EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	f.lastEnroll = req
	return f.enrollResp, f.enrollErr
}

func (f *fakeEnrollmentSrv) Drop(_ context.Context, id string) (*models.EnrollmentDetail, error) {
	f.dropped = id
	return f.dropResp, f.dropErr
}

func (f *fakeEnrollmentSrv) History(context.Context, string) ([]models.CompletedCourse, error) {
	return f.history, f.historyErr
}

func (f *fakeEnrollmentSrv) Roster(context.Context, string) ([]models.EnrollmentDetail, error) {
	return f.roster, f.rosterErr
}

func enrollmentDetail(id string, status models.EnrollmentStatus) *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        id,
			StudentID: "s1",
			SectionID: "sec1",
			Status:    status,
		},
		StudentName: "Dana Okafor",
		SubjectCode: "CS",
		CreditHours: 4,
	}
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{enrollResp: enrollmentDetail("enr-1", models.EnrollmentStatusEnrolled)}
	h := NewEnrollmentHandler(fake)

	payload, _ := json.Marshal(service.EnrollStudentRequest{StudentID: "s1", SectionID: "sec1"})
	c, w := newGinContext(http.MethodPost, "/enrollments", payload)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "s1", fake.lastEnroll.StudentID)
	assert.Contains(t, w.Body.String(), "ENROLLED")
}

func TestEnrollmentHandlerCreateFullSectionWaitlists(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{enrollResp: enrollmentDetail("enr-2", models.EnrollmentStatusWaitlisted)}
	h := NewEnrollmentHandler(fake)

	payload, _ := json.Marshal(service.EnrollStudentRequest{StudentID: "s1", SectionID: "sec1"})
	c, w := newGinContext(http.MethodPost, "/enrollments", payload)

	h.Create(c)

	// The waitlist handoff still reports a created registration.
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "WAITLISTED")
}

func TestEnrollmentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEnrollmentHandler(&fakeEnrollmentSrv{})

	c, w := newGinContext(http.MethodPost, "/enrollments", []byte("{not json"))

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerCreateServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{enrollErr: appErrors.ErrSectionFull}
	h := NewEnrollmentHandler(fake)

	payload, _ := json.Marshal(service.EnrollStudentRequest{StudentID: "s1", SectionID: "sec1"})
	c, w := newGinContext(http.MethodPost, "/enrollments", payload)

	h.Create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SECTION_FULL")
}

func TestEnrollmentHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{
		listResp:   []models.EnrollmentDetail{*enrollmentDetail("enr-1", models.EnrollmentStatusEnrolled)},
		pagination: &models.Pagination{Page: 2, PageSize: 5, TotalCount: 11},
	}
	h := NewEnrollmentHandler(fake)

	c, w := newGinContext(http.MethodGet, "/enrollments?studentId=s1&status=enrolled&page=2&limit=5", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", fake.lastFilter.StudentID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, fake.lastFilter.Status)
	assert.Equal(t, 2, fake.lastFilter.Page)
	assert.Equal(t, 5, fake.lastFilter.PageSize)
}

func TestEnrollmentHandlerDrop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{dropResp: enrollmentDetail("enr-1", models.EnrollmentStatusDropped)}
	h := NewEnrollmentHandler(fake)

	c, w := newGinContext(http.MethodDelete, "/enrollments/enr-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}

	h.Drop(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enr-1", fake.dropped)
}

func TestEnrollmentHandlerDropNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{dropErr: appErrors.ErrNotFound}
	h := NewEnrollmentHandler(fake)

	c, w := newGinContext(http.MethodDelete, "/enrollments/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	h.Drop(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeEnrollmentSrv{history: []models.CompletedCourse{
		{CourseID: "c1", SubjectCode: "CS", Number: 1100, Grade: "A", CreditHours: 4},
	}}
	h := NewEnrollmentHandler(fake)

	c, w := newGinContext(http.MethodGet, "/students/s1/history", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CS")
}
