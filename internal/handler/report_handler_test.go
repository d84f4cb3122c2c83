package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/registrar-api/internal/dto"
	"github.com/campusops/registrar-api/internal/middleware"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/service"
)

type fakeReportSrv struct {
	createResp  *dto.ReportJobResponse
	createErr   error
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	listResp    []models.ReportJob
	listErr     error
	download    *service.ReportDownload
	downloadErr error
	lastToken   string
	lastLimit   int
}

func (f *fakeReportSrv) CreateJob(context.Context, dto.ReportRequest, string, models.UserRole) (*dto.ReportJobResponse, error) {
	return f.createResp, f.createErr
}

func (f *fakeReportSrv) GetStatus(context.Context, string, string, models.UserRole) (*dto.ReportStatusResponse, error) {
	return f.statusResp, f.statusErr
}

func (f *fakeReportSrv) ListJobs(_ context.Context, _ string, limit int) ([]models.ReportJob, error) {
	f.lastLimit = limit
	return f.listResp, f.listErr
}

func (f *fakeReportSrv) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	f.lastToken = token
	return f.download, f.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func asRegistrar(c *gin.Context) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-registrar", Role: models.RoleRegistrar})
}

func TestReportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeReportSrv{
		createResp: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued},
	}
	h := NewReportHandler(fake)

	studentID := "s1"
	payload, _ := json.Marshal(dto.ReportRequest{
		Type:      models.ReportTypeTranscript,
		Format:    models.ReportFormatPDF,
		StudentID: &studentID,
	})
	c, w := newGinContext(http.MethodPost, "/reports", payload)
	asRegistrar(c)

	h.Create(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestReportHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewReportHandler(&fakeReportSrv{})

	c, w := newGinContext(http.MethodPost, "/reports", []byte(`{}`))

	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReportHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	url := "/export/tok"
	fake := &fakeReportSrv{
		statusResp: &dto.ReportStatusResponse{ID: "job-1", Status: models.ReportStatusFinished, Progress: 100, ResultURL: &url},
	}
	h := NewReportHandler(fake)

	c, w := newGinContext(http.MethodGet, "/reports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	asRegistrar(c)

	h.Status(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "FINISHED")
}

func TestReportHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeReportSrv{
		listResp: []models.ReportJob{{ID: "job-1", Type: models.ReportTypeTranscript, Status: models.ReportStatusFinished}},
	}
	h := NewReportHandler(fake)

	c, w := newGinContext(http.MethodGet, "/reports?limit=5", nil)
	asRegistrar(c)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, fake.lastLimit)
	assert.Contains(t, w.Body.String(), "job-1")
}

func TestReportHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp("", "transcript*.pdf")
	require.NoError(t, err)
	defer os.Remove(file.Name())
	_, _ = file.WriteString("%PDF-1.4")
	_, _ = file.Seek(0, 0)

	fake := &fakeReportSrv{
		download: &service.ReportDownload{
			File:      file,
			Filename:  "transcript_s1.pdf",
			Format:    models.ReportFormatPDF,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	h := NewReportHandler(fake)

	// Download runs outside the session; the signed token is the only
	// credential.
	c, w := newGinContext(http.MethodGet, "/export/tok-1", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	h.Download(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok-1", fake.lastToken)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transcript_s1.pdf")
}
