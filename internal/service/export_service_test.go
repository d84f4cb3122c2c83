package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/pkg/export"
	"github.com/campusops/registrar-api/pkg/storage"
)

type exportStudentStub struct{}

func (exportStudentStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id, StudentNumber: "U100200", FullName: "Dana Okafor", DegreeCode: "BSCS", Active: true}, nil
}

type exportHistoryStub struct{}

func (exportHistoryStub) ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	return []models.CompletedCourse{
		{StudentID: studentID, CourseID: "c-1", SubjectCode: "CS", Number: 2500, Title: "Fundamentals 1", CreditHours: 4, Grade: "A", TermCode: "FA24"},
		{StudentID: studentID, CourseID: "c-2", SubjectCode: "MATH", Number: 1200, Title: "Calculus 1", CreditHours: 4, Grade: "B+", TermCode: "FA24"},
	}, nil
}

type exportAuditStub struct {
	audit *models.DegreeAudit
}

func (s exportAuditStub) FindLatest(ctx context.Context, studentID string) (*models.DegreeAudit, error) {
	if s.audit == nil {
		return nil, sql.ErrNoRows
	}
	return s.audit, nil
}

type exportEnrollmentStub struct{}

func (exportEnrollmentStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	grade := "A-"
	return []models.EnrollmentDetail{
		{
			Enrollment:    models.Enrollment{ID: "e-1", StudentID: "s-1", SectionID: filter.SectionID, Status: models.EnrollmentStatusEnrolled, Grade: &grade, EnrolledAt: time.Now()},
			StudentName:   "Dana Okafor",
			StudentNumber: "U100200",
		},
	}, 1, nil
}

func (exportEnrollmentStub) SectionGrades(ctx context.Context, sectionID string) ([]string, error) {
	return []string{"A", "A", "B+", "C", "F"}, nil
}

type exportSectionStub struct{}

func (exportSectionStub) FindDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	return &models.SectionDetail{
		CourseSection: models.CourseSection{ID: id, CourseID: "c-1", TermID: "t-1", Section: "001", Capacity: 30, Enrolled: 28},
		SubjectCode:   "CS",
		CourseNumber:  2500,
		CourseTitle:   "Fundamentals 1",
		CreditHours:   4,
	}, nil
}

func storedAuditFixture(t *testing.T) *models.DegreeAudit {
	t.Helper()
	result := degree.AuditResult{
		StudentID:  "s-1",
		TemplateID: "tpl-1",
		DegreeCode: "BSCS",
		Categories: []degree.CategoryResult{
			{
				CategoryID: "core",
				Name:       "Core",
				Requirements: []degree.Satisfaction{
					{RequirementID: "r-1", Type: degree.TypeSpecificCourses, Description: "Intro sequence", Satisfied: true, CreditsSatisfied: 8, CreditsRequired: 8, ProgressPercentage: 100},
					{RequirementID: "r-2", Type: degree.TypeCreditHours, Description: "Upper division hours", CreditsSatisfied: 4, CreditsRequired: 16, ProgressPercentage: 25},
				},
			},
		},
	}
	payload, err := json.Marshal(result)
	require.NoError(t, err)
	return &models.DegreeAudit{
		ID:                    "aud-1",
		StudentID:             "s-1",
		TemplateID:            "tpl-1",
		DegreeCode:            "BSCS",
		Result:                payload,
		TotalCreditsCompleted: 12,
		CompletionPercentage:  30,
		GeneratedAt:           time.Now(),
	}
}

func newExportServiceForTest(t *testing.T, audits exportAuditStub) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(exportStudentStub{}, exportHistoryStub{}, audits, exportEnrollmentStub{}, exportSectionStub{},
		store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestExportServiceGenerateTranscriptCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t, exportAuditStub{})
	studentID := "s-1"
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeTranscript,
		Params:    models.ReportJobParams{StudentID: &studentID, Format: models.ReportFormatCSV},
		CreatedBy: "registrar-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	assert.Contains(t, result.URL, "/api/v1/export/")
	assert.Equal(t, models.ReportFormatCSV, result.Format)

	data, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "CS 2500")
	assert.Contains(t, content, "MATH 1200")
	assert.Contains(t, content, "Cumulative")
}

func TestExportServiceGenerateDegreeAuditPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t, exportAuditStub{audit: storedAuditFixture(t)})
	studentID := "s-1"
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeDegreeAudit,
		Params:    models.ReportJobParams{StudentID: &studentID, Format: models.ReportFormatPDF},
		CreatedBy: "registrar-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceGenerateDegreeAuditMissingSnapshot(t *testing.T) {
	svc, _ := newExportServiceForTest(t, exportAuditStub{})
	studentID := "s-1"
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypeDegreeAudit,
		Params: models.ReportJobParams{StudentID: &studentID, Format: models.ReportFormatCSV},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stored degree audit")
}

func TestExportServiceGenerateRosterCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t, exportAuditStub{})
	sectionID := "sec-1"
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportTypeEnrollmentRoster,
		Params: models.ReportJobParams{SectionID: &sectionID, Format: models.ReportFormatCSV},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Contains(t, string(data), "U100200")
}

func TestExportServiceGenerateGradeDistribution(t *testing.T) {
	svc, store := newExportServiceForTest(t, exportAuditStub{})
	sectionID := "sec-1"
	job := &models.ReportJob{
		ID:     "job-5",
		Type:   models.ReportTypeGradeDistribution,
		Params: models.ReportJobParams{SectionID: &sectionID, Format: models.ReportFormatCSV},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Section GPA")
}

func TestExportServiceRejectsMissingScope(t *testing.T) {
	svc, _ := newExportServiceForTest(t, exportAuditStub{})
	job := &models.ReportJob{
		ID:     "job-6",
		Type:   models.ReportTypeTranscript,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}
