package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/pkg/export"
	"github.com/campusops/registrar-api/pkg/storage"
)

type exportEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	SectionGrades(ctx context.Context, sectionID string) ([]string, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds report datasets and persists rendered files.
// Transcripts and degree audits are per student; rosters and grade
// distributions are per section.
type ExportService struct {
	students    studentReader
	history     completedCourseReader
	audits      latestAuditReader
	enrollments exportEnrollmentReader
	sections    gradeSectionReader
	storage     fileStorage
	csv         csvRenderer
	pdf         pdfRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(
	students studentReader,
	history completedCourseReader,
	audits latestAuditReader,
	enrollments exportEnrollmentReader,
	sections gradeSectionReader,
	store fileStorage,
	signer *storage.SignedURLSigner,
	cfg ExportConfig,
	logger *zap.Logger,
	csv csvRenderer,
	pdf pdfRenderer,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		students:    students,
		history:     history,
		audits:      audits,
		enrollments: enrollments,
		sections:    sections,
		storage:     store,
		csv:         csv,
		pdf:         pdf,
		signer:      signer,
		logger:      logger,
		cfg:         cfg,
	}
}

// Generate builds a dataset according to the job definition and stores
// the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured
// ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "na"
	switch {
	case job.Params.StudentID != nil && *job.Params.StudentID != "":
		scope = *job.Params.StudentID
	case job.Params.SectionID != nil && *job.Params.SectionID != "":
		scope = *job.Params.SectionID
	}
	name := fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(scope), timestamp, job.Params.Format)
	return name
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeTranscript:
		return s.buildTranscriptDataset(ctx, job.Params)
	case models.ReportTypeDegreeAudit:
		return s.buildDegreeAuditDataset(ctx, job.Params)
	case models.ReportTypeEnrollmentRoster:
		return s.buildRosterDataset(ctx, job.Params)
	case models.ReportTypeGradeDistribution:
		return s.buildGradeDistributionDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildTranscriptDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	studentID := deref(params.StudentID)
	if studentID == "" {
		return export.Dataset{}, "", fmt.Errorf("transcript job missing student id")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load student: %w", err)
	}
	completed, err := s.history.ListCompleted(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load completed courses: %w", err)
	}

	headers := []string{"Term", "Course", "Title", "Credit Hours", "Grade", "Quality Points"}
	rows := make([]map[string]string, 0, len(completed)+1)
	var totalCredits float64
	for _, cc := range completed {
		rows = append(rows, map[string]string{
			"Term":           cc.TermCode,
			"Course":         fmt.Sprintf("%s %d", cc.SubjectCode, cc.Number),
			"Title":          cc.Title,
			"Credit Hours":   fmt.Sprintf("%.1f", cc.CreditHours),
			"Grade":          cc.Grade,
			"Quality Points": fmt.Sprintf("%.2f", degree.QualityPoints(cc.Grade, cc.CreditHours)),
		})
		if degree.IsPassing(cc.Grade) {
			totalCredits += cc.CreditHours
		}
	}
	gpa := degree.GPA(completedToDegree(completed))
	rows = append(rows, map[string]string{
		"Term":           "",
		"Course":         "",
		"Title":          "Cumulative",
		"Credit Hours":   fmt.Sprintf("%.1f", totalCredits),
		"Grade":          "",
		"Quality Points": fmt.Sprintf("GPA %.2f", gpa),
	})

	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Academic Transcript %s (%s)", student.FullName, student.StudentNumber)
	return dataset, title, nil
}

func (s *ExportService) buildDegreeAuditDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	studentID := deref(params.StudentID)
	if studentID == "" {
		return export.Dataset{}, "", fmt.Errorf("degree audit job missing student id")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load student: %w", err)
	}
	stored, err := s.audits.FindLatest(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return export.Dataset{}, "", fmt.Errorf("no stored degree audit for student %s", studentID)
		}
		return export.Dataset{}, "", fmt.Errorf("load degree audit: %w", err)
	}
	var result degree.AuditResult
	if err := json.Unmarshal(stored.Result, &result); err != nil {
		return export.Dataset{}, "", fmt.Errorf("decode stored audit: %w", err)
	}

	headers := []string{"Category", "Requirement", "Type", "Satisfied", "Credits Applied", "Credits Required", "Progress (%)"}
	var rows []map[string]string
	for _, category := range result.Categories {
		for _, req := range category.Requirements {
			satisfied := "no"
			if req.Satisfied {
				satisfied = "yes"
			}
			rows = append(rows, map[string]string{
				"Category":         category.Name,
				"Requirement":      req.Description,
				"Type":             string(req.Type),
				"Satisfied":        satisfied,
				"Credits Applied":  fmt.Sprintf("%.1f", req.CreditsSatisfied),
				"Credits Required": fmt.Sprintf("%d", req.CreditsRequired),
				"Progress (%)":     fmt.Sprintf("%d", req.ProgressPercentage),
			})
		}
	}
	eligible := "no"
	if stored.Eligible {
		eligible = "yes"
	}
	rows = append(rows, map[string]string{
		"Category":         "Overall",
		"Requirement":      fmt.Sprintf("Graduation eligible: %s", eligible),
		"Type":             "",
		"Satisfied":        eligible,
		"Credits Applied":  fmt.Sprintf("%.1f", stored.TotalCreditsCompleted),
		"Credits Required": "",
		"Progress (%)":     fmt.Sprintf("%.1f", stored.CompletionPercentage),
	})

	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Degree Audit %s (%s)", student.FullName, stored.DegreeCode)
	return dataset, title, nil
}

func (s *ExportService) buildRosterDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	sectionID := deref(params.SectionID)
	if sectionID == "" {
		return export.Dataset{}, "", fmt.Errorf("roster job missing section id")
	}
	section, err := s.sections.FindDetail(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load section: %w", err)
	}
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
		SectionID: sectionID,
		Page:      1,
		PageSize:  1000,
	})
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load roster: %w", err)
	}

	headers := []string{"Student Number", "Student Name", "Status", "Grade", "Enrolled At"}
	rows := make([]map[string]string, 0, len(enrollments))
	for _, e := range enrollments {
		grade := ""
		if e.Grade != nil {
			grade = *e.Grade
		}
		rows = append(rows, map[string]string{
			"Student Number": e.StudentNumber,
			"Student Name":   e.StudentName,
			"Status":         string(e.Status),
			"Grade":          grade,
			"Enrolled At":    e.EnrolledAt.UTC().Format(time.RFC3339),
		})
	}

	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Enrollment Roster %s %d Section %s (%s)", section.SubjectCode, section.CourseNumber, section.Section, section.TermID)
	return dataset, title, nil
}

func (s *ExportService) buildGradeDistributionDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	sectionID := deref(params.SectionID)
	if sectionID == "" {
		return export.Dataset{}, "", fmt.Errorf("grade distribution job missing section id")
	}
	section, err := s.sections.FindDetail(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load section: %w", err)
	}
	grades, err := s.enrollments.SectionGrades(ctx, sectionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load section grades: %w", err)
	}

	counts := make(map[string]int)
	var gpaSum float64
	var gpaCount int
	for _, grade := range grades {
		counts[grade]++
		if points, ok := degree.GradePoints(grade); ok {
			gpaSum += points
			gpaCount++
		}
	}
	letters := make([]string, 0, len(counts))
	for letter := range counts {
		letters = append(letters, letter)
	}
	sort.Strings(letters)

	headers := []string{"Grade", "Count", "Share (%)"}
	rows := make([]map[string]string, 0, len(letters)+1)
	for _, letter := range letters {
		share := 0.0
		if len(grades) > 0 {
			share = float64(counts[letter]) / float64(len(grades)) * 100
		}
		rows = append(rows, map[string]string{
			"Grade":     letter,
			"Count":     fmt.Sprintf("%d", counts[letter]),
			"Share (%)": fmt.Sprintf("%.1f", share),
		})
	}
	sectionGPA := 0.0
	if gpaCount > 0 {
		sectionGPA = gpaSum / float64(gpaCount)
	}
	rows = append(rows, map[string]string{
		"Grade":     "Section GPA",
		"Count":     fmt.Sprintf("%d", len(grades)),
		"Share (%)": fmt.Sprintf("%.2f", sectionGPA),
	})

	dataset := export.Dataset{Headers: headers, Rows: rows}
	title := fmt.Sprintf("Grade Distribution %s %d Section %s", section.SubjectCode, section.CourseNumber, section.Section)
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
