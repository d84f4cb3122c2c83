package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/dto"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/events"
)

type gradeEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FinalizeGrade(ctx context.Context, id, grade, gradedBy string, gradedAt time.Time) error
	ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error)
	SectionGrades(ctx context.Context, sectionID string) ([]string, error)
}

type gradeSectionReader interface {
	FindDetail(ctx context.Context, id string) (*models.SectionDetail, error)
}

type auditTrailWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// FinalizeGradeRequest records a final letter grade on an enrollment.
// GradedBy is the acting user; the grade is immutable once written.
type FinalizeGradeRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	Grade        string `json:"grade" validate:"required"`
	GradedBy     string `json:"graded_by" validate:"required"`
}

// GradeService finalizes grades and assembles transcripts. Grade point
// arithmetic stays in the degree package; this service orchestrates
// storage, caching and notification around it.
type GradeService struct {
	repo      gradeEnrollmentRepository
	sections  gradeSectionReader
	students  studentReader
	transfers approvedTransferReader
	trail     auditTrailWriter
	cache     *CacheService
	publisher *events.Publisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(
	repo gradeEnrollmentRepository,
	sections gradeSectionReader,
	students studentReader,
	transfers approvedTransferReader,
	trail auditTrailWriter,
	cache *CacheService,
	publisher *events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		repo:      repo,
		sections:  sections,
		students:  students,
		transfers: transfers,
		trail:     trail,
		cache:     cache,
		publisher: publisher,
		validator: validate,
		logger:    logger,
	}
}

// validGradeLabel accepts GPA-bearing letters plus the credit and
// administrative marks recorded on transcripts.
func validGradeLabel(grade string) bool {
	if _, ok := degree.GradePoints(grade); ok {
		return true
	}
	switch grade {
	case degree.GradeW, degree.GradeI, degree.GradeP, degree.GradeNC:
		return true
	}
	return false
}

// Finalize writes the final grade and completes the enrollment. A second
// write for the same enrollment fails with a conflict; grades never
// change once recorded.
func (s *GradeService) Finalize(ctx context.Context, req FinalizeGradeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !validGradeLabel(req.Grade) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grade label "+req.Grade)
	}
	enrollment, err := s.repo.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusCompleted:
		return nil, appErrors.Clone(appErrors.ErrGradeFinalized, "")
	case models.EnrollmentStatusDropped:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot grade a dropped enrollment")
	case models.EnrollmentStatusWaitlisted:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot grade a waitlisted enrollment")
	}

	gradedAt := time.Now().UTC()
	if err := s.repo.FinalizeGrade(ctx, enrollment.ID, req.Grade, req.GradedBy, gradedAt); err != nil {
		if err == sql.ErrNoRows {
			// Lost the race against another finalization.
			return nil, appErrors.Clone(appErrors.ErrGradeFinalized, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize grade")
	}

	if err := s.cache.Invalidate(ctx, repository.StudentCachePattern(enrollment.StudentID)); err != nil {
		s.logger.Warn("invalidate student cache failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
	}
	newValues, _ := json.Marshal(map[string]string{"grade": req.Grade})
	if err := s.trail.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &req.GradedBy,
		Action:     models.AuditActionGradeFinalize,
		Resource:   "enrollment",
		ResourceID: &enrollment.ID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("record grade audit log failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeGradeFinalized,
		StudentID: enrollment.StudentID,
		Payload: map[string]interface{}{
			"enrollmentId": enrollment.ID,
			"sectionId":    enrollment.SectionID,
			"grade":        req.Grade,
		},
	}); err != nil {
		s.logger.Warn("publish grade event failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
	}

	finalized := *enrollment
	finalized.Status = models.EnrollmentStatusCompleted
	finalized.Grade = &req.Grade
	finalized.GradedBy = &req.GradedBy
	finalized.GradedAt = &gradedAt
	return &finalized, nil
}

// Transcript assembles the student's full academic record grouped by
// term, with GPA and credit rollups computed from the graded history.
func (s *GradeService) Transcript(ctx context.Context, studentID string) (*dto.TranscriptResponse, error) {
	cacheKey := repository.TranscriptCacheKey(studentID)
	var cached dto.TranscriptResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	completed, err := s.repo.ListCompleted(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	transfers, err := s.transfers.ListApproved(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transfer credits")
	}

	transcript := buildTranscript(student, completed, transfers)
	if err := s.cache.Set(ctx, cacheKey, transcript, 0); err != nil {
		s.logger.Warn("cache transcript failed", zap.String("student_id", studentID), zap.Error(err))
	}
	return transcript, nil
}

// buildTranscript groups rows by term in first-seen order. Rows arrive
// ordered by term start date, so term groups come out chronological.
func buildTranscript(student *models.Student, completed []models.CompletedCourse, transfers []models.TransferCredit) *dto.TranscriptResponse {
	transcript := &dto.TranscriptResponse{
		Student:     *student,
		GeneratedAt: time.Now().UTC(),
	}

	termIndex := make(map[string]int)
	for _, cc := range completed {
		idx, ok := termIndex[cc.TermID]
		if !ok {
			idx = len(transcript.Terms)
			termIndex[cc.TermID] = idx
			transcript.Terms = append(transcript.Terms, dto.TranscriptTerm{TermID: cc.TermID, TermCode: cc.TermCode})
		}
		row := dto.TranscriptRow{
			CourseID:      cc.CourseID,
			CourseCode:    fmt.Sprintf("%s %d", cc.SubjectCode, cc.Number),
			Title:         cc.Title,
			CreditHours:   cc.CreditHours,
			Grade:         cc.Grade,
			QualityPoints: degree.QualityPoints(cc.Grade, cc.CreditHours),
			Earned:        degree.IsPassing(cc.Grade),
		}
		transcript.Terms[idx].Rows = append(transcript.Terms[idx].Rows, row)

		if cc.Grade != degree.GradeW && cc.Grade != degree.GradeI {
			transcript.CreditsAttempted += cc.CreditHours
		}
		if row.Earned {
			transcript.CreditsEarned += cc.CreditHours
		}
		transcript.QualityPoints += row.QualityPoints
	}

	for i := range transcript.Terms {
		var termCourses []degree.CompletedCourse
		for _, row := range transcript.Terms[i].Rows {
			transcript.Terms[i].Credits += row.CreditHours
			termCourses = append(termCourses, degree.CompletedCourse{
				CreditHours: row.CreditHours,
				Grade:       row.Grade,
			})
		}
		transcript.Terms[i].TermGPA = round2(degree.GPA(termCourses))
	}

	var all []degree.CompletedCourse
	for _, cc := range completed {
		all = append(all, degree.CompletedCourse{CreditHours: cc.CreditHours, Grade: cc.Grade})
	}
	transcript.CumulativeGPA = round2(degree.GPA(all))

	for _, tc := range transfers {
		transcript.TransferCredits += tc.CreditHours
	}
	return transcript
}

// SectionDistribution summarizes the finalized grades in a section.
func (s *GradeService) SectionDistribution(ctx context.Context, sectionID string) (*dto.GradeDistributionResponse, error) {
	section, err := s.sections.FindDetail(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	grades, err := s.repo.SectionGrades(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section grades")
	}

	dist := &dto.GradeDistributionResponse{
		SectionID:  sectionID,
		CourseCode: fmt.Sprintf("%s %d", section.SubjectCode, section.CourseNumber),
		Counts:     make(map[string]int, len(grades)),
	}
	var points float64
	var graded int
	for _, grade := range grades {
		dist.Counts[grade]++
		dist.GradedCount++
		if p, ok := degree.GradePoints(grade); ok {
			points += p
			graded++
		}
	}
	if graded > 0 {
		dist.AverageGPA = round2(points / float64(graded))
	}
	return dist, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
