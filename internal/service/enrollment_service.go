package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/events"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	HasActiveInCourse(ctx context.Context, studentID, courseID, termID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	MarkDropped(ctx context.Context, id string, droppedAt time.Time) error
	ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error)
	TermCreditLoad(ctx context.Context, studentID, termID string) (float64, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sectionSeatRepository interface {
	FindDetail(ctx context.Context, id string) (*models.SectionDetail, error)
	ClaimSeat(ctx context.Context, sectionID string) (bool, error)
	ReleaseSeat(ctx context.Context, sectionID string) error
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type prerequisiteReader interface {
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error)
}

// waitlister hands full-section registrations to the waitlist and serves
// the queue when seats free up. A nil waitlister disables the handoff.
type waitlister interface {
	Enqueue(ctx context.Context, student *models.Student, section *models.SectionDetail) (*models.WaitlistEntry, *models.Enrollment, error)
	Withdraw(ctx context.Context, studentID, sectionID string) error
	PromoteNext(ctx context.Context, sectionID string) (*models.WaitlistEntry, error)
}

type enrollmentNotifier interface {
	EnrollmentConfirmed(student *models.Student, section *models.SectionDetail)
}

// EnrollStudentRequest describes a registration request.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentService orchestrates registration: eligibility checks, seat
// accounting and the waitlist handoff when a section is full.
type EnrollmentService struct {
	repo           enrollmentRepository
	students       studentReader
	sections       sectionSeatRepository
	terms          termReader
	prereqs        prerequisiteReader
	waitlist       waitlister
	notifier       enrollmentNotifier
	cache          *CacheService
	publisher      *events.Publisher
	maxTermCredits float64
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. A zero
// maxTermCredits disables the per-term load ceiling.
func NewEnrollmentService(
	repo enrollmentRepository,
	students studentReader,
	sections sectionSeatRepository,
	terms termReader,
	prereqs prerequisiteReader,
	waitlist waitlister,
	notifier enrollmentNotifier,
	cache *CacheService,
	publisher *events.Publisher,
	maxTermCredits float64,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:           repo,
		students:       students,
		sections:       sections,
		terms:          terms,
		prereqs:        prereqs,
		waitlist:       waitlist,
		notifier:       notifier,
		cache:          cache,
		publisher:      publisher,
		maxTermCredits: maxTermCredits,
		validator:      validate,
		logger:         logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Enroll registers a student into a course section. A full section hands
// the student to the waitlist instead of failing, when waitlisting is
// enabled; the returned detail then carries the WAITLISTED status.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}
	section, err := s.sections.FindDetail(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.RegistrationOpen {
		return nil, appErrors.Clone(appErrors.ErrTermClosed, "registration closed for "+term.Code)
	}

	enrolled, err := s.repo.HasActiveInCourse(ctx, student.ID, section.CourseID, section.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled or waitlisted in this course")
	}

	if err := s.checkPrerequisites(ctx, student.ID, section.CourseID); err != nil {
		return nil, err
	}
	if err := s.checkCreditLoad(ctx, student.ID, section); err != nil {
		return nil, err
	}

	claimed, err := s.sections.ClaimSeat(ctx, section.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim seat")
	}
	if !claimed {
		return s.handOffToWaitlist(ctx, student, section, term)
	}

	enrollment := &models.Enrollment{
		StudentID: student.ID,
		SectionID: section.ID,
		Status:    models.EnrollmentStatusEnrolled,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		// The claimed seat would leak otherwise.
		if releaseErr := s.sections.ReleaseSeat(ctx, section.ID); releaseErr != nil {
			s.logger.Error("release seat after failed enrollment", zap.String("section_id", section.ID), zap.Error(releaseErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateStudent(ctx, student.ID)
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeEnrollmentCreated,
		StudentID: student.ID,
		Payload: map[string]interface{}{
			"enrollmentId": enrollment.ID,
			"sectionId":    section.ID,
			"courseCode":   fmt.Sprintf("%s %d", section.SubjectCode, section.CourseNumber),
			"termCode":     term.Code,
		},
	}); err != nil {
		s.logger.Warn("publish enrollment event failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.EnrollmentConfirmed(student, section)
	}

	return s.buildDetail(enrollment, student, section, term), nil
}

// checkPrerequisites verifies every prerequisite of the course appears in
// the student's credit-earning completions.
func (s *EnrollmentService) checkPrerequisites(ctx context.Context, studentID, courseID string) error {
	prereqs, err := s.prereqs.ListPrerequisites(ctx, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if len(prereqs) == 0 {
		return nil
	}
	completed, err := s.repo.ListCompleted(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	passed := make(map[string]bool, len(completed))
	for _, cc := range completed {
		if degree.IsPassing(cc.Grade) {
			passed[cc.CourseID] = true
		}
	}
	var missing []string
	for _, prereq := range prereqs {
		if !passed[prereq.ID] {
			missing = append(missing, fmt.Sprintf("%s %d", prereq.SubjectCode, prereq.Number))
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrPrereqNotMet, "missing prerequisites: "+strings.Join(missing, ", "))
	}
	return nil
}

// checkCreditLoad enforces the per-term registration ceiling.
func (s *EnrollmentService) checkCreditLoad(ctx context.Context, studentID string, section *models.SectionDetail) error {
	if s.maxTermCredits <= 0 {
		return nil
	}
	load, err := s.repo.TermCreditLoad(ctx, studentID, section.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute term credit load")
	}
	if load+section.CreditHours > s.maxTermCredits {
		return appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("enrollment would exceed the %.0f credit term limit", s.maxTermCredits))
	}
	return nil
}

func (s *EnrollmentService) handOffToWaitlist(ctx context.Context, student *models.Student, section *models.SectionDetail, term *models.Term) (*models.EnrollmentDetail, error) {
	if s.waitlist == nil {
		return nil, appErrors.Clone(appErrors.ErrSectionFull, "")
	}
	entry, enrollment, err := s.waitlist.Enqueue(ctx, student, section)
	if err != nil {
		return nil, err
	}
	s.logger.Info("student waitlisted",
		zap.String("student_id", student.ID),
		zap.String("section_id", section.ID),
		zap.Int("priority", entry.Priority),
		zap.Int("position", entry.Position))
	return s.buildDetail(enrollment, student, section, term), nil
}

// Drop withdraws a registration. Dropping a held seat releases it and
// promotes the waitlist head; dropping a waitlisted registration cancels
// the queue entry instead.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	switch enrollment.Status {
	case models.EnrollmentStatusDropped:
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment already dropped")
	case models.EnrollmentStatusCompleted:
		return nil, appErrors.Clone(appErrors.ErrGradeFinalized, "completed enrollment cannot be dropped")
	}

	if enrollment.Status == models.EnrollmentStatusWaitlisted && s.waitlist != nil {
		if err := s.waitlist.Withdraw(ctx, enrollment.StudentID, enrollment.SectionID); err != nil {
			return nil, err
		}
		s.invalidateStudent(ctx, enrollment.StudentID)
		return s.dropResult(ctx, enrollment)
	}

	droppedAt := time.Now().UTC()
	if err := s.repo.MarkDropped(ctx, id, droppedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}

	if enrollment.Status == models.EnrollmentStatusEnrolled {
		if err := s.sections.ReleaseSeat(ctx, enrollment.SectionID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
		}
		if s.waitlist != nil {
			if _, err := s.waitlist.PromoteNext(ctx, enrollment.SectionID); err != nil {
				s.logger.Warn("waitlist promotion after drop failed", zap.String("section_id", enrollment.SectionID), zap.Error(err))
			}
		}
	}

	s.invalidateStudent(ctx, enrollment.StudentID)
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeEnrollmentDropped,
		StudentID: enrollment.StudentID,
		Payload: map[string]interface{}{
			"enrollmentId": enrollment.ID,
			"sectionId":    enrollment.SectionID,
		},
	}); err != nil {
		s.logger.Warn("publish drop event failed", zap.String("student_id", enrollment.StudentID), zap.Error(err))
	}

	return s.dropResult(ctx, enrollment)
}

func (s *EnrollmentService) dropResult(ctx context.Context, enrollment *models.Enrollment) (*models.EnrollmentDetail, error) {
	student, err := s.students.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	section, err := s.sections.FindDetail(ctx, enrollment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	dropped := *enrollment
	dropped.Status = models.EnrollmentStatusDropped
	now := time.Now().UTC()
	if dropped.DroppedAt == nil {
		dropped.DroppedAt = &now
	}
	return s.buildDetail(&dropped, student, section, term), nil
}

// History returns the student's graded coursework in transcript order.
func (s *EnrollmentService) History(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	completed, err := s.repo.ListCompleted(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	return completed, nil
}

// Roster returns every registration in a section.
func (s *EnrollmentService) Roster(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.sections.FindDetail(ctx, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	roster, _, err := s.repo.List(ctx, models.EnrollmentFilter{SectionID: sectionID, PageSize: 500, SortBy: "enrolled_at", SortOrder: "ASC"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

func (s *EnrollmentService) buildDetail(enrollment *models.Enrollment, student *models.Student, section *models.SectionDetail, term *models.Term) *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment:    *enrollment,
		StudentName:   student.FullName,
		StudentNumber: student.StudentNumber,
		SubjectCode:   section.SubjectCode,
		CourseNumber:  section.CourseNumber,
		CourseTitle:   section.CourseTitle,
		CreditHours:   section.CreditHours,
		TermID:        section.TermID,
		TermCode:      term.Code,
	}
}

func (s *EnrollmentService) invalidateStudent(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, repository.StudentCachePattern(studentID)); err != nil {
		s.logger.Warn("invalidate student cache failed", zap.String("student_id", studentID), zap.Error(err))
	}
}
