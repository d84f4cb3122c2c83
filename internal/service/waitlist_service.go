package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/events"
)

// A student whose audit shows at least this completion share queues in
// the graduating band.
const graduatingCompletionPct = 75.0

type waitlistRepository interface {
	Join(ctx context.Context, entry *models.WaitlistEntry) error
	FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	FindWaiting(ctx context.Context, studentID, sectionID string) (*models.WaitlistEntry, error)
	NextCandidate(ctx context.Context, sectionID string) (*models.WaitlistEntry, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error)
	CountAhead(ctx context.Context, entry *models.WaitlistEntry) (int, error)
	CountWaiting(ctx context.Context, sectionID string) (int, error)
	UpdateStatus(ctx context.Context, id, from, to string) error
	Requeue(ctx context.Context, id string, priority int) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

type waitlistEnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	HasActiveInCourse(ctx context.Context, studentID, courseID, termID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	MarkDropped(ctx context.Context, id string, droppedAt time.Time) error
}

type latestAuditReader interface {
	FindLatest(ctx context.Context, studentID string) (*models.DegreeAudit, error)
}

type degreePlanReader interface {
	FindActive(ctx context.Context, degreeCode string, at time.Time) (*models.DegreeTemplate, error)
	ReferencedCourseIDs(ctx context.Context, templateID string) ([]string, error)
}

type waitlistNotifier interface {
	WaitlistPromoted(student *models.Student, section *models.SectionDetail)
}

// JoinWaitlistRequest asks to queue a student for a full section.
type JoinWaitlistRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// WaitlistStanding reports a queue entry with the number served first.
type WaitlistStanding struct {
	Entry models.WaitlistEntry `json:"entry"`
	Ahead int                  `json:"ahead"`
}

// WaitlistService owns the section queues: banded FIFO ordering, the
// paired WAITLISTED enrollment rows and promotion into freed seats.
// Priority bands are assigned at join time: graduating students first,
// then students whose degree plan requires the course, then everyone
// else.
type WaitlistService struct {
	repo          waitlistRepository
	enrollments   waitlistEnrollmentRepository
	sections      sectionSeatRepository
	students      studentReader
	audits        latestAuditReader
	templates     degreePlanReader
	notifier      waitlistNotifier
	publisher     *events.Publisher
	metrics       *MetricsService
	cache         *CacheService
	maxPerSection int
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewWaitlistService constructs WaitlistService. A zero maxPerSection
// leaves queue length unbounded.
func NewWaitlistService(
	repo waitlistRepository,
	enrollments waitlistEnrollmentRepository,
	sections sectionSeatRepository,
	students studentReader,
	audits latestAuditReader,
	templates degreePlanReader,
	notifier waitlistNotifier,
	publisher *events.Publisher,
	metrics *MetricsService,
	cache *CacheService,
	maxPerSection int,
	validate *validator.Validate,
	logger *zap.Logger,
) *WaitlistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistService{
		repo:          repo,
		enrollments:   enrollments,
		sections:      sections,
		students:      students,
		audits:        audits,
		templates:     templates,
		notifier:      notifier,
		publisher:     publisher,
		metrics:       metrics,
		cache:         cache,
		maxPerSection: maxPerSection,
		validator:     validate,
		logger:        logger,
	}
}

// Join queues a student for a full section on request. Sections with
// open seats reject the join; regular registration handles those.
func (s *WaitlistService) Join(ctx context.Context, req JoinWaitlistRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
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
	if section.HasOpenSeat() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "section has open seats; enroll instead")
	}
	active, err := s.enrollments.HasActiveInCourse(ctx, student.ID, section.CourseID, section.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if active {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled or waitlisted in this course")
	}

	entry, _, err := s.Enqueue(ctx, student, section)
	return entry, err
}

// Enqueue appends the student to the section queue and records the
// paired WAITLISTED enrollment row. Callers have already verified the
// student may register.
func (s *WaitlistService) Enqueue(ctx context.Context, student *models.Student, section *models.SectionDetail) (*models.WaitlistEntry, *models.Enrollment, error) {
	if _, err := s.repo.FindWaiting(ctx, student.ID, section.ID); err == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "student already on this waitlist")
	} else if err != sql.ErrNoRows {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check waitlist")
	}
	if s.maxPerSection > 0 {
		waiting, err := s.repo.CountWaiting(ctx, section.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to size waitlist")
		}
		if waiting >= s.maxPerSection {
			return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "waitlist is full")
		}
	}

	entry := &models.WaitlistEntry{
		SectionID: section.ID,
		StudentID: student.ID,
		Priority:  s.priorityFor(ctx, student, section.CourseID),
	}
	if err := s.repo.Join(ctx, entry); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join waitlist")
	}

	enrollment := &models.Enrollment{
		StudentID: student.ID,
		SectionID: section.ID,
		Status:    models.EnrollmentStatusWaitlisted,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if cancelErr := s.repo.UpdateStatus(ctx, entry.ID, models.WaitlistStatusWaiting, models.WaitlistStatusCancelled); cancelErr != nil {
			s.logger.Error("cancel orphaned waitlist entry", zap.String("entry_id", entry.ID), zap.Error(cancelErr))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record waitlisted enrollment")
	}
	return entry, enrollment, nil
}

// priorityFor assigns the queue band from the student's record: a mostly
// complete degree audit wins the graduating band, a course required by
// the student's active degree plan wins the major band.
func (s *WaitlistService) priorityFor(ctx context.Context, student *models.Student, courseID string) int {
	if audit, err := s.audits.FindLatest(ctx, student.ID); err == nil {
		if audit.CompletionPercentage >= graduatingCompletionPct {
			return models.WaitlistPriorityGraduating
		}
	}
	tpl, err := s.templates.FindActive(ctx, student.DegreeCode, time.Now().UTC())
	if err != nil {
		return models.WaitlistPriorityStandard
	}
	required, err := s.templates.ReferencedCourseIDs(ctx, tpl.ID)
	if err != nil {
		s.logger.Warn("load degree plan courses failed", zap.String("template_id", tpl.ID), zap.Error(err))
		return models.WaitlistPriorityStandard
	}
	for _, id := range required {
		if id == courseID {
			return models.WaitlistPriorityMajor
		}
	}
	return models.WaitlistPriorityStandard
}

// Leave cancels a queue entry by id and drops its enrollment row.
func (s *WaitlistService) Leave(ctx context.Context, entryID string) error {
	entry, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	if entry.Status != models.WaitlistStatusWaiting {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "waitlist entry is not waiting")
	}
	return s.cancel(ctx, entry)
}

// Withdraw cancels the student's WAITING entry for a section, if any.
func (s *WaitlistService) Withdraw(ctx context.Context, studentID, sectionID string) error {
	entry, err := s.repo.FindWaiting(ctx, studentID, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "no waiting entry for student")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	return s.cancel(ctx, entry)
}

func (s *WaitlistService) cancel(ctx context.Context, entry *models.WaitlistEntry) error {
	if err := s.repo.UpdateStatus(ctx, entry.ID, models.WaitlistStatusWaiting, models.WaitlistStatusCancelled); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrConflict, "waitlist entry already resolved")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel waitlist entry")
	}
	enrollment, err := s.enrollments.FindActive(ctx, entry.StudentID, entry.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlisted enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWaitlisted {
		if err := s.enrollments.MarkDropped(ctx, enrollment.ID, time.Now().UTC()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop waitlisted enrollment")
		}
	}
	return nil
}

// Standing reports a queue entry together with how many students are
// served before it.
func (s *WaitlistService) Standing(ctx context.Context, entryID string) (*WaitlistStanding, error) {
	entry, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	ahead, err := s.repo.CountAhead(ctx, entry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute standing")
	}
	return &WaitlistStanding{Entry: *entry, Ahead: ahead}, nil
}

// ListSection returns a section's WAITING queue in service order.
func (s *WaitlistService) ListSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error) {
	entries, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list section waitlist")
	}
	return entries, nil
}

// ListStudent returns all queue entries for a student.
func (s *WaitlistService) ListStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error) {
	entries, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student waitlist")
	}
	return entries, nil
}

// OverridePriority moves a WAITING entry to another band's tail. The
// registrar uses it for case-by-case exceptions.
func (s *WaitlistService) OverridePriority(ctx context.Context, entryID string, priority int) (*models.WaitlistEntry, error) {
	if priority < models.WaitlistPriorityGraduating || priority > models.WaitlistPriorityStandard {
		return nil, appErrors.Clone(appErrors.ErrValidation, "priority band out of range")
	}
	if err := s.repo.Requeue(ctx, entryID, priority); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no waiting entry to reprioritize")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reprioritize entry")
	}
	entry, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	return entry, nil
}

// PromoteNext serves the queue head into an open seat: the candidate's
// enrollment flips to ENROLLED, the entry to PROMOTED, and the student
// is notified. Returns nil without error when the queue is empty or the
// seat was taken first.
func (s *WaitlistService) PromoteNext(ctx context.Context, sectionID string) (*models.WaitlistEntry, error) {
	candidate, err := s.repo.NextCandidate(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue head")
	}
	claimed, err := s.sections.ClaimSeat(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim seat")
	}
	if !claimed {
		return nil, nil
	}

	// The guarded transition keeps concurrent sweeps from double
	// promoting; the loser releases its seat claim.
	if err := s.repo.UpdateStatus(ctx, candidate.ID, models.WaitlistStatusWaiting, models.WaitlistStatusPromoted); err != nil {
		if releaseErr := s.sections.ReleaseSeat(ctx, sectionID); releaseErr != nil {
			s.logger.Error("release seat after lost promotion", zap.String("section_id", sectionID), zap.Error(releaseErr))
		}
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote entry")
	}

	enrollment, err := s.enrollments.FindActive(ctx, candidate.StudentID, sectionID)
	switch {
	case err == nil && enrollment.Status == models.EnrollmentStatusWaitlisted:
		if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentStatusEnrolled); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate enrollment")
		}
	case err == sql.ErrNoRows:
		created := &models.Enrollment{
			StudentID: candidate.StudentID,
			SectionID: sectionID,
			Status:    models.EnrollmentStatusEnrolled,
		}
		if err := s.enrollments.Create(ctx, created); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create promoted enrollment")
		}
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlisted enrollment")
	}

	now := time.Now().UTC()
	if err := s.repo.MarkNotified(ctx, candidate.ID, now); err != nil {
		s.logger.Warn("mark notified failed", zap.String("entry_id", candidate.ID), zap.Error(err))
	}
	s.metrics.RecordWaitlistPromotion()
	if err := s.cache.Invalidate(ctx, repository.StudentCachePattern(candidate.StudentID)); err != nil {
		s.logger.Warn("invalidate student cache failed", zap.String("student_id", candidate.StudentID), zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeWaitlistPromoted,
		StudentID: candidate.StudentID,
		Payload: map[string]interface{}{
			"entryId":   candidate.ID,
			"sectionId": sectionID,
		},
	}); err != nil {
		s.logger.Warn("publish promotion event failed", zap.String("student_id", candidate.StudentID), zap.Error(err))
	}
	if s.notifier != nil {
		student, serr := s.students.FindByID(ctx, candidate.StudentID)
		section, secerr := s.sections.FindDetail(ctx, sectionID)
		if serr == nil && secerr == nil {
			s.notifier.WaitlistPromoted(student, section)
		}
	}

	promoted := *candidate
	promoted.Status = models.WaitlistStatusPromoted
	promoted.NotifiedAt = &now
	return &promoted, nil
}

// Sweep promotes queue heads while seats and candidates remain, e.g.
// after a capacity increase. Returns the number promoted.
func (s *WaitlistService) Sweep(ctx context.Context, sectionID string) (int, error) {
	promoted := 0
	for {
		entry, err := s.PromoteNext(ctx, sectionID)
		if err != nil {
			return promoted, err
		}
		if entry == nil {
			return promoted, nil
		}
		promoted++
	}
}
