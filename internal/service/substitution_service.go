package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type substitutionStore interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CourseSubstitution, error)
	FindByID(ctx context.Context, id string) (*models.CourseSubstitution, error)
	Create(ctx context.Context, sub *models.CourseSubstitution) error
	Expire(ctx context.Context, id string, at time.Time) error
}

// CreateSubstitutionRequest records an approved course substitution for
// one student. A zero effective date means effective immediately.
type CreateSubstitutionRequest struct {
	StudentID          string     `json:"student_id" validate:"required"`
	OriginalCourseID   string     `json:"original_course_id" validate:"required"`
	SubstituteCourseID string     `json:"substitute_course_id" validate:"required"`
	Reason             string     `json:"reason" validate:"max=500"`
	ApprovedBy         string     `json:"approved_by" validate:"required"`
	EffectiveDate      time.Time  `json:"effective_date"`
	ExpirationDate     *time.Time `json:"expiration_date"`
}

// ExpireSubstitutionRequest closes a substitution's validity window.
type ExpireSubstitutionRequest struct {
	SubstitutionID string    `json:"substitution_id" validate:"required"`
	ExpiredBy      string    `json:"expired_by" validate:"required"`
	At             time.Time `json:"at"`
}

// SubstitutionService manages per-student course substitutions. These
// rewrite how completed work counts during audits, so every change
// lands in the audit trail and clears the student's cached results.
type SubstitutionService struct {
	repo      substitutionStore
	students  studentReader
	courses   courseReader
	trail     auditTrailWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubstitutionService constructs SubstitutionService.
func NewSubstitutionService(
	repo substitutionStore,
	students studentReader,
	courses courseReader,
	trail auditTrailWriter,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubstitutionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstitutionService{
		repo:      repo,
		students:  students,
		courses:   courses,
		trail:     trail,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns all substitutions recorded for a student, expired ones
// included.
func (s *SubstitutionService) List(ctx context.Context, studentID string) ([]models.CourseSubstitution, error) {
	subs, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list substitutions")
	}
	return subs, nil
}

// Create records an approved substitution.
func (s *SubstitutionService) Create(ctx context.Context, req CreateSubstitutionRequest) (*models.CourseSubstitution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitution payload")
	}
	if req.OriginalCourseID == req.SubstituteCourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "substitute course must differ from the original")
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
	if err := s.checkCourse(ctx, req.OriginalCourseID, "original course not found"); err != nil {
		return nil, err
	}
	if err := s.checkCourse(ctx, req.SubstituteCourseID, "substitute course not found"); err != nil {
		return nil, err
	}

	effective := req.EffectiveDate
	if effective.IsZero() {
		effective = time.Now().UTC()
	}
	if req.ExpirationDate != nil && !req.ExpirationDate.After(effective) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiration date must follow effective date")
	}

	sub := &models.CourseSubstitution{
		StudentID:          req.StudentID,
		OriginalCourseID:   req.OriginalCourseID,
		SubstituteCourseID: req.SubstituteCourseID,
		Reason:             req.Reason,
		ApprovedBy:         req.ApprovedBy,
		EffectiveDate:      effective,
		ExpirationDate:     req.ExpirationDate,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create substitution")
	}

	s.afterChange(ctx, sub, req.ApprovedBy, map[string]string{
		"original_course_id":   sub.OriginalCourseID,
		"substitute_course_id": sub.SubstituteCourseID,
		"reason":               sub.Reason,
	})

	s.logger.Info("substitution recorded",
		zap.String("substitution_id", sub.ID),
		zap.String("student_id", sub.StudentID),
		zap.String("original_course_id", sub.OriginalCourseID),
		zap.String("substitute_course_id", sub.SubstituteCourseID))
	return sub, nil
}

// Expire closes a substitution's validity window. Audits as of earlier
// instants keep honoring it.
func (s *SubstitutionService) Expire(ctx context.Context, req ExpireSubstitutionRequest) (*models.CourseSubstitution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitution payload")
	}

	sub, err := s.repo.FindByID(ctx, req.SubstitutionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "substitution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution")
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if !at.After(sub.EffectiveDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiration date must follow effective date")
	}
	if sub.ExpirationDate != nil && !sub.ExpirationDate.After(at) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "substitution already expired")
	}

	if err := s.repo.Expire(ctx, sub.ID, at); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire substitution")
	}

	expired := *sub
	expired.ExpirationDate = &at
	s.afterChange(ctx, &expired, req.ExpiredBy, map[string]string{
		"expiration_date": at.Format(time.RFC3339),
	})

	s.logger.Info("substitution expired",
		zap.String("substitution_id", sub.ID),
		zap.String("student_id", sub.StudentID),
		zap.Time("expiration_date", at))
	return &expired, nil
}

func (s *SubstitutionService) checkCourse(ctx context.Context, courseID, missingMsg string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, missingMsg)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *SubstitutionService) afterChange(ctx context.Context, sub *models.CourseSubstitution, actor string, values map[string]string) {
	if err := s.cache.Invalidate(ctx, repository.StudentCachePattern(sub.StudentID)); err != nil {
		s.logger.Warn("invalidate student cache failed", zap.String("student_id", sub.StudentID), zap.Error(err))
	}
	payload, _ := json.Marshal(values)
	if err := s.trail.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionSubstitution,
		Resource:   "course_substitution",
		ResourceID: &sub.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("audit log substitution failed", zap.String("substitution_id", sub.ID), zap.Error(err))
	}
}
