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
	"github.com/campusops/registrar-api/pkg/events"
)

type transferRepository interface {
	List(ctx context.Context, studentID, status string) ([]models.TransferCredit, error)
	FindByID(ctx context.Context, id string) (*models.TransferCredit, error)
	Create(ctx context.Context, credit *models.TransferCredit) error
	Decide(ctx context.Context, id, status, note, decidedBy string, equivalentCourseID *string, decidedAt time.Time) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// SubmitTransferRequest files external coursework for review. The
// equivalent course is optional; a credits-only transfer counts hours
// without mapping onto the local catalog.
type SubmitTransferRequest struct {
	StudentID          string  `json:"student_id" validate:"required"`
	Institution        string  `json:"institution" validate:"required"`
	ExternalCourseCode string  `json:"external_course_code" validate:"required"`
	ExternalTitle      string  `json:"external_title" validate:"required"`
	CreditHours        float64 `json:"credit_hours" validate:"required,gt=0"`
	GradeLabel         string  `json:"grade_label"`
	EquivalentCourseID string  `json:"equivalent_course_id"`
}

// DecideTransferRequest resolves a pending transfer credit.
type DecideTransferRequest struct {
	TransferID         string `json:"transfer_id" validate:"required"`
	Approve            bool   `json:"approve"`
	Note               string `json:"note"`
	DecidedBy          string `json:"decided_by" validate:"required"`
	EquivalentCourseID string `json:"equivalent_course_id"`
}

// TransferCreditService reviews external coursework. Approved credits
// join degree audit totals, so a decision invalidates the student's
// cached audit and recommendation entries.
type TransferCreditService struct {
	repo      transferRepository
	students  studentReader
	courses   courseReader
	trail     auditTrailWriter
	cache     *CacheService
	publisher *events.Publisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTransferCreditService constructs TransferCreditService.
func NewTransferCreditService(
	repo transferRepository,
	students studentReader,
	courses courseReader,
	trail auditTrailWriter,
	cache *CacheService,
	publisher *events.Publisher,
	validate *validator.Validate,
	logger *zap.Logger,
) *TransferCreditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferCreditService{
		repo:      repo,
		students:  students,
		courses:   courses,
		trail:     trail,
		cache:     cache,
		publisher: publisher,
		validator: validate,
		logger:    logger,
	}
}

// Submit files a pending transfer credit request for a student.
func (s *TransferCreditService) Submit(ctx context.Context, req SubmitTransferRequest) (*models.TransferCredit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer request")
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

	credit := &models.TransferCredit{
		StudentID:          student.ID,
		Institution:        req.Institution,
		ExternalCourseCode: req.ExternalCourseCode,
		ExternalTitle:      req.ExternalTitle,
		CreditHours:        req.CreditHours,
		GradeLabel:         req.GradeLabel,
		Status:             models.TransferStatusPending,
	}
	if req.EquivalentCourseID != "" {
		if _, err := s.resolveEquivalent(ctx, req.EquivalentCourseID); err != nil {
			return nil, err
		}
		credit.EquivalentCourseID = &req.EquivalentCourseID
	}

	if err := s.repo.Create(ctx, credit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create transfer credit")
	}

	s.logger.Info("transfer credit submitted",
		zap.String("transfer_id", credit.ID),
		zap.String("student_id", student.ID),
		zap.String("institution", credit.Institution))
	return credit, nil
}

// Decide approves or rejects a pending request. Decisions are final;
// a second decision on the same row conflicts.
func (s *TransferCreditService) Decide(ctx context.Context, req DecideTransferRequest) (*models.TransferCredit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer decision")
	}

	credit, err := s.repo.FindByID(ctx, req.TransferID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transfer credit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transfer credit")
	}
	if credit.Status != models.TransferStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "transfer credit already decided")
	}

	status := models.TransferStatusRejected
	if req.Approve {
		status = models.TransferStatusApproved
	}

	equivalent := credit.EquivalentCourseID
	if req.EquivalentCourseID != "" {
		if _, err := s.resolveEquivalent(ctx, req.EquivalentCourseID); err != nil {
			return nil, err
		}
		equivalent = &req.EquivalentCourseID
	}

	decidedAt := time.Now().UTC()
	if err := s.repo.Decide(ctx, credit.ID, status, req.Note, req.DecidedBy, equivalent, decidedAt); err != nil {
		if err == sql.ErrNoRows {
			// Lost the race against another decision.
			return nil, appErrors.Clone(appErrors.ErrConflict, "transfer credit already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide transfer credit")
	}

	if status == models.TransferStatusApproved {
		if err := s.cache.Invalidate(ctx, repository.StudentCachePattern(credit.StudentID)); err != nil {
			s.logger.Warn("invalidate student cache failed", zap.String("student_id", credit.StudentID), zap.Error(err))
		}
	}

	payload, _ := json.Marshal(map[string]string{"status": status, "note": req.Note})
	if err := s.trail.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &req.DecidedBy,
		Action:     models.AuditActionTransferDecide,
		Resource:   "transfer_credit",
		ResourceID: &credit.ID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("audit log transfer decision failed", zap.String("transfer_id", credit.ID), zap.Error(err))
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeTransferDecided,
		StudentID: credit.StudentID,
		Payload: map[string]interface{}{
			"transferId":  credit.ID,
			"status":      status,
			"creditHours": credit.CreditHours,
		},
	}); err != nil {
		s.logger.Warn("publish transfer event failed", zap.String("transfer_id", credit.ID), zap.Error(err))
	}

	decided := *credit
	decided.Status = status
	decided.DecisionNote = req.Note
	decided.DecidedBy = &req.DecidedBy
	decided.DecidedAt = &decidedAt
	decided.EquivalentCourseID = equivalent
	return &decided, nil
}

// List returns transfer credits filtered by student and status.
func (s *TransferCreditService) List(ctx context.Context, studentID, status string) ([]models.TransferCredit, error) {
	switch status {
	case "", models.TransferStatusPending, models.TransferStatusApproved, models.TransferStatusRejected:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown transfer status "+status)
	}
	credits, err := s.repo.List(ctx, studentID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transfer credits")
	}
	return credits, nil
}

func (s *TransferCreditService) resolveEquivalent(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "equivalent course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equivalent course")
	}
	return course, nil
}
