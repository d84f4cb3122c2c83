package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/events"
)

type auditTemplateRepository interface {
	FindActive(ctx context.Context, degreeCode string, at time.Time) (*models.DegreeTemplate, error)
	FindDetail(ctx context.Context, id string) (*models.TemplateDetail, error)
}

type auditStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type completedCourseReader interface {
	ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error)
}

type approvedTransferReader interface {
	ListApproved(ctx context.Context, studentID string) ([]models.TransferCredit, error)
}

type substitutionReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CourseSubstitution, error)
}

type catalogReader interface {
	ListAll(ctx context.Context) ([]models.Course, error)
}

type auditSnapshotRepository interface {
	Upsert(ctx context.Context, audit *models.DegreeAudit) error
	FindLatest(ctx context.Context, studentID string) (*models.DegreeAudit, error)
	FindByStudentAndTemplate(ctx context.Context, studentID, templateID string) (*models.DegreeAudit, error)
	ListEligible(ctx context.Context, degreeCode string) ([]models.DegreeAudit, error)
}

type auditNotifier interface {
	AuditCompleted(student *models.Student, result *degree.AuditResult)
}

// RunAuditRequest asks for a degree audit. TemplateID pins the audit to a
// specific template version; when blank the template in effect for the
// student's degree code is used. Force bypasses the cached result.
type RunAuditRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	TemplateID string `json:"template_id"`
	Force      bool   `json:"force"`
}

// DegreeAuditService materializes student snapshots, runs the requirement
// evaluator over them and persists the outcome. Audit results are cached
// per student and template; any enrollment or grade change invalidates
// the student's cached entries.
type DegreeAuditService struct {
	templates auditTemplateRepository
	students  auditStudentReader
	history   completedCourseReader
	transfers approvedTransferReader
	subs      substitutionReader
	catalog   catalogReader
	snapshots auditSnapshotRepository
	notifier  auditNotifier
	cache     *CacheService
	publisher *events.Publisher
	metrics   *MetricsService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDegreeAuditService constructs DegreeAuditService.
func NewDegreeAuditService(
	templates auditTemplateRepository,
	students auditStudentReader,
	history completedCourseReader,
	transfers approvedTransferReader,
	subs substitutionReader,
	catalog catalogReader,
	snapshots auditSnapshotRepository,
	notifier auditNotifier,
	cache *CacheService,
	publisher *events.Publisher,
	metrics *MetricsService,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *DegreeAuditService {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DegreeAuditService{
		templates: templates,
		students:  students,
		history:   history,
		transfers: transfers,
		subs:      subs,
		catalog:   catalog,
		snapshots: snapshots,
		notifier:  notifier,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// Run evaluates the student against a degree template and stores the
// snapshot. A missing student or template is a hard failure; an audit is
// never silently satisfied. The bool reports whether a cached result
// was served instead of a fresh evaluation.
func (s *DegreeAuditService) Run(ctx context.Context, req RunAuditRequest) (*degree.AuditResult, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit request")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	now := time.Now().UTC()
	detail, err := s.resolveTemplate(ctx, student, req.TemplateID, now)
	if err != nil {
		return nil, false, err
	}

	cacheKey := repository.AuditCacheKey(student.ID, detail.ID)
	if !req.Force {
		var cached degree.AuditResult
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	start := time.Now()
	input, err := s.materialize(ctx, student, detail, now)
	if err != nil {
		return nil, false, err
	}
	result := degree.RunAudit(input)
	s.metrics.ObserveAuditRun(time.Since(start))

	if err := s.persist(ctx, &result); err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
		s.logger.Warn("cache audit result failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeAuditCompleted,
		StudentID: student.ID,
		Payload: map[string]interface{}{
			"templateId":           result.TemplateID,
			"degreeCode":           result.DegreeCode,
			"completionPercentage": result.CompletionPercentage,
			"eligible":             result.EligibleForGraduation,
		},
	}); err != nil {
		s.logger.Warn("publish audit event failed", zap.String("student_id", student.ID), zap.Error(err))
	}
	if s.notifier != nil {
		s.notifier.AuditCompleted(student, &result)
	}

	return &result, false, nil
}

// resolveTemplate loads the requested template tree, falling back to the
// template in effect for the student's degree code.
func (s *DegreeAuditService) resolveTemplate(ctx context.Context, student *models.Student, templateID string, now time.Time) (*models.TemplateDetail, error) {
	if templateID == "" {
		tpl, err := s.templates.FindActive(ctx, student.DegreeCode, now)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrTemplateInactive, "no degree template in effect for "+student.DegreeCode)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve degree template")
		}
		templateID = tpl.ID
	}
	detail, err := s.templates.FindDetail(ctx, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree template")
	}
	return detail, nil
}

// materialize loads everything the evaluator needs in one snapshot. The
// GPA covers the full graded history while the matching set holds only
// credit-earning completions.
func (s *DegreeAuditService) materialize(ctx context.Context, student *models.Student, detail *models.TemplateDetail, now time.Time) (degree.AuditInput, error) {
	graded, err := s.history.ListCompleted(ctx, student.ID)
	if err != nil {
		return degree.AuditInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	transfers, err := s.transfers.ListApproved(ctx, student.ID)
	if err != nil {
		return degree.AuditInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transfer credits")
	}
	subs, err := s.subs.ListByStudent(ctx, student.ID)
	if err != nil {
		return degree.AuditInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitutions")
	}
	courses, err := s.catalog.ListAll(ctx)
	if err != nil {
		return degree.AuditInput{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course catalog")
	}

	full := completedToDegree(graded)
	passing := make([]degree.CompletedCourse, 0, len(full))
	for _, cc := range full {
		if degree.IsPassing(cc.Grade) {
			passing = append(passing, cc)
		}
	}

	var transferCredits float64
	for _, tc := range transfers {
		transferCredits += tc.CreditHours
	}

	return degree.AuditInput{
		StudentID:       student.ID,
		Completed:       passing,
		TransferCredits: transferCredits,
		CurrentGPA:      degree.GPA(full),
		Template:        templateToDegree(detail),
		Substitutions:   substitutionsToDegree(subs),
		Catalog:         catalogToDegree(courses),
		Now:             now,
	}, nil
}

func (s *DegreeAuditService) persist(ctx context.Context, result *degree.AuditResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode audit result")
	}
	snapshot := &models.DegreeAudit{
		StudentID:             result.StudentID,
		TemplateID:            result.TemplateID,
		DegreeCode:            result.DegreeCode,
		Result:                payload,
		TotalCreditsCompleted: result.TotalCreditsCompleted,
		CompletionPercentage:  result.CompletionPercentage,
		Eligible:              result.EligibleForGraduation,
		GeneratedAt:           result.GeneratedAt,
	}
	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store audit snapshot")
	}
	return nil
}

// Latest returns the most recent stored snapshot for the student.
func (s *DegreeAuditService) Latest(ctx context.Context, studentID string) (*models.DegreeAudit, error) {
	snapshot, err := s.snapshots.FindLatest(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no audit on file for student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit snapshot")
	}
	return snapshot, nil
}

// Stored returns the persisted snapshot for a student and template pair.
func (s *DegreeAuditService) Stored(ctx context.Context, studentID, templateID string) (*models.DegreeAudit, error) {
	snapshot, err := s.snapshots.FindByStudentAndTemplate(ctx, studentID, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "audit snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit snapshot")
	}
	return snapshot, nil
}

// EligibleGraduates lists students whose latest audit marked them
// eligible under the degree code.
func (s *DegreeAuditService) EligibleGraduates(ctx context.Context, degreeCode string) ([]models.DegreeAudit, error) {
	audits, err := s.snapshots.ListEligible(ctx, degreeCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list eligible students")
	}
	return audits, nil
}

// ValidateTemplate reports structural problems in a stored template,
// e.g. unknown variant tags or empty conditional groups. Registrar
// tooling runs it before a template goes live.
func (s *DegreeAuditService) ValidateTemplate(ctx context.Context, templateID string) ([]string, error) {
	detail, err := s.templates.FindDetail(ctx, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree template")
	}
	return degree.ValidateTemplate(templateToDegree(detail)), nil
}
