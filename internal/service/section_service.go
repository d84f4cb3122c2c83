package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type sectionAdminRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
	FindDetail(ctx context.Context, id string) (*models.SectionDetail, error)
	Create(ctx context.Context, section *models.CourseSection) error
	Update(ctx context.Context, section *models.CourseSection) error
}

// waitlistSweeper promotes queued students after seats open up. A nil
// sweeper means capacity increases leave the queue untouched until the
// next explicit promotion.
type waitlistSweeper interface {
	Sweep(ctx context.Context, sectionID string) (int, error)
}

// CreateSectionRequest describes a new scheduled offering.
type CreateSectionRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	TermID    string `json:"term_id" validate:"required"`
	Section   string `json:"section" validate:"required,max=10"`
	Capacity  int    `json:"capacity" validate:"required,gt=0"`
	FacultyID string `json:"faculty_id"`
}

// UpdateSectionRequest changes capacity or instructor. FacultyID nil
// leaves the instructor unchanged; an empty string clears it.
type UpdateSectionRequest struct {
	SectionID string  `json:"section_id" validate:"required"`
	Capacity  int     `json:"capacity" validate:"required,gt=0"`
	FacultyID *string `json:"faculty_id"`
}

// SectionService manages scheduled course offerings.
type SectionService struct {
	repo      sectionAdminRepository
	courses   courseReader
	terms     termReader
	faculty   facultyReader
	sweeper   waitlistSweeper
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs SectionService.
func NewSectionService(
	repo sectionAdminRepository,
	courses courseReader,
	terms termReader,
	faculty facultyReader,
	sweeper waitlistSweeper,
	validate *validator.Validate,
	logger *zap.Logger,
) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{
		repo:      repo,
		courses:   courses,
		terms:     terms,
		faculty:   faculty,
		sweeper:   sweeper,
		validator: validate,
		logger:    logger,
	}
}

// List returns sections matching the filter with course context.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return sections, pagination, nil
}

// Get returns a section with course and instructor context.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// Create schedules a section of a course in a term.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is retired from the catalog")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	section := &models.CourseSection{
		CourseID: req.CourseID,
		TermID:   req.TermID,
		Section:  strings.TrimSpace(req.Section),
		Capacity: req.Capacity,
	}
	if req.FacultyID != "" {
		if err := s.checkInstructor(ctx, req.FacultyID); err != nil {
			return nil, err
		}
		section.FacultyID = &req.FacultyID
	}

	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}

	s.logger.Info("section scheduled",
		zap.String("section_id", section.ID),
		zap.String("course_id", section.CourseID),
		zap.String("term_id", section.TermID),
		zap.Int("capacity", section.Capacity))
	return section, nil
}

// Update changes a section's capacity or instructor. Raising capacity
// sweeps the waitlist so freed seats go to queued students at once.
func (s *SectionService) Update(ctx context.Context, req UpdateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.repo.FindByID(ctx, req.SectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if req.Capacity < section.Enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity cannot drop below current enrollment")
	}

	previousCapacity := section.Capacity
	section.Capacity = req.Capacity
	if req.FacultyID != nil {
		if *req.FacultyID == "" {
			section.FacultyID = nil
		} else {
			if err := s.checkInstructor(ctx, *req.FacultyID); err != nil {
				return nil, err
			}
			section.FacultyID = req.FacultyID
		}
	}

	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}

	if section.Capacity > previousCapacity && s.sweeper != nil {
		promoted, err := s.sweeper.Sweep(ctx, section.ID)
		if err != nil {
			s.logger.Warn("waitlist sweep after capacity increase failed",
				zap.String("section_id", section.ID), zap.Error(err))
		} else if promoted > 0 {
			s.logger.Info("waitlist served from new capacity",
				zap.String("section_id", section.ID), zap.Int("promoted", promoted))
		}
	}
	return section, nil
}

func (s *SectionService) checkInstructor(ctx context.Context, facultyID string) error {
	member, err := s.faculty.FindByID(ctx, facultyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty member not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty member")
	}
	if !member.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "faculty member is inactive")
	}
	return nil
}
