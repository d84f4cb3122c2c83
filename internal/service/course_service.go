package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type courseRepository interface {
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	ListPrerequisiteLinks(ctx context.Context) ([]models.PrerequisiteLink, error)
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error)
	ReplacePrerequisites(ctx context.Context, courseID string, prereqIDs []string) error
}

// CreateCourseRequest holds payload for adding a catalog course.
type CreateCourseRequest struct {
	SubjectCode string  `json:"subject_code" validate:"required"`
	Number      int     `json:"number" validate:"required,gt=0"`
	Title       string  `json:"title" validate:"required"`
	CreditHours float64 `json:"credit_hours" validate:"required,gt=0"`
}

// UpdateCourseRequest updates mutable course fields.
type UpdateCourseRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	CreditHours float64 `json:"credit_hours" validate:"required,gt=0"`
	Active      bool    `json:"active"`
}

// ReplacePrerequisitesRequest swaps a course's prerequisite set. An
// empty list clears it.
type ReplacePrerequisitesRequest struct {
	CourseID  string   `json:"course_id" validate:"required"`
	PrereqIDs []string `json:"prereq_ids"`
}

// CourseService manages the catalog and its prerequisite graph. A
// prerequisite change that would close a cycle is rejected before it
// reaches storage, with the offending course path in the error.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog courses matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return courses, pagination, nil
}

// Detail returns a course with its direct prerequisites.
func (s *CourseService) Detail(ctx context.Context, courseID string) (*models.CourseDetail, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	prereqs, err := s.repo.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	return &models.CourseDetail{Course: *course, Prerequisites: prereqs}, nil
}

// Create adds a catalog course under an existing subject.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.SubjectCode))
	known, err := s.subjectExists(ctx, code)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject "+code+" not found")
	}

	course := &models.Course{
		SubjectCode: code,
		Number:      req.Number,
		Title:       req.Title,
		CreditHours: req.CreditHours,
		Active:      true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("course", fmt.Sprintf("%s %d", course.SubjectCode, course.Number)))
	return course, nil
}

// Update changes a course's title, credits or active flag.
func (s *CourseService) Update(ctx context.Context, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	course.Title = req.Title
	course.CreditHours = req.CreditHours
	course.Active = req.Active
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// ReplacePrerequisites swaps the prerequisite set of a course. The
// proposed graph is checked for cycles first; a rejection names the
// course path that would close the loop.
func (s *CourseService) ReplacePrerequisites(ctx context.Context, req ReplacePrerequisitesRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}

	course, err := s.repo.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	prereqIDs := dedupeIDs(req.PrereqIDs)
	for _, id := range prereqIDs {
		if id == course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course cannot require itself")
		}
	}
	if len(prereqIDs) > 0 {
		found, err := s.repo.FindByIDs(ctx, prereqIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite courses")
		}
		if len(found) != len(prereqIDs) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite course not found")
		}
	}

	links, err := s.repo.ListPrerequisiteLinks(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}
	proposed := make([]models.PrerequisiteLink, 0, len(links)+len(prereqIDs))
	for _, link := range links {
		if link.CourseID == course.ID {
			continue
		}
		proposed = append(proposed, link)
	}
	for i, id := range prereqIDs {
		proposed = append(proposed, models.PrerequisiteLink{CourseID: course.ID, PrereqCourseID: id, Position: i + 1})
	}

	if cycle := degree.BuildGraph(linksToDegree(proposed)).DetectCycle(); cycle != nil {
		return nil, appErrors.Clone(appErrors.ErrCyclicPrereq, "prerequisite change would create a cycle").
			WithDetails(s.courseCodes(ctx, cycle))
	}

	if err := s.repo.ReplacePrerequisites(ctx, course.ID, prereqIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace prerequisites")
	}

	s.logger.Info("prerequisites replaced",
		zap.String("course_id", course.ID),
		zap.Int("count", len(prereqIDs)))
	return s.Detail(ctx, course.ID)
}

// Prerequisites returns the direct prerequisite courses of a course.
func (s *CourseService) Prerequisites(ctx context.Context, courseID string) ([]models.Course, error) {
	if _, err := s.repo.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	prereqs, err := s.repo.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	return prereqs, nil
}

func (s *CourseService) subjectExists(ctx context.Context, code string) (bool, error) {
	subjects, err := s.repo.ListSubjects(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	for _, subject := range subjects {
		if subject.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// courseCodes maps course identifiers to display codes, keeping the raw
// identifier when a lookup fails.
func (s *CourseService) courseCodes(ctx context.Context, ids []string) []string {
	courses, err := s.repo.FindByIDs(ctx, dedupeIDs(ids))
	if err != nil {
		return ids
	}
	byID := make(map[string]string, len(courses))
	for _, course := range courses {
		byID[course.ID] = fmt.Sprintf("%s %d", course.SubjectCode, course.Number)
	}
	codes := make([]string, 0, len(ids))
	for _, id := range ids {
		if code, ok := byID[id]; ok {
			codes = append(codes, code)
		} else {
			codes = append(codes, id)
		}
	}
	return codes
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
