package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByNumber(ctx context.Context, number string) (*models.Student, error)
	FindDetail(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	AssignAdvisor(ctx context.Context, studentID, advisorID string) error
}

type facultyReader interface {
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

// CreateStudentRequest holds payload for admitting a student.
type CreateStudentRequest struct {
	StudentNumber string `json:"student_number" validate:"required"`
	FullName      string `json:"full_name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	DegreeCode    string `json:"degree_code" validate:"required"`
	CatalogYear   int    `json:"catalog_year" validate:"required,gt=0"`
	AdmitTermID   string `json:"admit_term_id"`
}

// UpdateStudentRequest updates mutable student fields.
type UpdateStudentRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	DegreeCode  string `json:"degree_code" validate:"required"`
	CatalogYear int    `json:"catalog_year" validate:"required,gt=0"`
	Active      bool   `json:"active"`
}

// StudentService manages student records. Deactivation retains the
// academic history; rows are never removed.
type StudentService struct {
	repo      studentRepository
	faculty   facultyReader
	terms     termReader
	history   completedCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(
	repo studentRepository,
	faculty facultyReader,
	terms termReader,
	history completedCourseReader,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		faculty:   faculty,
		terms:     terms,
		history:   history,
		validator: validate,
		logger:    logger,
	}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by identifier.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByNumber returns a student by institutional student number.
func (s *StudentService) GetByNumber(ctx context.Context, number string) (*models.Student, error) {
	student, err := s.repo.FindByNumber(ctx, number)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Detail returns the student with advisor context and academic
// standing. The GPA covers the full graded history while completed
// credits count only credit-earning grades.
func (s *StudentService) Detail(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	graded, err := s.history.ListCompleted(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	full := completedToDegree(graded)
	for _, cc := range full {
		if degree.IsPassing(cc.Grade) {
			detail.CompletedCredits += cc.CreditHours
		}
	}
	detail.CurrentGPA = round2(degree.GPA(full))
	return detail, nil
}

// Create admits a student. Student numbers are unique.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	if _, err := s.repo.FindByNumber(ctx, req.StudentNumber); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student number already exists")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student number")
	}

	student := &models.Student{
		StudentNumber: req.StudentNumber,
		FullName:      req.FullName,
		Email:         req.Email,
		DegreeCode:    req.DegreeCode,
		CatalogYear:   req.CatalogYear,
		Active:        true,
	}
	if req.AdmitTermID != "" {
		if _, err := s.terms.FindByID(ctx, req.AdmitTermID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "admit term not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admit term")
		}
		student.AdmitTermID = &req.AdmitTermID
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student admitted",
		zap.String("student_id", student.ID),
		zap.String("student_number", student.StudentNumber),
		zap.String("degree_code", student.DegreeCode))
	return student, nil
}

// Update changes a student's profile fields.
func (s *StudentService) Update(ctx context.Context, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	student.FullName = req.FullName
	student.Email = req.Email
	student.DegreeCode = req.DegreeCode
	student.CatalogYear = req.CatalogYear
	student.Active = req.Active
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Deactivate retires a student record without touching history.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !student.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "student already inactive")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

// AssignAdvisor sets or replaces the student's faculty advisor.
func (s *StudentService) AssignAdvisor(ctx context.Context, studentID, advisorID string) error {
	if _, err := s.Get(ctx, studentID); err != nil {
		return err
	}
	advisor, err := s.faculty.FindByID(ctx, advisorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "advisor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advisor")
	}
	if !advisor.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "advisor inactive")
	}
	if err := s.repo.AssignAdvisor(ctx, studentID, advisorID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign advisor")
	}
	s.logger.Info("advisor assigned", zap.String("student_id", studentID), zap.String("advisor_id", advisorID))
	return nil
}
