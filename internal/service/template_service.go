package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/models"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
)

type templateAdminRepository interface {
	List(ctx context.Context, degreeCode string) ([]models.DegreeTemplate, error)
	FindByID(ctx context.Context, id string) (*models.DegreeTemplate, error)
	FindDetail(ctx context.Context, id string) (*models.TemplateDetail, error)
	FindActive(ctx context.Context, degreeCode string, at time.Time) (*models.DegreeTemplate, error)
	Create(ctx context.Context, detail *models.TemplateDetail) error
	Expire(ctx context.Context, id string, at time.Time) error
	OverlapExists(ctx context.Context, degreeCode string, from time.Time, until *time.Time, excludeID string) (bool, error)
}

type courseResolver interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

// TemplateAlternativeSpec describes one option of a conditional
// requirement in a template creation payload.
type TemplateAlternativeSpec struct {
	Description     string   `json:"description" validate:"required"`
	CourseIDs       []string `json:"course_ids"`
	SubjectCodes    []string `json:"subject_codes"`
	MinLevel        int      `json:"min_level" validate:"gte=0"`
	MaxLevel        int      `json:"max_level" validate:"gte=0"`
	CreditsRequired int      `json:"credits_required" validate:"gte=0"`
	CoursesRequired int      `json:"courses_required" validate:"gte=0"`
	MinGPA          float64  `json:"min_gpa" validate:"gte=0,lte=4"`
}

// TemplateSequenceSpec is one ordered edge of a sequenced requirement.
// An empty prereq marks a chain entry point.
type TemplateSequenceSpec struct {
	CourseID       string `json:"course_id" validate:"required"`
	PrereqCourseID string `json:"prereq_course_id"`
}

// TemplateRequirementSpec describes one requirement in a template
// creation payload. Which fields matter depends on Type.
type TemplateRequirementSpec struct {
	Type            models.RequirementType `json:"type" validate:"required,oneof=SPECIFIC_COURSES COURSE_GROUP CONDITIONAL_GROUP SEQUENCED_COURSES CREDIT_HOURS"`
	Description     string                 `json:"description" validate:"required"`
	CreditsRequired int                    `json:"credits_required" validate:"gte=0"`
	CourseIDs       []string               `json:"course_ids"`
	SubjectCodes    []string               `json:"subject_codes"`
	MinLevel        int                    `json:"min_level" validate:"gte=0"`
	MaxLevel        int                    `json:"max_level" validate:"gte=0"`
	Alternatives    []TemplateAlternativeSpec `json:"alternatives" validate:"dive"`
	Sequence        []TemplateSequenceSpec    `json:"sequence" validate:"dive"`
}

// TemplateCategorySpec is a named requirement bucket in a creation
// payload.
type TemplateCategorySpec struct {
	Name            string                    `json:"name" validate:"required"`
	CreditsRequired int                       `json:"credits_required" validate:"gte=0"`
	Requirements    []TemplateRequirementSpec `json:"requirements" validate:"required,min=1,dive"`
}

// CreateTemplateRequest publishes a new versioned requirement set for a
// degree code.
type CreateTemplateRequest struct {
	DegreeCode     string                 `json:"degree_code" validate:"required"`
	Name           string                 `json:"name" validate:"required"`
	CatalogYear    int                    `json:"catalog_year" validate:"required,gt=0"`
	TotalCredits   int                    `json:"total_credits" validate:"required,gt=0"`
	RequiredGPA    float64                `json:"required_gpa" validate:"gte=0,lte=4"`
	EffectiveDate  time.Time              `json:"effective_date" validate:"required"`
	ExpirationDate *time.Time             `json:"expiration_date"`
	Categories     []TemplateCategorySpec `json:"categories" validate:"required,min=1,dive"`
}

// TemplateService manages versioned degree requirement templates.
// Templates are immutable once published; corrections ship as a new
// version with the old window closed.
type TemplateService struct {
	repo      templateAdminRepository
	courses   courseResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs TemplateService.
func NewTemplateService(repo templateAdminRepository, courses courseResolver, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns all template versions recorded for a degree code.
func (s *TemplateService) List(ctx context.Context, degreeCode string) ([]models.DegreeTemplate, error) {
	templates, err := s.repo.List(ctx, degreeCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list degree templates")
	}
	return templates, nil
}

// Get returns a template with its full requirement tree.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.TemplateDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree template")
	}
	return detail, nil
}

// Active returns the template currently in effect for a degree code.
func (s *TemplateService) Active(ctx context.Context, degreeCode string) (*models.DegreeTemplate, error) {
	tpl, err := s.repo.FindActive(ctx, degreeCode, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrTemplateInactive, "no degree template in effect for "+degreeCode)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active template")
	}
	return tpl, nil
}

// Create publishes a template version. The effective window may not
// overlap another version of the same degree code, every referenced
// course must exist, and the requirement tree must pass structural
// validation. Structural problems come back in the error details.
func (s *TemplateService) Create(ctx context.Context, req CreateTemplateRequest) (*models.TemplateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	if req.ExpirationDate != nil && !req.ExpirationDate.After(req.EffectiveDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiration date must follow effective date")
	}

	overlap, err := s.repo.OverlapExists(ctx, req.DegreeCode, req.EffectiveDate, req.ExpirationDate, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check template overlap")
	}
	if overlap {
		return nil, appErrors.Clone(appErrors.ErrConflict, "another template for this degree code covers the effective window")
	}

	detail := buildTemplateDetail(req)

	if err := s.checkReferencedCourses(ctx, detail); err != nil {
		return nil, err
	}
	if problems := degree.ValidateTemplate(templateToDegree(detail)); len(problems) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template failed structural validation").WithDetails(problems)
	}

	if err := s.repo.Create(ctx, detail); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create degree template")
	}

	s.logger.Info("degree template published",
		zap.String("template_id", detail.ID),
		zap.String("degree_code", detail.DegreeCode),
		zap.Int("catalog_year", detail.CatalogYear))
	return detail, nil
}

// Expire closes a template's effective window. Students whose catalog
// term falls inside the closed window keep auditing against it.
func (s *TemplateService) Expire(ctx context.Context, id string, at time.Time) (*models.DegreeTemplate, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "degree template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load degree template")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if !at.After(tpl.EffectiveDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiration date must follow effective date")
	}
	if tpl.ExpirationDate != nil && !tpl.ExpirationDate.After(at) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "template already expired")
	}

	if err := s.repo.Expire(ctx, id, at); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire degree template")
	}

	s.logger.Info("degree template expired",
		zap.String("template_id", id),
		zap.Time("expiration_date", at))
	expired := *tpl
	expired.ExpirationDate = &at
	return &expired, nil
}

func (s *TemplateService) checkReferencedCourses(ctx context.Context, detail *models.TemplateDetail) error {
	seen := make(map[string]struct{})
	var ids []string
	collect := func(courseIDs []string) {
		for _, id := range courseIDs {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, category := range detail.Categories {
		for _, req := range category.Requirements {
			collect(req.CourseIDs)
			for _, alt := range req.Alternatives {
				collect(alt.CourseIDs)
			}
			for _, link := range req.Sequence {
				collect([]string{link.CourseID, link.PrereqCourseID})
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	courses, err := s.courses.FindByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve referenced courses")
	}
	found := make(map[string]struct{}, len(courses))
	for _, c := range courses {
		found[c.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "template references unknown courses").WithDetails(missing)
	}
	return nil
}

func buildTemplateDetail(req CreateTemplateRequest) *models.TemplateDetail {
	detail := &models.TemplateDetail{
		DegreeTemplate: models.DegreeTemplate{
			DegreeCode:     req.DegreeCode,
			Name:           req.Name,
			CatalogYear:    req.CatalogYear,
			TotalCredits:   req.TotalCredits,
			RequiredGPA:    req.RequiredGPA,
			EffectiveDate:  req.EffectiveDate,
			ExpirationDate: req.ExpirationDate,
		},
	}
	for _, categorySpec := range req.Categories {
		category := models.CategoryDetail{
			RequirementCategory: models.RequirementCategory{
				Name:            categorySpec.Name,
				CreditsRequired: categorySpec.CreditsRequired,
			},
		}
		for _, reqSpec := range categorySpec.Requirements {
			requirement := models.RequirementDetail{
				DegreeRequirement: models.DegreeRequirement{
					Type:            reqSpec.Type,
					Description:     reqSpec.Description,
					CreditsRequired: reqSpec.CreditsRequired,
					CourseIDs:       reqSpec.CourseIDs,
					SubjectCodes:    reqSpec.SubjectCodes,
					MinLevel:        reqSpec.MinLevel,
					MaxLevel:        reqSpec.MaxLevel,
				},
			}
			for _, altSpec := range reqSpec.Alternatives {
				requirement.Alternatives = append(requirement.Alternatives, models.RequirementAlternative{
					Description:     altSpec.Description,
					CourseIDs:       altSpec.CourseIDs,
					SubjectCodes:    altSpec.SubjectCodes,
					MinLevel:        altSpec.MinLevel,
					MaxLevel:        altSpec.MaxLevel,
					CreditsRequired: altSpec.CreditsRequired,
					CoursesRequired: altSpec.CoursesRequired,
					MinGPA:          altSpec.MinGPA,
				})
			}
			for _, linkSpec := range reqSpec.Sequence {
				requirement.Sequence = append(requirement.Sequence, models.SequenceLink{
					CourseID:       linkSpec.CourseID,
					PrereqCourseID: linkSpec.PrereqCourseID,
				})
			}
			category.Requirements = append(category.Requirements, requirement)
		}
		detail.Categories = append(detail.Categories, category)
	}
	return detail
}
