package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/registrar-api/internal/models"
)

// TemplateRepository provides database access for degree requirement
// templates and their requirement trees.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new instance of TemplateRepository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `id, degree_code, name, catalog_year, total_credits, required_gpa, effective_date, expiration_date, created_at, updated_at`

// List returns templates for a degree code, newest catalog year first.
func (r *TemplateRepository) List(ctx context.Context, degreeCode string) ([]models.DegreeTemplate, error) {
	baseQuery := `FROM degree_templates WHERE 1=1`
	var args []interface{}
	if degreeCode != "" {
		baseQuery += fmt.Sprintf(" AND degree_code = $%d", len(args)+1)
		args = append(args, degreeCode)
	}
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY degree_code ASC, catalog_year DESC", templateColumns, baseQuery)
	var templates []models.DegreeTemplate
	if err := r.db.SelectContext(ctx, &templates, listQuery, args...); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// FindByID returns a template header by identifier.
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*models.DegreeTemplate, error) {
	query := fmt.Sprintf("SELECT %s FROM degree_templates WHERE id = $1 LIMIT 1", templateColumns)
	var template models.DegreeTemplate
	if err := r.db.GetContext(ctx, &template, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find template by id: %w", err)
	}
	return &template, nil
}

// FindActive returns the template in effect for a degree code at the
// given instant. Effective windows are maintained non-overlapping per
// degree code, so at most one row matches.
func (r *TemplateRepository) FindActive(ctx context.Context, degreeCode string, at time.Time) (*models.DegreeTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM degree_templates
        WHERE degree_code = $1 AND effective_date <= $2 AND (expiration_date IS NULL OR expiration_date >= $2)
        ORDER BY effective_date DESC LIMIT 1`, templateColumns)
	var template models.DegreeTemplate
	if err := r.db.GetContext(ctx, &template, query, degreeCode, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active template: %w", err)
	}
	return &template, nil
}

// FindDetail loads a template with its full requirement tree.
func (r *TemplateRepository) FindDetail(ctx context.Context, id string) (*models.TemplateDetail, error) {
	header, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const categoriesQuery = `SELECT id, template_id, name, credits_required, position FROM requirement_categories WHERE template_id = $1 ORDER BY position ASC`
	var categories []models.RequirementCategory
	if err := r.db.SelectContext(ctx, &categories, categoriesQuery, id); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	const requirementsQuery = `SELECT r.id, r.category_id, r.type, r.description, r.credits_required, r.course_ids, r.subject_codes, r.min_level, r.max_level, r.position
        FROM degree_requirements r
        JOIN requirement_categories c ON c.id = r.category_id
        WHERE c.template_id = $1
        ORDER BY r.position ASC`
	var requirements []models.DegreeRequirement
	if err := r.db.SelectContext(ctx, &requirements, requirementsQuery, id); err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}

	const alternativesQuery = `SELECT a.id, a.requirement_id, a.description, a.course_ids, a.subject_codes, a.min_level, a.max_level, a.credits_required, a.courses_required, a.min_gpa, a.position
        FROM requirement_alternatives a
        JOIN degree_requirements r ON r.id = a.requirement_id
        JOIN requirement_categories c ON c.id = r.category_id
        WHERE c.template_id = $1
        ORDER BY a.position ASC`
	var alternatives []models.RequirementAlternative
	if err := r.db.SelectContext(ctx, &alternatives, alternativesQuery, id); err != nil {
		return nil, fmt.Errorf("load alternatives: %w", err)
	}

	const sequencesQuery = `SELECT s.requirement_id, s.course_id, s.prereq_course_id, s.position
        FROM requirement_sequences s
        JOIN degree_requirements r ON r.id = s.requirement_id
        JOIN requirement_categories c ON c.id = r.category_id
        WHERE c.template_id = $1
        ORDER BY s.position ASC`
	var sequences []models.SequenceLink
	if err := r.db.SelectContext(ctx, &sequences, sequencesQuery, id); err != nil {
		return nil, fmt.Errorf("load sequences: %w", err)
	}

	alternativesByReq := make(map[string][]models.RequirementAlternative)
	for _, alt := range alternatives {
		alternativesByReq[alt.RequirementID] = append(alternativesByReq[alt.RequirementID], alt)
	}
	sequencesByReq := make(map[string][]models.SequenceLink)
	for _, link := range sequences {
		sequencesByReq[link.RequirementID] = append(sequencesByReq[link.RequirementID], link)
	}
	requirementsByCategory := make(map[string][]models.RequirementDetail)
	for _, req := range requirements {
		detail := models.RequirementDetail{
			DegreeRequirement: req,
			Alternatives:      alternativesByReq[req.ID],
			Sequence:          sequencesByReq[req.ID],
		}
		requirementsByCategory[req.CategoryID] = append(requirementsByCategory[req.CategoryID], detail)
	}

	detail := &models.TemplateDetail{DegreeTemplate: *header}
	for _, category := range categories {
		detail.Categories = append(detail.Categories, models.CategoryDetail{
			RequirementCategory: category,
			Requirements:        requirementsByCategory[category.ID],
		})
	}
	return detail, nil
}

// Create inserts a template with its full requirement tree in one
// transaction.
func (r *TemplateRepository) Create(ctx context.Context, detail *models.TemplateDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if detail.CreatedAt.IsZero() {
		detail.CreatedAt = now
	}
	detail.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create template: %w", err)
	}

	const headerInsert = `INSERT INTO degree_templates (id, degree_code, name, catalog_year, total_credits, required_gpa, effective_date, expiration_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, headerInsert, detail.ID, detail.DegreeCode, detail.Name, detail.CatalogYear, detail.TotalCredits, detail.RequiredGPA, detail.EffectiveDate, detail.ExpirationDate, detail.CreatedAt, detail.UpdatedAt); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert template: %w", err)
	}

	const categoryInsert = `INSERT INTO requirement_categories (id, template_id, name, credits_required, position) VALUES ($1, $2, $3, $4, $5)`
	const requirementInsert = `INSERT INTO degree_requirements (id, category_id, type, description, credits_required, course_ids, subject_codes, min_level, max_level, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	const alternativeInsert = `INSERT INTO requirement_alternatives (id, requirement_id, description, course_ids, subject_codes, min_level, max_level, credits_required, courses_required, min_gpa, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	const sequenceInsert = `INSERT INTO requirement_sequences (requirement_id, course_id, prereq_course_id, position) VALUES ($1, $2, $3, $4)`

	for ci := range detail.Categories {
		category := &detail.Categories[ci]
		if category.ID == "" {
			category.ID = uuid.NewString()
		}
		category.TemplateID = detail.ID
		if category.Position == 0 {
			category.Position = ci + 1
		}
		if _, err := tx.ExecContext(ctx, categoryInsert, category.ID, category.TemplateID, category.Name, category.CreditsRequired, category.Position); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert category: %w", err)
		}
		for ri := range category.Requirements {
			requirement := &category.Requirements[ri]
			if requirement.ID == "" {
				requirement.ID = uuid.NewString()
			}
			requirement.CategoryID = category.ID
			if requirement.Position == 0 {
				requirement.Position = ri + 1
			}
			if _, err := tx.ExecContext(ctx, requirementInsert, requirement.ID, requirement.CategoryID, requirement.Type, requirement.Description, requirement.CreditsRequired, requirement.CourseIDs, requirement.SubjectCodes, requirement.MinLevel, requirement.MaxLevel, requirement.Position); err != nil {
				tx.Rollback() //nolint:errcheck
				return fmt.Errorf("insert requirement: %w", err)
			}
			for ai := range requirement.Alternatives {
				alternative := &requirement.Alternatives[ai]
				if alternative.ID == "" {
					alternative.ID = uuid.NewString()
				}
				alternative.RequirementID = requirement.ID
				if alternative.Position == 0 {
					alternative.Position = ai + 1
				}
				if _, err := tx.ExecContext(ctx, alternativeInsert, alternative.ID, alternative.RequirementID, alternative.Description, alternative.CourseIDs, alternative.SubjectCodes, alternative.MinLevel, alternative.MaxLevel, alternative.CreditsRequired, alternative.CoursesRequired, alternative.MinGPA, alternative.Position); err != nil {
					tx.Rollback() //nolint:errcheck
					return fmt.Errorf("insert alternative: %w", err)
				}
			}
			for si := range requirement.Sequence {
				link := &requirement.Sequence[si]
				link.RequirementID = requirement.ID
				if link.Position == 0 {
					link.Position = si + 1
				}
				if _, err := tx.ExecContext(ctx, sequenceInsert, link.RequirementID, link.CourseID, link.PrereqCourseID, link.Position); err != nil {
					tx.Rollback() //nolint:errcheck
					return fmt.Errorf("insert sequence link: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create template: %w", err)
	}
	return nil
}

// Expire closes a template's effective window.
func (r *TemplateRepository) Expire(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE degree_templates SET expiration_date = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("expire template: %w", err)
	}
	return nil
}

// OverlapExists reports whether another template for the degree code has
// an effective window intersecting the given one.
func (r *TemplateRepository) OverlapExists(ctx context.Context, degreeCode string, from time.Time, until *time.Time, excludeID string) (bool, error) {
	conditions := []string{
		"degree_code = $1",
		"effective_date <= COALESCE($3, 'infinity'::timestamptz)",
		"COALESCE(expiration_date, 'infinity'::timestamptz) >= $2",
	}
	args := []interface{}{degreeCode, from, until}
	if excludeID != "" {
		conditions = append(conditions, fmt.Sprintf("id != $%d", len(args)+1))
		args = append(args, excludeID)
	}
	query := fmt.Sprintf("SELECT 1 FROM degree_templates WHERE %s LIMIT 1", strings.Join(conditions, " AND "))
	var one int
	if err := r.db.GetContext(ctx, &one, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("template overlap: %w", err)
	}
	return true, nil
}

// ReferencedCourseIDs returns the distinct catalog course ids referenced
// anywhere in a template's tree.
func (r *TemplateRepository) ReferencedCourseIDs(ctx context.Context, templateID string) ([]string, error) {
	const query = `SELECT DISTINCT course_id FROM (
            SELECT UNNEST(r.course_ids) AS course_id
            FROM degree_requirements r
            JOIN requirement_categories c ON c.id = r.category_id
            WHERE c.template_id = $1
        UNION
            SELECT UNNEST(a.course_ids)
            FROM requirement_alternatives a
            JOIN degree_requirements r ON r.id = a.requirement_id
            JOIN requirement_categories c ON c.id = r.category_id
            WHERE c.template_id = $1
        UNION
            SELECT s.course_id
            FROM requirement_sequences s
            JOIN degree_requirements r ON r.id = s.requirement_id
            JOIN requirement_categories c ON c.id = r.category_id
            WHERE c.template_id = $1
        ) refs WHERE course_id IS NOT NULL`
	rows, err := r.db.QueryxContext(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("referenced course ids: %w", err)
	}
	defer rows.Close()
	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan course id: %w", err)
		}
		result = append(result, id)
	}
	return result, nil
}
