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

// SectionRepository provides database access for course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository creates a new instance of SectionRepository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections matching the filter with a total count.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	baseQuery := `FROM course_sections cs
        JOIN courses c ON c.id = cs.course_id
        LEFT JOIN faculty f ON f.id = cs.faculty_id
        WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "cs.enrolled < cs.capacity")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"section":    "cs.section",
		"capacity":   "cs.capacity",
		"enrolled":   "cs.enrolled",
		"course":     "c.subject_code",
		"created_at": "cs.created_at",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "c.subject_code"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT cs.id, cs.course_id, cs.term_id, cs.faculty_id, cs.section, cs.capacity, cs.enrolled, cs.created_at, cs.updated_at,
        c.subject_code, c.number AS course_number, c.title AS course_title, c.credit_hours, f.full_name AS faculty_name
        %s ORDER BY %s %s, c.number ASC LIMIT %d OFFSET %d`, baseQuery, sortColumn, sortOrder, pageSize, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}

	return sections, total, nil
}

// FindByID returns a section by identifier.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	const query = `SELECT id, course_id, term_id, faculty_id, section, capacity, enrolled, created_at, updated_at FROM course_sections WHERE id = $1 LIMIT 1`
	var section models.CourseSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find section by id: %w", err)
	}
	return &section, nil
}

// FindDetail returns a section with course and instructor context.
func (r *SectionRepository) FindDetail(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT cs.id, cs.course_id, cs.term_id, cs.faculty_id, cs.section, cs.capacity, cs.enrolled, cs.created_at, cs.updated_at,
        c.subject_code, c.number AS course_number, c.title AS course_title, c.credit_hours, f.full_name AS faculty_name
        FROM course_sections cs
        JOIN courses c ON c.id = cs.course_id
        LEFT JOIN faculty f ON f.id = cs.faculty_id
        WHERE cs.id = $1 LIMIT 1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find section detail: %w", err)
	}
	return &detail, nil
}

// Create inserts a section.
func (r *SectionRepository) Create(ctx context.Context, section *models.CourseSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now

	const query = `INSERT INTO course_sections (id, course_id, term_id, faculty_id, section, capacity, enrolled, created_at, updated_at)
        VALUES (:id, :course_id, :term_id, :faculty_id, :section, :capacity, :enrolled, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update updates mutable section fields. Capacity may not drop below the
// current enrolled count.
func (r *SectionRepository) Update(ctx context.Context, section *models.CourseSection) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_sections SET faculty_id = :faculty_id, section = :section, capacity = :capacity, updated_at = :updated_at WHERE id = :id AND capacity >= enrolled`
	result, err := r.db.NamedExecContext(ctx, query, section)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update section affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClaimSeat increments the enrolled count only while a seat remains.
// Returns false when the section is already full, so concurrent
// enrollments cannot oversubscribe capacity.
func (r *SectionRepository) ClaimSeat(ctx context.Context, sectionID string) (bool, error) {
	const query = `UPDATE course_sections SET enrolled = enrolled + 1, updated_at = $2 WHERE id = $1 AND enrolled < capacity`
	result, err := r.db.ExecContext(ctx, query, sectionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim seat affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseSeat decrements the enrolled count, clamping at zero.
func (r *SectionRepository) ReleaseSeat(ctx context.Context, sectionID string) error {
	const query = `UPDATE course_sections SET enrolled = GREATEST(enrolled - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, sectionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}
