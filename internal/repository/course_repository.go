package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusops/registrar-api/internal/models"
)

// CourseRepository provides database access for the course catalog and
// its prerequisite graph.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// ListSubjects returns all subject areas ordered by code.
func (r *CourseRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, code, name, created_at, updated_at FROM subjects ORDER BY code ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// CreateSubject inserts a subject area.
func (r *CourseRepository) CreateSubject(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, code, name, created_at, updated_at) VALUES (:id, :code, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// List returns catalog courses matching the filter with a total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.SubjectCode != "" {
		conditions = append(conditions, fmt.Sprintf("subject_code = $%d", len(args)+1))
		args = append(args, filter.SubjectCode)
	}
	if filter.MinLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("number >= $%d", len(args)+1))
		args = append(args, filter.MinLevel)
	}
	if filter.MaxLevel > 0 {
		conditions = append(conditions, fmt.Sprintf("number < $%d", len(args)+1))
		args = append(args, filter.MaxLevel+100)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "subject_code"
	}
	allowedSorts := map[string]bool{
		"subject_code": true,
		"number":       true,
		"title":        true,
		"credit_hours": true,
		"created_at":   true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "subject_code"
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

	listQuery := fmt.Sprintf("SELECT id, subject_code, number, title, credit_hours, active, created_at, updated_at %s ORDER BY %s %s, number ASC LIMIT %d OFFSET %d", baseQuery, sortBy, sortOrder, pageSize, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// ListAll returns the complete active catalog. Degree audits and
// recommendation runs resolve requirement references against it.
func (r *CourseRepository) ListAll(ctx context.Context) ([]models.Course, error) {
	const query = `SELECT id, subject_code, number, title, credit_hours, active, created_at, updated_at FROM courses WHERE active = TRUE ORDER BY subject_code ASC, number ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, subject_code, number, title, credit_hours, active, created_at, updated_at FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// FindByIDs returns the courses for the given identifiers.
func (r *CourseRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, subject_code, number, title, credit_hours, active, created_at, updated_at FROM courses WHERE id = ANY($1) ORDER BY subject_code ASC, number ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find courses by ids: %w", err)
	}
	return courses, nil
}

// Create inserts a catalog course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, subject_code, number, title, credit_hours, active, created_at, updated_at)
        VALUES (:id, :subject_code, :number, :title, :credit_hours, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update updates mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, credit_hours = :credit_hours, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// ListPrerequisiteLinks returns every prerequisite edge in the catalog.
func (r *CourseRepository) ListPrerequisiteLinks(ctx context.Context) ([]models.PrerequisiteLink, error) {
	const query = `SELECT id, course_id, prereq_course_id, position, created_at FROM course_prerequisites ORDER BY course_id ASC, position ASC`
	var links []models.PrerequisiteLink
	if err := r.db.SelectContext(ctx, &links, query); err != nil {
		return nil, fmt.Errorf("list prerequisite links: %w", err)
	}
	return links, nil
}

// ListPrerequisites returns the direct prerequisite courses of a course.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.subject_code, c.number, c.title, c.credit_hours, c.active, c.created_at, c.updated_at
        FROM course_prerequisites p
        JOIN courses c ON c.id = p.prereq_course_id
        WHERE p.course_id = $1
        ORDER BY p.position ASC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return courses, nil
}

// ReplacePrerequisites swaps the prerequisite set of a course inside a
// transaction. Callers validate the resulting graph before committing a
// change that could introduce a cycle.
func (r *CourseRepository) ReplacePrerequisites(ctx context.Context, courseID string, prereqIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace prerequisites: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_prerequisites WHERE course_id = $1`, courseID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear prerequisites: %w", err)
	}
	const insert = `INSERT INTO course_prerequisites (id, course_id, prereq_course_id, position, created_at) VALUES ($1, $2, $3, $4, $5)`
	now := time.Now().UTC()
	for i, prereqID := range prereqIDs {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), courseID, prereqID, i+1, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert prerequisite: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prerequisites: %w", err)
	}
	return nil
}
