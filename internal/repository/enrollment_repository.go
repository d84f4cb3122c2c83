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

// EnrollmentRepository provides database access for enrollments and the
// completed coursework that feeds transcripts and degree audits.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a new instance of EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentDetailColumns = `e.id, e.student_id, e.section_id, e.status, e.grade, e.graded_by, e.graded_at, e.enrolled_at, e.dropped_at,
        s.full_name AS student_name, s.student_number,
        c.subject_code, c.number AS course_number, c.title AS course_title, c.credit_hours,
        cs.term_id, t.code AS term_code`

const enrollmentDetailJoins = `FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        JOIN terms t ON t.id = cs.term_id`

// List returns enrollments matching the filter with a total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	baseQuery := enrollmentDetailJoins + ` WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"enrolled_at": "e.enrolled_at",
		"student":     "s.full_name",
		"course":      "c.subject_code",
		"status":      "e.status",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "e.enrolled_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentDetailColumns, baseQuery, sortColumn, sortOrder, pageSize, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}

	return enrollments, total, nil
}

// FindByID returns an enrollment by identifier.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, grade, graded_by, graded_at, enrolled_at, dropped_at FROM enrollments WHERE id = $1 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment by id: %w", err)
	}
	return &enrollment, nil
}

// FindActive returns the student's non-dropped enrollment in a section,
// if any. Used to reject duplicate registration.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, grade, graded_by, graded_at, enrolled_at, dropped_at
        FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status != $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID, models.EnrollmentStatusDropped); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// HasActiveInCourse reports whether the student already holds a live
// enrollment in any section of the course for the term.
func (r *EnrollmentRepository) HasActiveInCourse(ctx context.Context, studentID, courseID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        WHERE e.student_id = $1 AND cs.course_id = $2 AND cs.term_id = $3 AND e.status IN ($4, $5)
        LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, studentID, courseID, termID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("active in course: %w", err)
	}
	return true, nil
}

// Create inserts an enrollment row.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, grade, graded_by, graded_at, enrolled_at, dropped_at)
        VALUES (:id, :student_id, :section_id, :status, :grade, :graded_by, :graded_at, :enrolled_at, :dropped_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus transitions an enrollment to the given status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// MarkDropped transitions an enrollment to DROPPED with a timestamp.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, id string, droppedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, dropped_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, droppedAt); err != nil {
		return fmt.Errorf("mark enrollment dropped: %w", err)
	}
	return nil
}

// FinalizeGrade records a final grade and completes the enrollment. The
// guard on grade IS NULL makes finalized grades immutable; zero rows
// affected surfaces as sql.ErrNoRows for the service to map.
func (r *EnrollmentRepository) FinalizeGrade(ctx context.Context, id, grade, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, grade = $3, graded_by = $4, graded_at = $5
        WHERE id = $1 AND status = $6 AND grade IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCompleted, grade, gradedBy, gradedAt, models.EnrollmentStatusEnrolled)
	if err != nil {
		return fmt.Errorf("finalize grade: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize grade affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCompleted returns the student's completed coursework ordered by
// term then course. It is the single source feeding transcripts and
// degree audit evaluation.
func (r *EnrollmentRepository) ListCompleted(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	const query = `SELECT e.student_id, c.id AS course_id, c.subject_code, c.number, c.title, c.credit_hours, e.grade, cs.term_id, t.code AS term_code, e.graded_at AS completed_at
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        JOIN terms t ON t.id = cs.term_id
        WHERE e.student_id = $1 AND e.status = $2 AND e.grade IS NOT NULL
        ORDER BY t.start_date ASC, c.subject_code ASC, c.number ASC`
	var completed []models.CompletedCourse
	if err := r.db.SelectContext(ctx, &completed, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list completed courses: %w", err)
	}
	return completed, nil
}

// TermCreditLoad sums the credit hours of the student's live
// enrollments in the term. Drives the per-term load ceiling.
func (r *EnrollmentRepository) TermCreditLoad(ctx context.Context, studentID, termID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(c.credit_hours), 0)
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        JOIN courses c ON c.id = cs.course_id
        WHERE e.student_id = $1 AND cs.term_id = $2 AND e.status = $3`
	var load float64
	if err := r.db.GetContext(ctx, &load, query, studentID, termID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("term credit load: %w", err)
	}
	return load, nil
}

// ActiveCourseIDs returns the course identifiers of the student's live
// enrollments, waitlisted ones included. Recommendation runs skip them.
func (r *EnrollmentRepository) ActiveCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT cs.course_id
        FROM enrollments e
        JOIN course_sections cs ON cs.id = e.section_id
        WHERE e.student_id = $1 AND e.status IN ($2, $3)`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, fmt.Errorf("active course ids: %w", err)
	}
	return ids, nil
}

// SectionGrades returns the finalized grade labels for a section.
func (r *EnrollmentRepository) SectionGrades(ctx context.Context, sectionID string) ([]string, error) {
	const query = `SELECT grade FROM enrollments WHERE section_id = $1 AND status = $2 AND grade IS NOT NULL ORDER BY grade ASC`
	var grades []string
	if err := r.db.SelectContext(ctx, &grades, query, sectionID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("section grades: %w", err)
	}
	return grades, nil
}
