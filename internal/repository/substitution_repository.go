package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/registrar-api/internal/models"
)

// SubstitutionRepository provides database access for approved course
// substitutions.
type SubstitutionRepository struct {
	db *sqlx.DB
}

// NewSubstitutionRepository creates a new instance of SubstitutionRepository.
func NewSubstitutionRepository(db *sqlx.DB) *SubstitutionRepository {
	return &SubstitutionRepository{db: db}
}

// ListByStudent returns all substitutions recorded for a student.
func (r *SubstitutionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CourseSubstitution, error) {
	const query = `SELECT id, student_id, original_course_id, substitute_course_id, reason, approved_by, effective_date, expiration_date, created_at
        FROM course_substitutions WHERE student_id = $1 ORDER BY created_at DESC`
	var subs []models.CourseSubstitution
	if err := r.db.SelectContext(ctx, &subs, query, studentID); err != nil {
		return nil, fmt.Errorf("list substitutions: %w", err)
	}
	return subs, nil
}

// FindByID returns a substitution by identifier.
func (r *SubstitutionRepository) FindByID(ctx context.Context, id string) (*models.CourseSubstitution, error) {
	const query = `SELECT id, student_id, original_course_id, substitute_course_id, reason, approved_by, effective_date, expiration_date, created_at
        FROM course_substitutions WHERE id = $1 LIMIT 1`
	var sub models.CourseSubstitution
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find substitution: %w", err)
	}
	return &sub, nil
}

// Create records an approved substitution.
func (r *SubstitutionRepository) Create(ctx context.Context, sub *models.CourseSubstitution) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_substitutions (id, student_id, original_course_id, substitute_course_id, reason, approved_by, effective_date, expiration_date, created_at)
        VALUES (:id, :student_id, :original_course_id, :substitute_course_id, :reason, :approved_by, :effective_date, :expiration_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create substitution: %w", err)
	}
	return nil
}

// Expire closes a substitution's validity window.
func (r *SubstitutionRepository) Expire(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE course_substitutions SET expiration_date = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("expire substitution: %w", err)
	}
	return nil
}
