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

// DegreeAuditRepository persists degree audit snapshots.
type DegreeAuditRepository struct {
	db *sqlx.DB
}

// NewDegreeAuditRepository creates a new instance of DegreeAuditRepository.
func NewDegreeAuditRepository(db *sqlx.DB) *DegreeAuditRepository {
	return &DegreeAuditRepository{db: db}
}

// Upsert stores an audit snapshot, replacing any previous run for the
// same student and template.
func (r *DegreeAuditRepository) Upsert(ctx context.Context, audit *models.DegreeAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.GeneratedAt.IsZero() {
		audit.GeneratedAt = time.Now().UTC()
	}
	const query = `INSERT INTO degree_audits (id, student_id, template_id, degree_code, result, total_credits_completed, completion_percentage, eligible, generated_at)
        VALUES (:id, :student_id, :template_id, :degree_code, :result, :total_credits_completed, :completion_percentage, :eligible, :generated_at)
        ON CONFLICT (student_id, template_id)
        DO UPDATE SET result = EXCLUDED.result, degree_code = EXCLUDED.degree_code, total_credits_completed = EXCLUDED.total_credits_completed, completion_percentage = EXCLUDED.completion_percentage, eligible = EXCLUDED.eligible, generated_at = EXCLUDED.generated_at`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("upsert degree audit: %w", err)
	}
	return nil
}

// FindLatest returns the most recent snapshot for a student across all
// templates.
func (r *DegreeAuditRepository) FindLatest(ctx context.Context, studentID string) (*models.DegreeAudit, error) {
	const query = `SELECT id, student_id, template_id, degree_code, result, total_credits_completed, completion_percentage, eligible, generated_at
        FROM degree_audits WHERE student_id = $1 ORDER BY generated_at DESC LIMIT 1`
	var audit models.DegreeAudit
	if err := r.db.GetContext(ctx, &audit, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest audit: %w", err)
	}
	return &audit, nil
}

// FindByStudentAndTemplate returns the stored snapshot for a specific
// template run.
func (r *DegreeAuditRepository) FindByStudentAndTemplate(ctx context.Context, studentID, templateID string) (*models.DegreeAudit, error) {
	const query = `SELECT id, student_id, template_id, degree_code, result, total_credits_completed, completion_percentage, eligible, generated_at
        FROM degree_audits WHERE student_id = $1 AND template_id = $2 LIMIT 1`
	var audit models.DegreeAudit
	if err := r.db.GetContext(ctx, &audit, query, studentID, templateID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find audit snapshot: %w", err)
	}
	return &audit, nil
}

// ListEligible returns snapshots marked graduation-eligible for a degree
// code, for graduation clearing worklists.
func (r *DegreeAuditRepository) ListEligible(ctx context.Context, degreeCode string) ([]models.DegreeAudit, error) {
	const query = `SELECT id, student_id, template_id, degree_code, result, total_credits_completed, completion_percentage, eligible, generated_at
        FROM degree_audits WHERE degree_code = $1 AND eligible = TRUE ORDER BY generated_at DESC`
	var audits []models.DegreeAudit
	if err := r.db.SelectContext(ctx, &audits, query, degreeCode); err != nil {
		return nil, fmt.Errorf("list eligible audits: %w", err)
	}
	return audits, nil
}
