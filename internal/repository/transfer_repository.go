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

// TransferRepository provides database access for transfer credit
// records.
type TransferRepository struct {
	db *sqlx.DB
}

// NewTransferRepository creates a new instance of TransferRepository.
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `id, student_id, institution, external_course_code, external_title, equivalent_course_id, credit_hours, grade_label, status, decision_note, decided_by, decided_at, created_at, updated_at`

// List returns transfer credits filtered by student and status.
func (r *TransferRepository) List(ctx context.Context, studentID, status string) ([]models.TransferCredit, error) {
	baseQuery := `FROM transfer_credits WHERE 1=1`
	var conditions []string
	var args []interface{}

	if studentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC", transferColumns, baseQuery)
	var credits []models.TransferCredit
	if err := r.db.SelectContext(ctx, &credits, query, args...); err != nil {
		return nil, fmt.Errorf("list transfer credits: %w", err)
	}
	return credits, nil
}

// FindByID returns a transfer credit by identifier.
func (r *TransferRepository) FindByID(ctx context.Context, id string) (*models.TransferCredit, error) {
	query := fmt.Sprintf("SELECT %s FROM transfer_credits WHERE id = $1 LIMIT 1", transferColumns)
	var credit models.TransferCredit
	if err := r.db.GetContext(ctx, &credit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find transfer credit: %w", err)
	}
	return &credit, nil
}

// Create inserts a pending transfer credit request.
func (r *TransferRepository) Create(ctx context.Context, credit *models.TransferCredit) error {
	if credit.ID == "" {
		credit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = now
	}
	credit.UpdatedAt = now
	if credit.Status == "" {
		credit.Status = models.TransferStatusPending
	}
	const query = `INSERT INTO transfer_credits (id, student_id, institution, external_course_code, external_title, equivalent_course_id, credit_hours, grade_label, status, decision_note, decided_by, decided_at, created_at, updated_at)
        VALUES (:id, :student_id, :institution, :external_course_code, :external_title, :equivalent_course_id, :credit_hours, :grade_label, :status, :decision_note, :decided_by, :decided_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, credit); err != nil {
		return fmt.Errorf("create transfer credit: %w", err)
	}
	return nil
}

// Decide resolves a pending request. The PENDING guard makes decisions
// final; zero rows affected surfaces as sql.ErrNoRows.
func (r *TransferRepository) Decide(ctx context.Context, id, status, note, decidedBy string, equivalentCourseID *string, decidedAt time.Time) error {
	const query = `UPDATE transfer_credits SET status = $2, decision_note = $3, decided_by = $4, equivalent_course_id = $5, decided_at = $6, updated_at = $7
        WHERE id = $1 AND status = $8`
	result, err := r.db.ExecContext(ctx, query, id, status, note, decidedBy, equivalentCourseID, decidedAt, time.Now().UTC(), models.TransferStatusPending)
	if err != nil {
		return fmt.Errorf("decide transfer credit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decide transfer affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListApproved returns approved transfer credits for a student. These
// contribute credit hours to audits but never GPA.
func (r *TransferRepository) ListApproved(ctx context.Context, studentID string) ([]models.TransferCredit, error) {
	query := fmt.Sprintf("SELECT %s FROM transfer_credits WHERE student_id = $1 AND status = $2 ORDER BY created_at ASC", transferColumns)
	var credits []models.TransferCredit
	if err := r.db.SelectContext(ctx, &credits, query, studentID, models.TransferStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved transfers: %w", err)
	}
	return credits, nil
}
