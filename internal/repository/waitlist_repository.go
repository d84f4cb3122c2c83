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

// WaitlistRepository provides database access for section waitlists.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository creates a new instance of WaitlistRepository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Join appends a student to a section waitlist. Position is assigned as
// max+1 within the priority band under a transaction so concurrent
// joins never share a slot.
func (r *WaitlistRepository) Join(ctx context.Context, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.Status = models.WaitlistStatusWaiting

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist join: %w", err)
	}
	const positionQuery = `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE section_id = $1 AND priority = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &entry.Position, positionQuery, entry.SectionID, entry.Priority); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("next waitlist position: %w", err)
	}
	const insert = `INSERT INTO waitlist_entries (id, section_id, student_id, priority, position, status, notified_at, created_at, updated_at)
        VALUES (:id, :section_id, :student_id, :priority, :position, :status, :notified_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit waitlist join: %w", err)
	}
	return nil
}

// FindByID returns a waitlist entry by identifier.
func (r *WaitlistRepository) FindByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, section_id, student_id, priority, position, status, notified_at, created_at, updated_at FROM waitlist_entries WHERE id = $1 LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find waitlist entry: %w", err)
	}
	return &entry, nil
}

// FindWaiting returns the student's WAITING entry for a section, if any.
func (r *WaitlistRepository) FindWaiting(ctx context.Context, studentID, sectionID string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, section_id, student_id, priority, position, status, notified_at, created_at, updated_at
        FROM waitlist_entries WHERE student_id = $1 AND section_id = $2 AND status = $3 LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, sectionID, models.WaitlistStatusWaiting); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find waiting entry: %w", err)
	}
	return &entry, nil
}

// NextCandidate returns the queue head for a section: lowest priority
// band first, earliest position within the band.
func (r *WaitlistRepository) NextCandidate(ctx context.Context, sectionID string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, section_id, student_id, priority, position, status, notified_at, created_at, updated_at
        FROM waitlist_entries WHERE section_id = $1 AND status = $2
        ORDER BY priority ASC, position ASC LIMIT 1`
	var entry models.WaitlistEntry
	if err := r.db.GetContext(ctx, &entry, query, sectionID, models.WaitlistStatusWaiting); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("next waitlist candidate: %w", err)
	}
	return &entry, nil
}

// ListBySection returns the WAITING queue for a section in service order
// with student and section context.
func (r *WaitlistRepository) ListBySection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error) {
	const query = `SELECT w.id, w.section_id, w.student_id, w.priority, w.position, w.status, w.notified_at, w.created_at, w.updated_at,
        s.student_number, s.full_name AS student_name,
        c.subject_code || ' ' || c.number AS course_code, cs.section AS section_code, cs.term_id
        FROM waitlist_entries w
        JOIN students s ON s.id = w.student_id
        JOIN course_sections cs ON cs.id = w.section_id
        JOIN courses c ON c.id = cs.course_id
        WHERE w.section_id = $1 AND w.status = $2
        ORDER BY w.priority ASC, w.position ASC`
	var entries []models.WaitlistEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, sectionID, models.WaitlistStatusWaiting); err != nil {
		return nil, fmt.Errorf("list section waitlist: %w", err)
	}
	return entries, nil
}

// ListByStudent returns all of a student's waitlist entries.
func (r *WaitlistRepository) ListByStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error) {
	const query = `SELECT w.id, w.section_id, w.student_id, w.priority, w.position, w.status, w.notified_at, w.created_at, w.updated_at,
        s.student_number, s.full_name AS student_name,
        c.subject_code || ' ' || c.number AS course_code, cs.section AS section_code, cs.term_id
        FROM waitlist_entries w
        JOIN students s ON s.id = w.student_id
        JOIN course_sections cs ON cs.id = w.section_id
        JOIN courses c ON c.id = cs.course_id
        WHERE w.student_id = $1
        ORDER BY w.created_at DESC`
	var entries []models.WaitlistEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list student waitlist: %w", err)
	}
	return entries, nil
}

// CountWaiting returns the number of WAITING entries for a section.
// Drives the per-section queue cap.
func (r *WaitlistRepository) CountWaiting(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM waitlist_entries WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.WaitlistStatusWaiting); err != nil {
		return 0, fmt.Errorf("count waiting: %w", err)
	}
	return count, nil
}

// CountAhead returns how many WAITING entries are served before the
// given entry.
func (r *WaitlistRepository) CountAhead(ctx context.Context, entry *models.WaitlistEntry) (int, error) {
	const query = `SELECT COUNT(*) FROM waitlist_entries
        WHERE section_id = $1 AND status = $2 AND (priority < $3 OR (priority = $3 AND position < $4))`
	var count int
	if err := r.db.GetContext(ctx, &count, query, entry.SectionID, models.WaitlistStatusWaiting, entry.Priority, entry.Position); err != nil {
		return 0, fmt.Errorf("count ahead: %w", err)
	}
	return count, nil
}

// UpdateStatus transitions a waitlist entry. The guard on the current
// status keeps promotions idempotent under concurrent sweeps.
func (r *WaitlistRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	const query = `UPDATE waitlist_entries SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update waitlist status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update waitlist status affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Requeue moves a WAITING entry into a new priority band at the band's
// tail. The position is assigned under the same lock Join uses.
func (r *WaitlistRepository) Requeue(ctx context.Context, id string, priority int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin waitlist requeue: %w", err)
	}
	var entry models.WaitlistEntry
	const load = `SELECT id, section_id, student_id, priority, position, status, notified_at, created_at, updated_at
        FROM waitlist_entries WHERE id = $1 AND status = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &entry, load, id, models.WaitlistStatusWaiting); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("load waitlist entry: %w", err)
	}
	var position int
	const positionQuery = `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE section_id = $1 AND priority = $2 FOR UPDATE`
	if err := tx.GetContext(ctx, &position, positionQuery, entry.SectionID, priority); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("next requeue position: %w", err)
	}
	const update = `UPDATE waitlist_entries SET priority = $2, position = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, priority, position, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("requeue waitlist entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit waitlist requeue: %w", err)
	}
	return nil
}

// MarkNotified records that the student was told a seat opened.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE waitlist_entries SET notified_at = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
