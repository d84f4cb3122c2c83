package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DegreeAudit is the persisted snapshot of a degree audit run. One row
// per (student, template); reruns overwrite the previous snapshot.
type DegreeAudit struct {
	ID                    string         `db:"id" json:"id"`
	StudentID             string         `db:"student_id" json:"student_id"`
	TemplateID            string         `db:"template_id" json:"template_id"`
	DegreeCode            string         `db:"degree_code" json:"degree_code"`
	Result                types.JSONText `db:"result" json:"result"`
	TotalCreditsCompleted float64        `db:"total_credits_completed" json:"total_credits_completed"`
	CompletionPercentage  float64        `db:"completion_percentage" json:"completion_percentage"`
	Eligible              bool           `db:"eligible" json:"eligible"`
	GeneratedAt           time.Time      `db:"generated_at" json:"generated_at"`
}
