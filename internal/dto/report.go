package dto

import "github.com/campusops/registrar-api/internal/models"

// ReportRequest captures POST /reports/generate payload. Which scope
// fields are required depends on the report type: transcripts and
// degree audits are per student, rosters and grade distributions per
// section.
type ReportRequest struct {
	Type      models.ReportType   `json:"type"`
	Format    models.ReportFormat `json:"format"`
	StudentID *string             `json:"studentId,omitempty"`
	SectionID *string             `json:"sectionId,omitempty"`
	TermID    *string             `json:"termId,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
