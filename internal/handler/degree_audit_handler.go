package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/degree"
	"github.com/campusops/registrar-api/internal/middleware"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

type degreeAuditService interface {
	Run(ctx context.Context, req service.RunAuditRequest) (*degree.AuditResult, bool, error)
	Latest(ctx context.Context, studentID string) (*models.DegreeAudit, error)
	Stored(ctx context.Context, studentID, templateID string) (*models.DegreeAudit, error)
	EligibleGraduates(ctx context.Context, degreeCode string) ([]models.DegreeAudit, error)
	ValidateTemplate(ctx context.Context, templateID string) ([]string, error)
}

// DegreeAuditHandler exposes degree audit endpoints.
type DegreeAuditHandler struct {
	audits degreeAuditService
}

// NewDegreeAuditHandler constructs DegreeAuditHandler.
func NewDegreeAuditHandler(audits degreeAuditService) *DegreeAuditHandler {
	return &DegreeAuditHandler{audits: audits}
}

// Run godoc
// @Summary Run a degree audit
// @Description Evaluates the student's coursework against the degree
// template and returns per-category requirement satisfaction, outstanding
// requirements and graduation eligibility. Results are cached; pass
// force=true to bypass the cache.
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body service.RunAuditRequest true "Audit payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/run [post]
func (h *DegreeAuditHandler) Run(c *gin.Context) {
	var req service.RunAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, cacheHit, err := h.audits.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Latest godoc
// @Summary Latest stored audit for a student
// @Tags Audits
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/audit [get]
func (h *DegreeAuditHandler) Latest(c *gin.Context) {
	audit, err := h.audits.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audit, nil)
}

// Stored godoc
// @Summary Stored audit for a student and template
// @Tags Audits
// @Produce json
// @Param id path string true "Student ID"
// @Param templateId path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/audit/{templateId} [get]
func (h *DegreeAuditHandler) Stored(c *gin.Context) {
	audit, err := h.audits.Stored(c.Request.Context(), c.Param("id"), c.Param("templateId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audit, nil)
}

// Eligible godoc
// @Summary List students eligible to graduate
// @Tags Audits
// @Produce json
// @Param degreeCode query string false "Filter by degree code"
// @Success 200 {object} response.Envelope
// @Router /audits/eligible [get]
func (h *DegreeAuditHandler) Eligible(c *gin.Context) {
	audits, err := h.audits.EligibleGraduates(c.Request.Context(), c.Query("degreeCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, audits, nil)
}

// ValidateTemplate godoc
// @Summary Structurally validate a degree template
// @Description Returns the list of structural problems found in the
// template's requirement tree. An empty list means the template is sound.
// @Tags Audits
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/validate [get]
func (h *DegreeAuditHandler) ValidateTemplate(c *gin.Context) {
	problems, err := h.audits.ValidateTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"problems": problems, "valid": len(problems) == 0}, nil)
}
