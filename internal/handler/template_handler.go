package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

// TemplateHandler exposes degree template endpoints.
type TemplateHandler struct {
	templates *service.TemplateService
}

// NewTemplateHandler constructs TemplateHandler.
func NewTemplateHandler(templates *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// List godoc
// @Summary List degree templates
// @Tags Templates
// @Produce json
// @Param degreeCode query string false "Filter by degree code"
// @Success 200 {object} response.Envelope
// @Router /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.templates.List(c.Request.Context(), c.Query("degreeCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Get godoc
// @Summary Get template with full requirement tree
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	detail, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Active godoc
// @Summary Get the template in effect for a degree
// @Tags Templates
// @Produce json
// @Param degreeCode path string true "Degree code"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /templates/active/{degreeCode} [get]
func (h *TemplateHandler) Active(c *gin.Context) {
	tpl, err := h.templates.Active(c.Request.Context(), c.Param("degreeCode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Create godoc
// @Summary Publish a degree template
// @Description Publishes a new template version. The requirement tree is
// structurally validated and referenced courses must exist; templates are
// immutable once published.
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body service.CreateTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	var req service.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.templates.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Expire godoc
// @Summary Close a template's effective window
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body object false "Expiration payload"
// @Success 200 {object} response.Envelope
// @Router /templates/{id}/expire [post]
func (h *TemplateHandler) Expire(c *gin.Context) {
	var payload struct {
		At time.Time `json:"at"`
	}
	// Body is optional; a missing or empty payload expires immediately.
	_ = c.ShouldBindJSON(&payload)

	tpl, err := h.templates.Expire(c.Request.Context(), c.Param("id"), payload.At)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}
