package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

// SubstitutionHandler exposes course substitution endpoints.
type SubstitutionHandler struct {
	substitutions *service.SubstitutionService
}

// NewSubstitutionHandler constructs SubstitutionHandler.
func NewSubstitutionHandler(substitutions *service.SubstitutionService) *SubstitutionHandler {
	return &SubstitutionHandler{substitutions: substitutions}
}

// List godoc
// @Summary List a student's substitutions
// @Tags Substitutions
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/substitutions [get]
func (h *SubstitutionHandler) List(c *gin.Context) {
	subs, err := h.substitutions.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// Create godoc
// @Summary Approve a course substitution
// @Description Records an advisor-approved substitution. Audits and
// recommendations treat the substitute as satisfying requirements that
// name the original course.
// @Tags Substitutions
// @Accept json
// @Produce json
// @Param payload body service.CreateSubstitutionRequest true "Substitution payload"
// @Success 201 {object} response.Envelope
// @Router /substitutions [post]
func (h *SubstitutionHandler) Create(c *gin.Context) {
	var req service.CreateSubstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if actor := actorID(c); actor != "" {
		req.ApprovedBy = actor
	}
	sub, err := h.substitutions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sub)
}

// Expire godoc
// @Summary Expire a course substitution
// @Tags Substitutions
// @Accept json
// @Produce json
// @Param id path string true "Substitution ID"
// @Param payload body service.ExpireSubstitutionRequest false "Expiration payload"
// @Success 200 {object} response.Envelope
// @Router /substitutions/{id}/expire [post]
func (h *SubstitutionHandler) Expire(c *gin.Context) {
	var req service.ExpireSubstitutionRequest
	_ = c.ShouldBindJSON(&req)
	req.SubstitutionID = c.Param("id")
	if actor := actorID(c); actor != "" {
		req.ExpiredBy = actor
	}
	sub, err := h.substitutions.Expire(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}
