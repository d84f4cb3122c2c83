package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/middleware"
	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

// RecommendationHandler exposes course planning endpoints.
type RecommendationHandler struct {
	recommendations *service.RecommendationService
}

// NewRecommendationHandler constructs RecommendationHandler.
func NewRecommendationHandler(recommendations *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations}
}

// NextCourses godoc
// @Summary Recommend next courses
// @Description Ranks the courses the student is eligible to take next by
// how much outstanding requirement progress each unlocks.
// @Tags Recommendations
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/recommendations [get]
func (h *RecommendationHandler) NextCourses(c *gin.Context) {
	rec, cacheHit, err := h.recommendations.NextCourses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, rec, nil, middleware.ExtractMeta(c))
}

// Sequence godoc
// @Summary Semester-by-semester course sequence
// @Description Levels the outstanding courses by prerequisite depth and
// packs them into projected semesters under the per-term credit ceiling.
// @Tags Recommendations
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/sequence [get]
func (h *RecommendationHandler) Sequence(c *gin.Context) {
	seq, cacheHit, err := h.recommendations.Sequence(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, seq, nil, middleware.ExtractMeta(c))
}

// Compare godoc
// @Summary Compare two candidate courses
// @Tags Recommendations
// @Produce json
// @Param id path string true "Student ID"
// @Param first query string true "First course ID"
// @Param second query string true "Second course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/compare [get]
func (h *RecommendationHandler) Compare(c *gin.Context) {
	first := c.Query("first")
	second := c.Query("second")
	if first == "" || second == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "first and second course ids required"))
		return
	}
	cmp, err := h.recommendations.Compare(c.Request.Context(), c.Param("id"), first, second)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cmp, nil)
}

// ConditionalPaths godoc
// @Summary Rank paths through a conditional requirement
// @Description For a pick-one requirement group, ranks each alternative
// path by remaining credits and prerequisite depth given what the student
// has already completed.
// @Tags Recommendations
// @Produce json
// @Param id path string true "Student ID"
// @Param requirementId path string true "Requirement ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/paths/{requirementId} [get]
func (h *RecommendationHandler) ConditionalPaths(c *gin.Context) {
	plan, err := h.recommendations.PlanConditional(c.Request.Context(), c.Param("id"), c.Param("requirementId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}
