package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/service"
	appErrors "github.com/campusops/registrar-api/pkg/errors"
	"github.com/campusops/registrar-api/pkg/response"
)

type waitlistQueueService interface {
	Join(ctx context.Context, req service.JoinWaitlistRequest) (*models.WaitlistEntry, error)
	Leave(ctx context.Context, entryID string) error
	Standing(ctx context.Context, entryID string) (*service.WaitlistStanding, error)
	ListSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, error)
	ListStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error)
	OverridePriority(ctx context.Context, entryID string, priority int) (*models.WaitlistEntry, error)
	PromoteNext(ctx context.Context, sectionID string) (*models.WaitlistEntry, error)
}

// WaitlistHandler exposes section waitlist endpoints.
type WaitlistHandler struct {
	waitlists waitlistQueueService
}

// NewWaitlistHandler constructs WaitlistHandler.
func NewWaitlistHandler(waitlists waitlistQueueService) *WaitlistHandler {
	return &WaitlistHandler{waitlists: waitlists}
}

// Join godoc
// @Summary Join a section waitlist
// @Description Queues the student for a full section. Priority bands are
// assigned at join time; within a band the queue is first come first
// served.
// @Tags Waitlists
// @Accept json
// @Produce json
// @Param payload body service.JoinWaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /waitlists [post]
func (h *WaitlistHandler) Join(c *gin.Context) {
	var req service.JoinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.waitlists.Join(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Leave godoc
// @Summary Leave a waitlist
// @Tags Waitlists
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 204
// @Router /waitlists/{id} [delete]
func (h *WaitlistHandler) Leave(c *gin.Context) {
	if err := h.waitlists.Leave(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Standing godoc
// @Summary Waitlist position
// @Description Returns the entry with the number of students served
// before it.
// @Tags Waitlists
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlists/{id} [get]
func (h *WaitlistHandler) Standing(c *gin.Context) {
	standing, err := h.waitlists.Standing(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, standing, nil)
}

// SectionQueue godoc
// @Summary List a section's waitlist
// @Tags Waitlists
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *WaitlistHandler) SectionQueue(c *gin.Context) {
	entries, err := h.waitlists.ListSection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// StudentQueues godoc
// @Summary List a student's waitlist entries
// @Tags Waitlists
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/waitlists [get]
func (h *WaitlistHandler) StudentQueues(c *gin.Context) {
	entries, err := h.waitlists.ListStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// OverridePriority godoc
// @Summary Override a waitlist entry's priority
// @Description Registrar override. The entry is re-ranked within the new
// priority band behind existing members of that band.
// @Tags Waitlists
// @Accept json
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Param payload body object true "Priority payload"
// @Success 200 {object} response.Envelope
// @Router /waitlists/{id}/priority [put]
func (h *WaitlistHandler) OverridePriority(c *gin.Context) {
	var payload struct {
		Priority int `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "priority required"))
		return
	}
	entry, err := h.waitlists.OverridePriority(c.Request.Context(), c.Param("id"), payload.Priority)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Promote godoc
// @Summary Promote the waitlist head into an open seat
// @Tags Waitlists
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sections/{id}/waitlist/promote [post]
func (h *WaitlistHandler) Promote(c *gin.Context) {
	entry, err := h.waitlists.PromoteNext(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
