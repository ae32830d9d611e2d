package handlers

import (
	"context"
	"net/http"
	"time"

	"idle-economy/internal/models"
	"idle-economy/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EventHandler struct {
	events *services.EventService
	now    func() time.Time
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events, now: time.Now}
}

// Evaluate runs the trigger rules for the player
// POST /api/events/evaluate
func (h *EventHandler) Evaluate(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	result, err := h.events.Evaluate(c.Request.Context(), playerID, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetActive lists the player's active events
// GET /api/events/active
func (h *EventHandler) GetActive(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	events, err := h.events.ActiveEvents(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Trigger fires an action-driven event
// POST /api/events/:slug/trigger
func (h *EventHandler) Trigger(c *gin.Context) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	ev, err := h.events.Trigger(c.Request.Context(), playerID, c.Param("slug"), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// Complete resolves an active event and pays its rewards
// POST /api/events/instances/:id/complete
func (h *EventHandler) Complete(c *gin.Context) {
	h.resolve(c, h.events.Complete)
}

// Cancel resolves an active event without rewards
// POST /api/events/instances/:id/cancel
func (h *EventHandler) Cancel(c *gin.Context) {
	h.resolve(c, h.events.Cancel)
}

func (h *EventHandler) resolve(c *gin.Context, fn func(ctx context.Context, playerID uint, id uuid.UUID, now time.Time) (*models.UserEvent, error)) {
	playerID, ok := playerOrAbort(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	ev, err := fn(c.Request.Context(), playerID, id, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}
