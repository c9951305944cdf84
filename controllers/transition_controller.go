package controllers

import (
	"errors"
	"net/http"

	"meridian-trader/services"

	"github.com/gin-gonic/gin"
)

// TransitionController exposes the venue transition control surface.
type TransitionController struct {
	coordinator *services.TransitionCoordinator
	journal     *services.CycleJournal
}

// NewTransitionController creates a new transition controller
func NewTransitionController(coordinator *services.TransitionCoordinator, journal *services.CycleJournal) *TransitionController {
	return &TransitionController{
		coordinator: coordinator,
		journal:     journal,
	}
}

// CancelRequest carries the operator's reason for cancelling
type CancelRequest struct {
	Reason string `json:"reason"`
}

// HandleStartTransition starts a venue transition
// POST /api/v1/transition/start
func (tc *TransitionController) HandleStartTransition(c *gin.Context) {
	var criteria services.TransitionCriteria
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&criteria); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": err.Error(),
			})
			return
		}
	}

	transition, err := tc.coordinator.Start(&criteria)
	if err != nil {
		var conflict *services.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":                "A transition is already active",
				"active_transition_id": conflict.ActiveTransitionID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start transition",
			"details": err.Error(),
		})
		return
	}

	tc.journal.LogTransitionEvent("started", transition.TransitionID)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Transition started",
		"transition": transition,
	})
}

// HandleCancelTransition cancels an active transition
// POST /api/v1/transition/:id/cancel
func (tc *TransitionController) HandleCancelTransition(c *gin.Context) {
	transitionID := c.Param("id")
	if transitionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "transition ID required",
		})
		return
	}

	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": err.Error(),
			})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	unlocked, err := tc.coordinator.Cancel(transitionID, req.Reason)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrTransitionTerminal) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":   "Failed to cancel transition",
			"details": err.Error(),
		})
		return
	}

	tc.journal.LogTransitionEvent("cancelled", req.Reason)

	c.JSON(http.StatusOK, gin.H{
		"message":            "Transition cancelled",
		"positions_unlocked": unlocked,
	})
}

// HandleGetStatus returns the active transition and its locked positions
// GET /api/v1/transition/status
func (tc *TransitionController) HandleGetStatus(c *gin.Context) {
	status, err := tc.coordinator.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get transition status",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
