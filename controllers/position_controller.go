package controllers

import (
	"net/http"

	"meridian-trader/database"

	"github.com/gin-gonic/gin"
)

// PositionController serves read-only projections of ledger positions.
// Writes go through the reconciler and transition coordinator only.
type PositionController struct {
	storage *database.LocalStorage
}

// NewPositionController creates a new position controller
func NewPositionController(storage *database.LocalStorage) *PositionController {
	return &PositionController{
		storage: storage,
	}
}

// HandleListPositions lists ledger positions
// GET /api/v1/positions?status=open
func (pc *PositionController) HandleListPositions(c *gin.Context) {
	status := c.Query("status")

	positions, err := pc.storage.ListPositions(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list positions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(positions),
		"positions": positions,
	})
}

// HandleGetPosition retrieves a specific position
// GET /api/v1/positions/:id
func (pc *PositionController) HandleGetPosition(c *gin.Context) {
	positionID := c.Param("id")
	if positionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "position ID required",
		})
		return
	}

	position, err := pc.storage.GetPosition(positionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Position not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, position)
}
