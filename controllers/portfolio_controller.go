package controllers

import (
	"net/http"
	"strconv"

	"meridian-trader/database"

	"github.com/gin-gonic/gin"
)

// PortfolioController serves read-only portfolio snapshot projections.
type PortfolioController struct {
	storage *database.LocalStorage
}

// NewPortfolioController creates a new portfolio controller
func NewPortfolioController(storage *database.LocalStorage) *PortfolioController {
	return &PortfolioController{
		storage: storage,
	}
}

// HandleGetSnapshot returns the latest portfolio snapshot
// GET /api/v1/portfolio/snapshot
func (pc *PortfolioController) HandleGetSnapshot(c *gin.Context) {
	snapshot, err := pc.storage.GetLatestSnapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get snapshot",
			"details": err.Error(),
		})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No snapshot recorded yet",
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// HandleGetHistory returns recent snapshots, newest first
// GET /api/v1/portfolio/history?limit=100
func (pc *PortfolioController) HandleGetHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	snapshots, err := pc.storage.GetSnapshotHistory(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get snapshot history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}
