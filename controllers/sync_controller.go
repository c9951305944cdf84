package controllers

import (
	"net/http"

	"meridian-trader/services"

	"github.com/gin-gonic/gin"
)

// SyncController exposes a manual cycle trigger and the cycle journal.
type SyncController struct {
	syncService *services.SyncService
	journal     *services.CycleJournal
}

// NewSyncController creates a new sync controller
func NewSyncController(syncService *services.SyncService, journal *services.CycleJournal) *SyncController {
	return &SyncController{
		syncService: syncService,
		journal:     journal,
	}
}

// HandleTriggerSync runs one cycle immediately
// POST /api/v1/sync
func (sc *SyncController) HandleTriggerSync(c *gin.Context) {
	result := sc.syncService.RunCycle(c.Request.Context())
	if result == nil {
		c.JSON(http.StatusAccepted, gin.H{
			"message": "Cycle skipped or failed, see journal",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cycle complete",
		"result":  result,
	})
}

// HandleListJournalDates lists all available journal dates
// GET /api/v1/journal
func (sc *SyncController) HandleListJournalDates(c *gin.Context) {
	dates, err := sc.journal.ListAvailableDates()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list journal dates",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(dates),
		"dates": dates,
	})
}

// HandleGetJournal retrieves the journal for a date
// GET /api/v1/journal/:date
func (sc *SyncController) HandleGetJournal(c *gin.Context) {
	date := c.Param("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "date required (2006-01-02)",
		})
		return
	}

	journal, err := sc.journal.GetJournalForDate(date)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Journal not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, journal)
}
