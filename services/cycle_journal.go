package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meridian-trader/models"

	"github.com/sirupsen/logrus"
)

// CycleJournal records reconciliation and transition activity to per-day
// JSON files. It is the observable surface for silent cycle failures: end
// users never see a failed pass, operators read it here.
type CycleJournal struct {
	logger     *logrus.Logger
	journalDir string
	mu         sync.Mutex
	current    *DailyJournal
}

// DailyJournal is a day's worth of sync activity.
type DailyJournal struct {
	Date             string            `json:"date"`
	Cycles           int               `json:"cycles"`
	FailedCycles     int               `json:"failed_cycles"`
	PositionsCreated int               `json:"positions_created"`
	PositionsClosed  int               `json:"positions_closed"`
	Entries          []JournalEntry    `json:"entries"`
	TransitionEvents []TransitionEvent `json:"transition_events"`
	LastSnapshot     *SnapshotDigest   `json:"last_snapshot,omitempty"`
}

// JournalEntry records one cycle's outcome.
type JournalEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Status    string      `json:"status"` // "success" or "failure"
	Result    *SyncResult `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// TransitionEvent records a transition lifecycle change.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"`
}

// SnapshotDigest is the journaled view of the latest portfolio snapshot.
type SnapshotDigest struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalEquity   float64   `json:"total_equity"`
	ExposurePct   float64   `json:"exposure_pct"`
	TotalPnL      float64   `json:"total_pnl"`
	OpenPositions int       `json:"open_positions"`
}

// NewCycleJournal creates a journal writing to journalDir.
func NewCycleJournal(journalDir string) *CycleJournal {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := os.MkdirAll(journalDir, 0755); err != nil {
		logger.WithError(err).Error("Failed to create journal directory")
	}

	return &CycleJournal{
		logger:     logger,
		journalDir: journalDir,
	}
}

// LogCycle records a successful cycle and its snapshot digest.
func (j *CycleJournal) LogCycle(result *SyncResult, snapshot *models.DBPortfolioSnapshot) {
	j.mu.Lock()
	defer j.mu.Unlock()

	log := j.logForToday()
	log.Cycles++
	log.PositionsCreated += result.Created
	log.PositionsClosed += result.Closed
	log.Entries = append(log.Entries, JournalEntry{
		Timestamp: time.Now().UTC(),
		Status:    "success",
		Result:    result,
	})
	if snapshot != nil {
		log.LastSnapshot = &SnapshotDigest{
			Timestamp:     snapshot.Timestamp,
			TotalEquity:   snapshot.TotalEquity,
			ExposurePct:   snapshot.ExposurePct,
			TotalPnL:      snapshot.TotalPnL,
			OpenPositions: snapshot.OpenPositionsCount,
		}
	}

	j.save(log)
}

// LogCycleFailure records a failed cycle.
func (j *CycleJournal) LogCycleFailure(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	log := j.logForToday()
	log.Cycles++
	log.FailedCycles++
	log.Entries = append(log.Entries, JournalEntry{
		Timestamp: time.Now().UTC(),
		Status:    "failure",
		Error:     err.Error(),
	})

	j.save(log)
}

// LogTransitionEvent records a transition lifecycle change.
func (j *CycleJournal) LogTransitionEvent(event, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	log := j.logForToday()
	log.TransitionEvents = append(log.TransitionEvents, TransitionEvent{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Detail:    detail,
	})

	j.save(log)
}

// GetJournalForDate retrieves the journal for a specific date (2006-01-02).
func (j *CycleJournal) GetJournalForDate(date string) (*DailyJournal, error) {
	filename := filepath.Join(j.journalDir, fmt.Sprintf("sync_%s.json", date))

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("journal not found for date %s: %w", date, err)
	}

	var log DailyJournal
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to parse journal: %w", err)
	}

	return &log, nil
}

// ListAvailableDates returns all dates with a journal file.
func (j *CycleJournal) ListAvailableDates() ([]string, error) {
	files, err := os.ReadDir(j.journalDir)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		// sync_2026-08-29.json
		name := file.Name()
		if len(name) > 10 && name[:5] == "sync_" {
			dates = append(dates, name[5:len(name)-5])
		}
	}

	return dates, nil
}

// logForToday returns the in-memory journal for today, rolling the file over
// at a day boundary.
func (j *CycleJournal) logForToday() *DailyJournal {
	date := time.Now().UTC().Format("2006-01-02")
	if j.current != nil && j.current.Date == date {
		return j.current
	}

	// Resume an existing file after a restart rather than overwrite it.
	if existing, err := j.GetJournalForDate(date); err == nil {
		j.current = existing
		return j.current
	}

	j.current = &DailyJournal{
		Date:             date,
		Entries:          make([]JournalEntry, 0),
		TransitionEvents: make([]TransitionEvent, 0),
	}
	return j.current
}

// save writes the current journal to disk.
func (j *CycleJournal) save(log *DailyJournal) {
	filename := filepath.Join(j.journalDir, fmt.Sprintf("sync_%s.json", log.Date))

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		j.logger.WithError(err).Error("Failed to marshal journal")
		return
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		j.logger.WithError(err).Error("Failed to write journal file")
	}
}
