package database

import (
	"errors"
	"fmt"
	"meridian-trader/models"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// LocalStorage is the durable ledger over SQLite. It is the single shared
// mutable resource of the system; all components read and write through it
// without holding long-lived locks.
type LocalStorage struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewLocalStorage opens (and migrates) the ledger database
func NewLocalStorage(dbPath string) (*LocalStorage, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.DBPosition{},
		&models.DBPortfolioSnapshot{},
		&models.DBTransition{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &LocalStorage{
		db:     db,
		logger: log,
	}, nil
}

// SavePosition inserts or updates a ledger position
func (s *LocalStorage) SavePosition(position *models.DBPosition) error {
	result := s.db.Save(position)
	if result.Error != nil {
		return fmt.Errorf("failed to save position: %w", result.Error)
	}
	return nil
}

// RefreshOpenPosition updates the broker-sourced fields of a position in a
// single column-scoped, status-guarded update. A row closed since it was read
// is left untouched; the write never carries lifecycle or lock columns from a
// possibly-stale in-memory struct. Returns the number of rows updated (0 or 1).
func (s *LocalStorage) RefreshOpenPosition(positionID string, quantity, entryPrice, unrealizedPnL, unrealizedPnLPct float64) (int64, error) {
	result := s.db.Model(&models.DBPosition{}).
		Where("position_id = ? AND status = ?", positionID, models.PositionOpen).
		Select("Quantity", "EntryPrice", "UnrealizedPnL", "UnrealizedPnLPct").
		Updates(models.DBPosition{
			Quantity:         quantity,
			EntryPrice:       entryPrice,
			UnrealizedPnL:    unrealizedPnL,
			UnrealizedPnLPct: unrealizedPnLPct,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to refresh position: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CloseUnlockedPosition closes a position that is still open and not owned by
// a transition, in one guarded update. A row locked or closed since it was
// read is left untouched. Returns the number of rows updated (0 or 1).
func (s *LocalStorage) CloseUnlockedPosition(positionID, exitReason string, exitPrice, realizedPnL, realizedPnLPct float64, at time.Time) (int64, error) {
	result := s.db.Model(&models.DBPosition{}).
		Where("position_id = ? AND status = ? AND in_transition = ?", positionID, models.PositionOpen, false).
		Select("Status", "ExitTimestamp", "ExitPrice", "ExitReason", "RealizedPnL", "RealizedPnLPct").
		Updates(models.DBPosition{
			Status:         models.PositionClosed,
			ExitTimestamp:  &at,
			ExitPrice:      &exitPrice,
			ExitReason:     exitReason,
			RealizedPnL:    realizedPnL,
			RealizedPnLPct: realizedPnLPct,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to close position: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetPosition retrieves a position by its stable id
func (s *LocalStorage) GetPosition(positionID string) (*models.DBPosition, error) {
	var position models.DBPosition

	result := s.db.Where("position_id = ?", positionID).First(&position)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get position: %w", result.Error)
	}

	return &position, nil
}

// GetOpenPositions retrieves all open ledger positions
func (s *LocalStorage) GetOpenPositions() ([]*models.DBPosition, error) {
	var positions []*models.DBPosition

	result := s.db.Where("status = ?", models.PositionOpen).
		Order("entry_timestamp ASC").
		Find(&positions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get open positions: %w", result.Error)
	}

	return positions, nil
}

// ListPositions retrieves positions with an optional status filter
func (s *LocalStorage) ListPositions(status string) ([]*models.DBPosition, error) {
	query := s.db.Model(&models.DBPosition{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var positions []*models.DBPosition
	result := query.Order("entry_timestamp DESC").Find(&positions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list positions: %w", result.Error)
	}

	return positions, nil
}

// GetTransitionPositions retrieves every position that references a transition
func (s *LocalStorage) GetTransitionPositions(transitionID string) ([]*models.DBPosition, error) {
	var positions []*models.DBPosition

	result := s.db.Where("transition_id = ?", transitionID).Find(&positions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get transition positions: %w", result.Error)
	}

	return positions, nil
}

// LockPositions marks positions as owned by a transition. Returns the number
// of rows locked.
func (s *LocalStorage) LockPositions(transitionID string, positionIDs []string) (int64, error) {
	if len(positionIDs) == 0 {
		return 0, nil
	}

	result := s.db.Model(&models.DBPosition{}).
		Where("position_id IN ? AND status = ? AND in_transition = ?", positionIDs, models.PositionOpen, false).
		Updates(map[string]interface{}{
			"in_transition": true,
			"transition_id": transitionID,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to lock positions: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// UnlockTransitionPositions clears the in_transition flag on every position
// referencing the transition, regardless of individual progress. The
// transition_id is kept for audit. Returns the number of rows unlocked.
func (s *LocalStorage) UnlockTransitionPositions(transitionID string) (int64, error) {
	result := s.db.Model(&models.DBPosition{}).
		Where("transition_id = ? AND in_transition = ?", transitionID, true).
		Update("in_transition", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to unlock transition positions: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// SaveSnapshot appends a portfolio snapshot. Snapshots are insert-only.
func (s *LocalStorage) SaveSnapshot(snapshot *models.DBPortfolioSnapshot) error {
	result := s.db.Create(snapshot)
	if result.Error != nil {
		return fmt.Errorf("failed to save snapshot: %w", result.Error)
	}
	return nil
}

// GetLatestSnapshot returns the most recent portfolio snapshot, or nil when
// none has been recorded yet
func (s *LocalStorage) GetLatestSnapshot() (*models.DBPortfolioSnapshot, error) {
	var snapshot models.DBPortfolioSnapshot

	result := s.db.Order("timestamp DESC").First(&snapshot)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", result.Error)
	}

	return &snapshot, nil
}

// GetSnapshotHistory returns the most recent snapshots, newest first
func (s *LocalStorage) GetSnapshotHistory(limit int) ([]*models.DBPortfolioSnapshot, error) {
	var snapshots []*models.DBPortfolioSnapshot

	query := s.db.Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	result := query.Find(&snapshots)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get snapshot history: %w", result.Error)
	}

	return snapshots, nil
}

// SaveTransition inserts or updates a transition row
func (s *LocalStorage) SaveTransition(transition *models.DBTransition) error {
	result := s.db.Save(transition)
	if result.Error != nil {
		return fmt.Errorf("failed to save transition: %w", result.Error)
	}
	return nil
}

// GetTransition retrieves a transition by its stable id
func (s *LocalStorage) GetTransition(transitionID string) (*models.DBTransition, error) {
	var transition models.DBTransition

	result := s.db.Where("transition_id = ?", transitionID).First(&transition)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get transition: %w", result.Error)
	}

	return &transition, nil
}

// GetActiveTransition returns the single pending or in_progress transition,
// or nil when no transition is active
func (s *LocalStorage) GetActiveTransition() (*models.DBTransition, error) {
	var transition models.DBTransition

	result := s.db.Where("status IN ?", []string{models.TransitionPending, models.TransitionInProgress}).
		Order("created_at DESC").
		First(&transition)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active transition: %w", result.Error)
	}

	return &transition, nil
}

// CleanupOldData removes snapshots older than the specified time
func (s *LocalStorage) CleanupOldData(before time.Time) error {
	s.logger.WithField("before", before).Info("Cleaning up old data")

	if err := s.db.Where("timestamp < ?", before).Delete(&models.DBPortfolioSnapshot{}).Error; err != nil {
		return fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	s.logger.Info("Old data cleaned up successfully")
	return nil
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
