package interfaces

import (
	"time"

	"meridian-trader/models"
)

// PositionStore is the slice of the ledger the reconciler writes through.
// Refresh and close are guarded single-row updates: a pass working from a
// stale read can never overwrite a lifecycle or lock change that landed in
// between.
type PositionStore interface {
	// GetOpenPositions returns all open ledger positions.
	GetOpenPositions() ([]*models.DBPosition, error)
	// SavePosition inserts or updates a full ledger position row.
	SavePosition(position *models.DBPosition) error
	// RefreshOpenPosition updates the broker-sourced fields of a position
	// that is still open. Returns the number of rows updated (0 or 1).
	RefreshOpenPosition(positionID string, quantity, entryPrice, unrealizedPnL, unrealizedPnLPct float64) (int64, error)
	// CloseUnlockedPosition closes a position that is still open and not
	// owned by a transition. Returns the number of rows updated (0 or 1).
	CloseUnlockedPosition(positionID, exitReason string, exitPrice, realizedPnL, realizedPnLPct float64, at time.Time) (int64, error)
}
