package models

import (
	"time"

	"gorm.io/gorm"
)

// Position status values
const (
	PositionOpen   = "open"
	PositionClosed = "closed"
)

// Position direction values
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Exit reasons recorded when a position is closed
const (
	ExitManual         = "manual"
	ExitTakeProfit     = "take_profit"
	ExitStopLoss       = "stop_loss"
	ExitSignalReversal = "signal_reversal"
	ExitTrailingStop   = "trailing_stop"
	ExitSyncNotFound   = "sync_not_found"
	ExitTransition     = "transition"
)

// Transition status values
const (
	TransitionPending    = "pending"
	TransitionInProgress = "in_progress"
	TransitionCompleted  = "completed"
	TransitionCancelled  = "cancelled"
	TransitionFailed     = "failed"
)

// Trading modes
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// DBPosition represents a ledger position in the database
type DBPosition struct {
	gorm.Model
	PositionID string `gorm:"uniqueIndex" json:"position_id"`
	Symbol     string `gorm:"index" json:"symbol"` // normalized, quote-currency suffix stripped
	Direction  string `json:"direction"`           // "long" or "short"

	// Quantitative fields. Quantity is always a non-negative magnitude;
	// Direction carries the sign semantics.
	Quantity         float64 `json:"quantity"`
	EntryPrice       float64 `json:"entry_price"`
	Leverage         float64 `json:"leverage"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	RealizedPnL      float64 `json:"realized_pnl"`
	RealizedPnLPct   float64 `json:"realized_pnl_pct"`

	// Lifecycle
	Status         string     `gorm:"index" json:"status"` // "open" or "closed"
	EntryTimestamp time.Time  `json:"entry_timestamp"`
	ExitTimestamp  *time.Time `json:"exit_timestamp,omitempty"`
	ExitPrice      *float64   `json:"exit_price,omitempty"`
	ExitReason     string     `json:"exit_reason,omitempty"`

	// Transition linkage. InTransition excludes the position from the
	// reconciler's auto-close step while a migration owns its lifecycle.
	TransitionID *string `gorm:"index" json:"transition_id,omitempty"`
	InTransition bool    `gorm:"index" json:"in_transition"`
}

// DBPortfolioSnapshot represents an immutable point-in-time valuation
type DBPortfolioSnapshot struct {
	gorm.Model
	Timestamp          time.Time `gorm:"index" json:"timestamp"`
	TotalEquity        float64   `json:"total_equity"`
	AvailableBalance   float64   `json:"available_balance"`
	MarginUsed         float64   `json:"margin_used"`
	OpenPositionsCount int       `json:"open_positions_count"`
	ExposurePct        float64   `json:"exposure_pct"`
	TotalPnL           float64   `json:"total_pnl"`
	TotalPnLPct        float64   `json:"total_pnl_pct"`
	DailyPnL           float64   `json:"daily_pnl"`
	DailyPnLPct        float64   `json:"daily_pnl_pct"`
	TradingMode        string    `json:"trading_mode"` // "paper" or "live"
}

// DBTransition represents a venue migration workflow.
// At most one row may be pending or in_progress at a time.
type DBTransition struct {
	gorm.Model
	TransitionID    string     `gorm:"uniqueIndex" json:"transition_id"`
	Status          string     `gorm:"index" json:"status"`
	FromMode        string     `json:"from_mode"`
	ToMode          string     `json:"to_mode"`
	PositionsLocked int        `json:"positions_locked"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// IsOpen reports whether the position is still open.
func (p *DBPosition) IsOpen() bool {
	return p.Status == PositionOpen
}

// IsTerminal reports whether the transition has reached a terminal status.
func (t *DBTransition) IsTerminal() bool {
	switch t.Status {
	case TransitionCompleted, TransitionCancelled, TransitionFailed:
		return true
	}
	return false
}

// TableName overrides for cleaner table names
func (DBPosition) TableName() string {
	return "positions"
}

func (DBPortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}

func (DBTransition) TableName() string {
	return "transitions"
}
