package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"meridian-trader/interfaces"
	"meridian-trader/metrics"
	"meridian-trader/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SyncResult summarizes the mutations of one reconciliation pass.
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Closed  int `json:"closed"`
	Skipped int `json:"skipped"`
	Locked  int `json:"locked"`
}

// Reconciler keeps the ledger's open positions in one-to-one correspondence
// with the broker's reported positions, keyed by normalized symbol. At most
// one pass is in flight at a time; a tick that overlaps a running pass is
// skipped.
type Reconciler struct {
	gateway interfaces.BrokerGateway
	storage interfaces.PositionStore
	logger  *logrus.Logger
	mu      sync.Mutex
}

// NewReconciler creates a position reconciler over one broker gateway.
func NewReconciler(gateway interfaces.BrokerGateway, storage interfaces.PositionStore) *Reconciler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &Reconciler{
		gateway: gateway,
		storage: storage,
		logger:  logger,
	}
}

// Sync runs one reconciliation pass. The broker read happens before any
// mutation: if the gateway is unavailable the pass aborts without touching
// the ledger. A single position's write failure is logged and skipped; the
// rest of the pass continues.
func (r *Reconciler) Sync(ctx context.Context) (*SyncResult, error) {
	if !r.mu.TryLock() {
		r.logger.Warn("Skipping reconciliation tick, previous pass still running")
		return nil, ErrSyncInFlight
	}
	defer r.mu.Unlock()

	brokerPositions, err := r.gateway.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	ledgerPositions, err := r.storage.GetOpenPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to read open ledger positions: %w", err)
	}

	// Lookup of open ledger positions by normalized symbol. Entries are
	// removed as broker positions claim them; whatever remains was not
	// reported by the broker this cycle.
	unseen := make(map[string]*models.DBPosition, len(ledgerPositions))
	for _, position := range ledgerPositions {
		unseen[position.Symbol] = position
	}

	result := &SyncResult{}
	now := time.Now().UTC()

	for _, broker := range brokerPositions {
		symbol := NormalizeSymbol(broker.Symbol)

		if existing, ok := unseen[symbol]; ok {
			delete(unseen, symbol)
			if r.updatePosition(existing, broker) {
				result.Updated++
			} else {
				result.Skipped++
			}
			continue
		}

		if r.createPosition(symbol, broker, now) {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	for _, position := range unseen {
		// A locked position's terminal transition belongs to the
		// coordinator, never to the sync pass.
		if position.InTransition {
			result.Locked++
			continue
		}

		if r.closeUnseenPosition(position, now) {
			result.Closed++
		} else {
			result.Skipped++
		}
	}

	openCount := len(ledgerPositions) + result.Created - result.Closed
	metrics.SetOpenPositions(openCount)

	r.logger.WithFields(logrus.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"closed":  result.Closed,
		"skipped": result.Skipped,
		"locked":  result.Locked,
	}).Info("Reconciliation pass complete")

	return result, nil
}

// updatePosition refreshes the mutable fields of a ledger position from the
// broker's report. Locked positions get the same refresh; only their
// lifecycle is off limits here. The write is a guarded single-row update, so
// a position the coordinator closed after our read is never resurrected.
func (r *Reconciler) updatePosition(position *models.DBPosition, broker *interfaces.BrokerPosition) bool {
	rows, err := r.storage.RefreshOpenPosition(position.PositionID,
		abs(broker.Quantity), broker.EntryPrice, broker.UnrealizedPnL, broker.UnrealizedPnLPct)
	if err != nil {
		r.logger.WithError(err).WithField("symbol", position.Symbol).Error("Failed to update position, skipping")
		metrics.RecordMutationSkipped()
		return false
	}
	if rows == 0 {
		// Closed between our read and this write; the closer owns the row.
		r.logger.WithField("symbol", position.Symbol).Info("Position closed mid-pass, refresh dropped")
		return false
	}
	return true
}

// createPosition inserts a new open ledger position for a broker position
// with no ledger match.
func (r *Reconciler) createPosition(symbol string, broker *interfaces.BrokerPosition, now time.Time) bool {
	position := &models.DBPosition{
		PositionID:       newPositionID(),
		Symbol:           symbol,
		Direction:        directionOf(broker),
		Quantity:         abs(broker.Quantity),
		EntryPrice:       broker.EntryPrice,
		Leverage:         1,
		UnrealizedPnL:    broker.UnrealizedPnL,
		UnrealizedPnLPct: broker.UnrealizedPnLPct,
		Status:           models.PositionOpen,
		EntryTimestamp:   now,
	}

	if err := r.storage.SavePosition(position); err != nil {
		r.logger.WithError(err).WithField("symbol", symbol).Error("Failed to create position, skipping")
		metrics.RecordMutationSkipped()
		return false
	}

	r.logger.WithFields(logrus.Fields{
		"position_id": position.PositionID,
		"symbol":      symbol,
		"direction":   position.Direction,
		"quantity":    position.Quantity,
	}).Info("Created ledger position from broker report")
	metrics.RecordPositionCreated()

	return true
}

// closeUnseenPosition closes a ledger position the broker no longer reports.
// The last known unrealized P&L is carried forward as realized P&L and the
// exit price is estimated from it. This is a best-effort approximation, not
// an authoritative fill; sync_not_found closes must not be conflated with
// normal closes in analytics.
func (r *Reconciler) closeUnseenPosition(position *models.DBPosition, now time.Time) bool {
	exitPrice := estimateExitPrice(position)

	rows, err := r.storage.CloseUnlockedPosition(position.PositionID, models.ExitSyncNotFound,
		exitPrice, position.UnrealizedPnL, position.UnrealizedPnLPct, now)
	if err != nil {
		r.logger.WithError(err).WithField("symbol", position.Symbol).Error("Failed to close unseen position, skipping")
		metrics.RecordMutationSkipped()
		return false
	}
	if rows == 0 {
		// A transition locked the position after our read; it now owns the
		// lifecycle and the close must not apply.
		r.logger.WithField("symbol", position.Symbol).Info("Position locked mid-pass, close dropped")
		return false
	}

	r.logger.WithFields(logrus.Fields{
		"position_id":  position.PositionID,
		"symbol":       position.Symbol,
		"realized_pnl": position.UnrealizedPnL,
	}).Info("Closed position no longer reported by broker")
	metrics.RecordPositionClosed(models.ExitSyncNotFound)

	return true
}

// NormalizeSymbol strips a trailing quote-currency suffix from a venue
// symbol, e.g. "ETH/USD" and "ETHUSD" both become "ETH". Plain equity
// symbols pass through unchanged.
func NormalizeSymbol(symbol string) string {
	if s, ok := strings.CutSuffix(symbol, "/USD"); ok {
		return s
	}
	// Heuristic: only strip a bare USD suffix when something remains.
	if s, ok := strings.CutSuffix(symbol, "USD"); ok && s != "" {
		return s
	}
	return symbol
}

// directionOf derives the ledger direction from the broker's side, falling
// back to the sign of the reported quantity.
func directionOf(broker *interfaces.BrokerPosition) string {
	if broker.Side == models.DirectionShort || broker.Quantity < 0 {
		return models.DirectionShort
	}
	return models.DirectionLong
}

// estimateExitPrice back-solves an exit price from the last known unrealized
// P&L percentage. Used only for sync_not_found closes where no fill price is
// available.
func estimateExitPrice(position *models.DBPosition) float64 {
	move := position.EntryPrice * position.UnrealizedPnLPct / 100
	if position.Direction == models.DirectionShort {
		return position.EntryPrice - move
	}
	return position.EntryPrice + move
}

func newPositionID() string {
	return fmt.Sprintf("pos_%s", uuid.NewString())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
