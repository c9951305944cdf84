package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meridian-trader/database"
	"meridian-trader/interfaces"
	"meridian-trader/metrics"
	"meridian-trader/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransitionCriteria selects which open positions a transition locks.
// An empty symbol list selects every open, non-locked position.
type TransitionCriteria struct {
	Symbols []string `json:"symbols,omitempty"`
}

// TransitionStatus is the read-only projection returned by Status.
type TransitionStatus struct {
	Active     bool                 `json:"active"`
	Transition *models.DBTransition `json:"transition,omitempty"`
	Positions  []*models.DBPosition `json:"positions,omitempty"`
}

// TransitionCoordinator orchestrates moving open positions from a source
// venue to a destination venue through explicit phases. The durable
// transition row is the single source of truth for "is a migration running";
// any process can answer that from the ledger alone.
//
// Correctness hinges on two rules: at most one transition is pending or
// in_progress at a time, and a terminal transition never leaves a position
// locked.
type TransitionCoordinator struct {
	source  interfaces.BrokerGateway
	dest    interfaces.BrokerGateway
	storage *database.LocalStorage
	logger  *logrus.Logger
	mu      sync.Mutex
}

// NewTransitionCoordinator creates a coordinator between two venues.
func NewTransitionCoordinator(source, dest interfaces.BrokerGateway, storage *database.LocalStorage) *TransitionCoordinator {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// The durable row survives restarts; the gauge must agree with it from
	// the first scrape, not from the next state change.
	if active, err := storage.GetActiveTransition(); err != nil {
		logger.WithError(err).Warn("Failed to restore transition gauge")
	} else {
		metrics.SetTransitionActive(active != nil)
	}

	return &TransitionCoordinator{
		source:  source,
		dest:    dest,
		storage: storage,
		logger:  logger,
	}
}

// Start creates a transition and locks the eligible open positions. It fails
// with a ConflictError naming the active transition when one is already
// pending or in progress.
func (tc *TransitionCoordinator) Start(criteria *TransitionCriteria) (*models.DBTransition, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	active, err := tc.storage.GetActiveTransition()
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &ConflictError{ActiveTransitionID: active.TransitionID}
	}

	openPositions, err := tc.storage.GetOpenPositions()
	if err != nil {
		return nil, err
	}

	eligible := selectEligible(openPositions, criteria)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no eligible open positions to transition")
	}

	transition := &models.DBTransition{
		TransitionID: newTransitionID(),
		Status:       models.TransitionPending,
		FromMode:     tc.source.Mode(),
		ToMode:       tc.dest.Mode(),
	}
	if err := tc.storage.SaveTransition(transition); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(eligible))
	for _, p := range eligible {
		ids = append(ids, p.PositionID)
	}

	locked, err := tc.storage.LockPositions(transition.TransitionID, ids)
	if err != nil {
		// Nothing is locked yet on this path; fail the row so it cannot
		// linger as a phantom active transition.
		tc.terminate(transition, models.TransitionFailed, fmt.Sprintf("failed to lock positions: %v", err))
		return nil, err
	}
	if locked == 0 {
		tc.terminate(transition, models.TransitionFailed, "no positions could be locked")
		return nil, fmt.Errorf("no positions could be locked")
	}

	transition.Status = models.TransitionInProgress
	transition.PositionsLocked = int(locked)
	if err := tc.storage.SaveTransition(transition); err != nil {
		return nil, err
	}

	metrics.SetTransitionActive(true)
	tc.logger.WithFields(logrus.Fields{
		"transition_id": transition.TransitionID,
		"from":          transition.FromMode,
		"to":            transition.ToMode,
		"locked":        locked,
	}).Info("Transition started")

	return transition, nil
}

// Cancel terminates a non-terminal transition and unconditionally unlocks
// every position referencing it, even if a migration step is mid-flight. A
// stuck lock would permanently exclude a position from reconciliation, so
// unlocking never waits. Returns the number of positions unlocked.
func (tc *TransitionCoordinator) Cancel(transitionID, reason string) (int64, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	transition, err := tc.storage.GetTransition(transitionID)
	if err != nil {
		return 0, err
	}
	if transition.IsTerminal() {
		return 0, fmt.Errorf("%w: %s is %s", ErrTransitionTerminal, transitionID, transition.Status)
	}

	if err := tc.terminate(transition, models.TransitionCancelled, reason); err != nil {
		return 0, err
	}

	unlocked, err := tc.storage.UnlockTransitionPositions(transitionID)
	if err != nil {
		return 0, err
	}

	metrics.SetTransitionActive(false)
	tc.logger.WithFields(logrus.Fields{
		"transition_id": transitionID,
		"reason":        reason,
		"unlocked":      unlocked,
	}).Info("Transition cancelled")

	return unlocked, nil
}

// Advance runs one migration step for every still-open locked position:
// close on the source venue, reopen on the destination venue, close the
// ledger row with exit_reason=transition. When every locked position has
// been migrated the transition completes. Any unrecoverable step fails the
// whole transition with a full unlock.
func (tc *TransitionCoordinator) Advance(ctx context.Context) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	transition, err := tc.storage.GetActiveTransition()
	if err != nil {
		return err
	}
	if transition == nil {
		return ErrNoActiveTransition
	}
	if transition.Status != models.TransitionInProgress {
		// Pending means no position was locked yet; nothing to advance.
		return nil
	}

	positions, err := tc.storage.GetTransitionPositions(transition.TransitionID)
	if err != nil {
		return err
	}

	// One venue read per advance: each migrated row records the price the
	// source venue last reported instead of a back-solved estimate. A
	// transient read failure leaves the transition in progress for the next
	// tick.
	quotes, err := tc.sourceQuotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read source venue positions: %w", err)
	}

	remaining := 0
	for _, position := range positions {
		if !position.IsOpen() {
			continue
		}

		if err := tc.migrate(ctx, position, quotes[position.Symbol]); err != nil {
			metrics.RecordTransitionStep("failure")
			tc.logger.WithError(err).WithFields(logrus.Fields{
				"transition_id": transition.TransitionID,
				"symbol":        position.Symbol,
			}).Error("Migration step failed, failing transition")

			tc.terminate(transition, models.TransitionFailed, err.Error())
			unlocked, unlockErr := tc.storage.UnlockTransitionPositions(transition.TransitionID)
			if unlockErr != nil {
				tc.logger.WithError(unlockErr).Error("Failed to unlock positions after migration failure")
			}
			metrics.SetTransitionActive(false)
			tc.logger.WithField("unlocked", unlocked).Warn("Transition failed, all positions unlocked")
			return &MigrationError{PositionID: position.PositionID, Symbol: position.Symbol, Err: err}
		}

		metrics.RecordTransitionStep("success")
	}

	// Re-read: steps above mutate position rows.
	positions, err = tc.storage.GetTransitionPositions(transition.TransitionID)
	if err != nil {
		return err
	}
	for _, position := range positions {
		if position.IsOpen() {
			remaining++
		}
	}

	if remaining > 0 {
		tc.logger.WithFields(logrus.Fields{
			"transition_id": transition.TransitionID,
			"remaining":     remaining,
		}).Info("Transition still in progress")
		return nil
	}

	if err := tc.terminate(transition, models.TransitionCompleted, ""); err != nil {
		return err
	}
	if _, err := tc.storage.UnlockTransitionPositions(transition.TransitionID); err != nil {
		return err
	}

	metrics.SetTransitionActive(false)
	tc.logger.WithField("transition_id", transition.TransitionID).Info("Transition completed")

	return nil
}

// Status returns the active transition and its locked positions, or an
// inactive projection when none exists. Read-only, safe for concurrent
// callers.
func (tc *TransitionCoordinator) Status() (*TransitionStatus, error) {
	transition, err := tc.storage.GetActiveTransition()
	if err != nil {
		return nil, err
	}
	if transition == nil {
		return &TransitionStatus{Active: false}, nil
	}

	positions, err := tc.storage.GetTransitionPositions(transition.TransitionID)
	if err != nil {
		return nil, err
	}

	return &TransitionStatus{
		Active:     true,
		Transition: transition,
		Positions:  positions,
	}, nil
}

// migrate runs the per-position step: liquidate at the source, re-establish
// at the destination, then close the ledger row with exit_reason=transition.
// The quote is the source venue's last report for the symbol; when present it
// supplies the exit price and final P&L, otherwise both are estimated from
// the ledger row.
func (tc *TransitionCoordinator) migrate(ctx context.Context, position *models.DBPosition, quote *interfaces.BrokerPosition) error {
	if err := tc.source.ClosePosition(ctx, position.Symbol); err != nil {
		return fmt.Errorf("close on %s: %w", tc.source.Mode(), err)
	}

	if err := tc.dest.OpenPosition(ctx, &interfaces.OpenRequest{
		Symbol:   position.Symbol,
		Quantity: position.Quantity,
		Side:     position.Direction,
	}); err != nil {
		return fmt.Errorf("open on %s: %w", tc.dest.Mode(), err)
	}

	now := time.Now().UTC()
	exitPrice := estimateExitPrice(position)
	if quote != nil {
		exitPrice = quote.CurrentPrice
		position.UnrealizedPnL = quote.UnrealizedPnL
		position.UnrealizedPnLPct = quote.UnrealizedPnLPct
	}
	position.Status = models.PositionClosed
	position.ExitTimestamp = &now
	position.ExitPrice = &exitPrice
	position.ExitReason = models.ExitTransition
	position.RealizedPnL = position.UnrealizedPnL
	position.RealizedPnLPct = position.UnrealizedPnLPct
	position.InTransition = false

	if err := tc.storage.SavePosition(position); err != nil {
		return fmt.Errorf("close ledger row: %w", err)
	}

	metrics.RecordPositionClosed(models.ExitTransition)
	tc.logger.WithFields(logrus.Fields{
		"position_id": position.PositionID,
		"symbol":      position.Symbol,
		"from":        tc.source.Mode(),
		"to":          tc.dest.Mode(),
	}).Info("Position migrated")

	return nil
}

// sourceQuotes indexes the source venue's reported positions by normalized
// symbol.
func (tc *TransitionCoordinator) sourceQuotes(ctx context.Context) (map[string]*interfaces.BrokerPosition, error) {
	positions, err := tc.source.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]*interfaces.BrokerPosition, len(positions))
	for _, p := range positions {
		quotes[NormalizeSymbol(p.Symbol)] = p
	}
	return quotes, nil
}

// terminate moves a transition to a terminal status. Last-writer-wins on the
// status field: a cancel that lands first is observed by the next Advance.
func (tc *TransitionCoordinator) terminate(transition *models.DBTransition, status, lastError string) error {
	now := time.Now().UTC()
	transition.Status = status
	transition.CompletedAt = &now
	transition.LastError = lastError
	return tc.storage.SaveTransition(transition)
}

// selectEligible filters open positions by the criteria. Locked positions
// are never eligible: a position belongs to at most one non-terminal
// transition.
func selectEligible(positions []*models.DBPosition, criteria *TransitionCriteria) []*models.DBPosition {
	var wanted map[string]bool
	if criteria != nil && len(criteria.Symbols) > 0 {
		wanted = make(map[string]bool, len(criteria.Symbols))
		for _, s := range criteria.Symbols {
			wanted[NormalizeSymbol(s)] = true
		}
	}

	eligible := make([]*models.DBPosition, 0, len(positions))
	for _, p := range positions {
		if p.InTransition {
			continue
		}
		if wanted != nil && !wanted[p.Symbol] {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible
}

func newTransitionID() string {
	return fmt.Sprintf("tr_%s", uuid.NewString())
}
