package services

import (
	"context"
	"errors"
	"time"

	"meridian-trader/metrics"

	"github.com/sirupsen/logrus"
)

// SyncService drives the cooperative cycle: reconcile the ledger against the
// broker, record a portfolio snapshot, then advance an active transition if
// one exists. Each stage failure is cycle-scoped; the next tick retries
// wholesale.
type SyncService struct {
	reconciler  *Reconciler
	accountant  *PortfolioAccountant
	coordinator *TransitionCoordinator
	journal     *CycleJournal
	interval    time.Duration
	logger      *logrus.Logger
}

// NewSyncService creates the cycle driver.
func NewSyncService(
	reconciler *Reconciler,
	accountant *PortfolioAccountant,
	coordinator *TransitionCoordinator,
	journal *CycleJournal,
	interval time.Duration,
) *SyncService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &SyncService{
		reconciler:  reconciler,
		accountant:  accountant,
		coordinator: coordinator,
		journal:     journal,
		interval:    interval,
		logger:      logger,
	}
}

// Run executes cycles on a fixed interval until the context is cancelled.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval).Info("Sync loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync loop stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full cycle. Also invoked by the manual sync endpoint.
func (s *SyncService) RunCycle(ctx context.Context) *SyncResult {
	start := time.Now()

	result, err := s.reconciler.Sync(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncInFlight) {
			return nil
		}
		metrics.RecordSyncCycle("failure", time.Since(start))
		s.journal.LogCycleFailure(err)
		s.logger.WithError(err).Error("Reconciliation cycle failed")
		return nil
	}

	snapshot, err := s.accountant.RecordSnapshot(ctx)
	if err != nil {
		metrics.RecordSyncCycle("failure", time.Since(start))
		s.journal.LogCycleFailure(err)
		s.logger.WithError(err).Error("Snapshot stage failed")
		return result
	}

	s.advanceTransition(ctx)

	metrics.RecordSyncCycle("success", time.Since(start))
	s.journal.LogCycle(result, snapshot)

	return result
}

// advanceTransition runs one coordinator step when a transition is active.
// Its failures are transition-scoped and never fail the cycle.
func (s *SyncService) advanceTransition(ctx context.Context) {
	err := s.coordinator.Advance(ctx)
	if err == nil || errors.Is(err, ErrNoActiveTransition) {
		return
	}

	s.logger.WithError(err).Error("Transition advance failed")

	var migrationErr *MigrationError
	if errors.As(err, &migrationErr) {
		s.journal.LogTransitionEvent("failed", migrationErr.Error())
	}
}
