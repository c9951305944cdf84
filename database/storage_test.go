package database

import (
	"path/filepath"
	"testing"
	"time"

	"meridian-trader/models"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()

	storage, err := NewLocalStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open test ledger: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return storage
}

func TestPositionRoundTrip(t *testing.T) {
	storage := newTestStorage(t)

	position := &models.DBPosition{
		PositionID:     "pos_1",
		Symbol:         "AAPL",
		Direction:      models.DirectionLong,
		Quantity:       10,
		EntryPrice:     200,
		Status:         models.PositionOpen,
		EntryTimestamp: time.Now().UTC(),
	}
	if err := storage.SavePosition(position); err != nil {
		t.Fatal(err)
	}

	loaded, err := storage.GetPosition("pos_1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Symbol != "AAPL" || loaded.Quantity != 10 {
		t.Errorf("unexpected position: %+v", loaded)
	}

	open, err := storage.GetOpenPositions()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}

	closed, err := storage.ListPositions(models.PositionClosed)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 0 {
		t.Errorf("closed positions = %d, want 0", len(closed))
	}
}

func TestLockAndUnlockPositions(t *testing.T) {
	storage := newTestStorage(t)

	for _, id := range []string{"pos_1", "pos_2", "pos_3"} {
		if err := storage.SavePosition(&models.DBPosition{
			PositionID:     id,
			Symbol:         id,
			Status:         models.PositionOpen,
			EntryTimestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	locked, err := storage.LockPositions("tr_1", []string{"pos_1", "pos_2"})
	if err != nil {
		t.Fatal(err)
	}
	if locked != 2 {
		t.Fatalf("locked = %d, want 2", locked)
	}

	// Already-locked rows are not locked again by another transition.
	relocked, err := storage.LockPositions("tr_2", []string{"pos_1"})
	if err != nil {
		t.Fatal(err)
	}
	if relocked != 0 {
		t.Errorf("relocked = %d, want 0", relocked)
	}

	unlocked, err := storage.UnlockTransitionPositions("tr_1")
	if err != nil {
		t.Fatal(err)
	}
	if unlocked != 2 {
		t.Fatalf("unlocked = %d, want 2", unlocked)
	}

	// Unlock keeps the transition reference for audit.
	positions, err := storage.GetTransitionPositions("tr_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 {
		t.Fatalf("transition positions = %d, want 2", len(positions))
	}
	for _, p := range positions {
		if p.InTransition {
			t.Errorf("%s still locked", p.PositionID)
		}
	}
}

func TestActiveTransitionQuery(t *testing.T) {
	storage := newTestStorage(t)

	active, err := storage.GetActiveTransition()
	if err != nil {
		t.Fatal(err)
	}
	if active != nil {
		t.Fatalf("expected no active transition, got %+v", active)
	}

	if err := storage.SaveTransition(&models.DBTransition{
		TransitionID: "tr_done",
		Status:       models.TransitionCompleted,
	}); err != nil {
		t.Fatal(err)
	}
	if err := storage.SaveTransition(&models.DBTransition{
		TransitionID: "tr_active",
		Status:       models.TransitionPending,
	}); err != nil {
		t.Fatal(err)
	}

	active, err = storage.GetActiveTransition()
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.TransitionID != "tr_active" {
		t.Errorf("active transition = %+v, want tr_active", active)
	}
}

func TestSnapshotQueries(t *testing.T) {
	storage := newTestStorage(t)

	latest, err := storage.GetLatestSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatal("expected nil latest snapshot on empty ledger")
	}

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := storage.SaveSnapshot(&models.DBPortfolioSnapshot{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			TotalEquity: float64(1000 * (i + 1)),
			TradingMode: models.ModePaper,
		}); err != nil {
			t.Fatal(err)
		}
	}

	latest, err = storage.GetLatestSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if latest.TotalEquity != 3000 {
		t.Errorf("latest equity = %v, want 3000", latest.TotalEquity)
	}

	history, err := storage.GetSnapshotHistory(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d rows, want 2", len(history))
	}
	if history[0].TotalEquity != 3000 {
		t.Errorf("history not newest first: %v", history[0].TotalEquity)
	}
}
