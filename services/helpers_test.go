package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meridian-trader/database"
	"meridian-trader/interfaces"
	"meridian-trader/models"
)

func newTestStorage(t *testing.T) *database.LocalStorage {
	t.Helper()

	storage, err := database.NewLocalStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open test ledger: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return storage
}

// fakeGateway is an in-memory BrokerGateway for tests.
type fakeGateway struct {
	mode      string
	positions []*interfaces.BrokerPosition
	account   *interfaces.BrokerAccount

	listErr  error
	closeErr error
	openErr  error

	closedSymbols []string
	openRequests  []*interfaces.OpenRequest
}

func (f *fakeGateway) ListPositions(ctx context.Context) ([]*interfaces.BrokerPosition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.positions, nil
}

func (f *fakeGateway) GetAccount(ctx context.Context) (*interfaces.BrokerAccount, error) {
	if f.account == nil {
		return nil, errors.New("no account configured")
	}
	return f.account, nil
}

func (f *fakeGateway) ClosePosition(ctx context.Context, symbol string) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closedSymbols = append(f.closedSymbols, symbol)
	return nil
}

func (f *fakeGateway) OpenPosition(ctx context.Context, req *interfaces.OpenRequest) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.openRequests = append(f.openRequests, req)
	return nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (f *fakeGateway) Mode() string {
	if f.mode == "" {
		return models.ModePaper
	}
	return f.mode
}

// flakyStore wraps a real ledger and injects write failures for selected
// positions.
type flakyStore struct {
	*database.LocalStorage
	failCreate  map[string]bool // by symbol
	failRefresh map[string]bool // by position id
	failClose   map[string]bool // by position id
}

func (f *flakyStore) SavePosition(position *models.DBPosition) error {
	if f.failCreate[position.Symbol] {
		return errors.New("simulated write failure")
	}
	return f.LocalStorage.SavePosition(position)
}

func (f *flakyStore) RefreshOpenPosition(positionID string, quantity, entryPrice, unrealizedPnL, unrealizedPnLPct float64) (int64, error) {
	if f.failRefresh[positionID] {
		return 0, errors.New("simulated write failure")
	}
	return f.LocalStorage.RefreshOpenPosition(positionID, quantity, entryPrice, unrealizedPnL, unrealizedPnLPct)
}

func (f *flakyStore) CloseUnlockedPosition(positionID, exitReason string, exitPrice, realizedPnL, realizedPnLPct float64, at time.Time) (int64, error) {
	if f.failClose[positionID] {
		return 0, errors.New("simulated write failure")
	}
	return f.LocalStorage.CloseUnlockedPosition(positionID, exitReason, exitPrice, realizedPnL, realizedPnLPct, at)
}

func seedOpenPosition(t *testing.T, storage *database.LocalStorage, id, symbol string, entryPrice, quantity, unrealized, unrealizedPct float64) *models.DBPosition {
	t.Helper()

	position := &models.DBPosition{
		PositionID:       id,
		Symbol:           symbol,
		Direction:        models.DirectionLong,
		Quantity:         quantity,
		EntryPrice:       entryPrice,
		Leverage:         1,
		UnrealizedPnL:    unrealized,
		UnrealizedPnLPct: unrealizedPct,
		Status:           models.PositionOpen,
		EntryTimestamp:   time.Now().UTC().Add(-time.Hour),
	}
	if err := storage.SavePosition(position); err != nil {
		t.Fatalf("failed to seed position %s: %v", symbol, err)
	}
	return position
}
