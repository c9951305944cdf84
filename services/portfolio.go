package services

import (
	"context"
	"fmt"
	"time"

	"meridian-trader/database"
	"meridian-trader/interfaces"
	"meridian-trader/metrics"
	"meridian-trader/models"

	"github.com/sirupsen/logrus"
)

// PortfolioAccountant derives one immutable portfolio snapshot per completed
// reconciliation pass from the broker's account totals and the reconciled
// open-position set.
type PortfolioAccountant struct {
	gateway     interfaces.BrokerGateway
	storage     *database.LocalStorage
	tradingMode string
	logger      *logrus.Logger
}

// NewPortfolioAccountant creates a portfolio accountant.
func NewPortfolioAccountant(gateway interfaces.BrokerGateway, storage *database.LocalStorage, tradingMode string) *PortfolioAccountant {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &PortfolioAccountant{
		gateway:     gateway,
		storage:     storage,
		tradingMode: tradingMode,
		logger:      logger,
	}
}

// RecordSnapshot computes and persists a portfolio snapshot. The open
// positions are read after reconciliation so the aggregates reflect the
// canonical set.
func (a *PortfolioAccountant) RecordSnapshot(ctx context.Context) (*models.DBPortfolioSnapshot, error) {
	account, err := a.gateway.GetAccount(ctx)
	if err != nil {
		return nil, err
	}

	positions, err := a.storage.GetOpenPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to read open positions: %w", err)
	}

	snapshot := a.buildSnapshot(account, positions, time.Now().UTC())

	if err := a.storage.SaveSnapshot(snapshot); err != nil {
		return nil, err
	}

	metrics.SetPortfolio(snapshot.TotalEquity, snapshot.ExposurePct)

	a.logger.WithFields(logrus.Fields{
		"total_equity":   snapshot.TotalEquity,
		"margin_used":    snapshot.MarginUsed,
		"exposure_pct":   snapshot.ExposurePct,
		"total_pnl":      snapshot.TotalPnL,
		"open_positions": snapshot.OpenPositionsCount,
	}).Info("Recorded portfolio snapshot")

	return snapshot, nil
}

// buildSnapshot derives the snapshot arithmetic. Market value per position is
// reconstructed from entry price, quantity and unrealized P&L.
//
// DailyPnL mirrors the current unrealized aggregate: the value is not reset
// at day boundaries. Consumers needing a true daily baseline must diff
// snapshots themselves.
func (a *PortfolioAccountant) buildSnapshot(account *interfaces.BrokerAccount, positions []*models.DBPosition, now time.Time) *models.DBPortfolioSnapshot {
	var totalMarketValue, totalPnL float64
	for _, p := range positions {
		totalMarketValue += positionMarketValue(p)
		totalPnL += p.UnrealizedPnL
	}

	exposurePct := 0.0
	totalPnLPct := 0.0
	if account.Equity > 0 {
		exposurePct = totalMarketValue / account.Equity * 100
		totalPnLPct = totalPnL / account.Equity * 100
	}

	return &models.DBPortfolioSnapshot{
		Timestamp:          now,
		TotalEquity:        account.Equity,
		AvailableBalance:   account.BuyingPower,
		MarginUsed:         account.Equity - account.BuyingPower,
		OpenPositionsCount: len(positions),
		ExposurePct:        exposurePct,
		TotalPnL:           totalPnL,
		TotalPnLPct:        totalPnLPct,
		DailyPnL:           totalPnL,
		DailyPnLPct:        totalPnLPct,
		TradingMode:        a.tradingMode,
	}
}

// positionMarketValue returns the absolute market value of an open position:
// cost basis plus the unrealized move.
func positionMarketValue(p *models.DBPosition) float64 {
	costBasis := p.EntryPrice * p.Quantity
	if p.Direction == models.DirectionShort {
		return abs(costBasis - p.UnrealizedPnL)
	}
	return abs(costBasis + p.UnrealizedPnL)
}
