package services

import (
	"context"
	"fmt"

	"meridian-trader/interfaces"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AlpacaGateway implements interfaces.BrokerGateway against one Alpaca
// endpoint (paper or live). Decimal values from the SDK are converted to
// float64 at this boundary; optional fields are validated so callers never
// see partial data.
type AlpacaGateway struct {
	client *alpaca.Client
	mode   string
	logger *logrus.Logger
}

// NewAlpacaGateway creates a gateway for one trading mode.
func NewAlpacaGateway(apiKey, secretKey, baseURL, mode string) *AlpacaGateway {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: secretKey,
		BaseURL:   baseURL,
	})

	return &AlpacaGateway{
		client: client,
		mode:   mode,
		logger: logger,
	}
}

// Mode identifies the venue this gateway talks to.
func (g *AlpacaGateway) Mode() string {
	return g.mode
}

// ListPositions returns all positions currently held at the venue.
func (g *AlpacaGateway) ListPositions(ctx context.Context) ([]*interfaces.BrokerPosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	alpacaPositions, err := g.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %v", ErrGatewayUnavailable, err)
	}

	positions := make([]*interfaces.BrokerPosition, 0, len(alpacaPositions))
	for i := range alpacaPositions {
		position, err := g.convertPosition(&alpacaPositions[i])
		if err != nil {
			// Incomplete payload: fail the whole read rather than return
			// partial data.
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		positions = append(positions, position)
	}

	g.logger.WithFields(logrus.Fields{
		"mode":  g.mode,
		"count": len(positions),
	}).Debug("Fetched broker positions")

	return positions, nil
}

// GetAccount returns the venue's account totals.
func (g *AlpacaGateway) GetAccount(ctx context.Context) (*interfaces.BrokerAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	account, err := g.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", ErrGatewayUnavailable, err)
	}

	return &interfaces.BrokerAccount{
		Equity:      account.Equity.InexactFloat64(),
		BuyingPower: account.BuyingPower.InexactFloat64(),
		Cash:        account.Cash.InexactFloat64(),
	}, nil
}

// ClosePosition liquidates the full position for a venue symbol.
func (g *AlpacaGateway) ClosePosition(ctx context.Context, symbol string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	_, err := g.client.ClosePosition(symbol, alpaca.ClosePositionRequest{})
	if err != nil {
		return fmt.Errorf("failed to close position %s: %w", symbol, err)
	}

	g.logger.WithFields(logrus.Fields{
		"mode":   g.mode,
		"symbol": symbol,
	}).Info("Closed broker position")

	return nil
}

// OpenPosition establishes a position at the venue with a market order.
func (g *AlpacaGateway) OpenPosition(ctx context.Context, req *interfaces.OpenRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	side := alpaca.Buy
	if req.Side == "short" {
		side = alpaca.Sell
	}

	qty := decimal.NewFromFloat(req.Quantity)
	_, err := g.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return fmt.Errorf("failed to open position %s: %w", req.Symbol, err)
	}

	g.logger.WithFields(logrus.Fields{
		"mode":     g.mode,
		"symbol":   req.Symbol,
		"quantity": req.Quantity,
		"side":     req.Side,
	}).Info("Opened broker position")

	return nil
}

// CancelOrder cancels a working order by id.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := g.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// convertPosition validates an Alpaca position and converts it to the
// boundary struct. The SDK models current price, market value and unrealized
// P&L as optional; a missing value means the payload is stale.
func (g *AlpacaGateway) convertPosition(p *alpaca.Position) (*interfaces.BrokerPosition, error) {
	if p.CurrentPrice == nil || p.MarketValue == nil || p.UnrealizedPL == nil || p.UnrealizedPLPC == nil {
		return nil, fmt.Errorf("incomplete position payload for %s", p.Symbol)
	}

	return &interfaces.BrokerPosition{
		Symbol:           p.Symbol,
		Quantity:         p.Qty.InexactFloat64(),
		Side:             p.Side,
		EntryPrice:       p.AvgEntryPrice.InexactFloat64(),
		CurrentPrice:     p.CurrentPrice.InexactFloat64(),
		UnrealizedPnL:    p.UnrealizedPL.InexactFloat64(),
		UnrealizedPnLPct: p.UnrealizedPLPC.Mul(decimal.NewFromInt(100)).InexactFloat64(),
		MarketValue:      p.MarketValue.InexactFloat64(),
	}, nil
}
