package interfaces

import (
	"context"
)

// BrokerGateway defines the capability surface consumed from a trading venue.
// Implementations must return an explicit error rather than partial data when
// the venue is unreachable or responds with an incomplete payload.
type BrokerGateway interface {
	// ListPositions returns all positions currently held at the venue.
	ListPositions(ctx context.Context) ([]*BrokerPosition, error)
	// GetAccount returns the venue's account totals.
	GetAccount(ctx context.Context) (*BrokerAccount, error)
	// ClosePosition liquidates the full position for a venue symbol.
	ClosePosition(ctx context.Context, symbol string) error
	// OpenPosition establishes a position at the venue.
	OpenPosition(ctx context.Context, req *OpenRequest) error
	// CancelOrder cancels a working order by id.
	CancelOrder(ctx context.Context, orderID string) error
	// Mode identifies the venue ("paper" or "live").
	Mode() string
}

// BrokerPosition is a single venue-reported position, validated at the
// boundary. Quantity is signed: negative means short.
type BrokerPosition struct {
	Symbol           string
	Quantity         float64
	Side             string // "long" or "short"
	EntryPrice       float64
	CurrentPrice     float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	MarketValue      float64
}

// BrokerAccount is the venue's account snapshot.
type BrokerAccount struct {
	Equity      float64
	BuyingPower float64
	Cash        float64
}

// OpenRequest asks the venue to establish a position.
type OpenRequest struct {
	Symbol   string
	Quantity float64
	Side     string // "long" or "short"
}
