package ports

import (
	"context"
	"time"

	"llmTraderBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       string    // Exchange's order ID
	ClientOrderID string    // Caller-assigned order ID
	Instrument    string    // Instrument the order was placed on
	AvgPrice      float64   // Average filled price (may be 0 immediately after placement)
	ExecutedQty   float64   // Quantity filled so far, in contracts
	Status        string    // Exchange order status
	Timestamp     time.Time // Time the response was generated
}

// AttachedProtection carries stop-loss/take-profit triggers to attach to an
// opening market order. Zero values mean "none".
type AttachedProtection struct {
	StopLoss   float64
	TakeProfit float64
}

// ExchangeClient defines the interface for interacting with a futures exchange.
// Request authentication (timestamp + method + path + body digest signing) is
// the adapter's concern; nothing behind this interface leaks venue specifics.
type ExchangeClient interface {
	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetAccountSnapshot retrieves current total and available equity.
	GetAccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error)

	// GetTickerPrice retrieves the last traded price for an instrument.
	GetTickerPrice(ctx context.Context, instrument string) (float64, error)

	// GetInstrument retrieves trading rules (lot step, contract unit value).
	GetInstrument(ctx context.Context, instrument string) (*domain.Instrument, error)

	// GetPosition retrieves the current position snapshot for an instrument,
	// with StopLoss/TakeProfit filled in from pending conditional orders.
	// Returns nil, nil when no position exists.
	GetPosition(ctx context.Context, instrument string) (*domain.Position, error)

	// SetLeverage sets the leverage for an instrument and posture side.
	SetLeverage(ctx context.Context, instrument string, leverage int, side domain.PositionSide) error

	// PlaceMarketOrder submits a market order. reduceOnly guarantees the order
	// can only shrink an existing position. attach is honored only by opening
	// orders; adapters reject or ignore it when reduceOnly is set.
	PlaceMarketOrder(ctx context.Context, instrument string, side domain.OrderSide, posSide domain.PositionSide, reduceOnly bool, size string, attach *AttachedProtection) (*OrderResponse, error)

	// PlaceAlgoOrder places a conditional (trigger) order and returns its ID.
	PlaceAlgoOrder(ctx context.Context, instrument string, posSide domain.PositionSide, trigger float64, kind domain.AlgoOrderKind) (string, error)

	// GetAlgoOrders lists the pending conditional orders for an instrument.
	GetAlgoOrders(ctx context.Context, instrument string) ([]*domain.AlgoOrder, error)

	// CancelAlgoOrders cancels pending conditional orders by ID.
	CancelAlgoOrders(ctx context.Context, instrument string, ids []string) error

	// ClosePosition closes the full position on one posture side at market.
	// Returns an error wrapping ErrPositionNotFound when that side is flat.
	ClosePosition(ctx context.Context, instrument string, side domain.PositionSide) error
}
