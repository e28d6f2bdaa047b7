// Package gateway defines the market-data and order capabilities the
// engine consumes. Exchange wire protocols live behind these interfaces;
// the engine never sees exchange-specific payloads.
package gateway

import (
	"context"
	"errors"

	"github.com/vivian5285/aitrade/types"
)

// ErrUnavailable marks a failed or timed-out market-data call. The
// current tick is abandoned and the loop proceeds to the next one.
var ErrUnavailable = errors.New("gateway: market data unavailable")

// ErrRejected marks an order the venue refused (price, quantity, or
// leverage filters). Recoverable at the grid-level granularity.
var ErrRejected = errors.New("gateway: order rejected")

// MarketData supplies read-only market and account snapshots.
type MarketData interface {
	// Candles returns up to limit bars for the symbol/interval, ordered
	// by strictly increasing open time.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
	AccountState(ctx context.Context) (types.AccountState, error)
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)
}

// OrderGateway places and cancels orders.
type OrderGateway interface {
	// PlaceOrder returns the venue order ID, or ErrRejected.
	PlaceOrder(ctx context.Context, o types.Order) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Gateway is the full capability surface a live engine needs.
type Gateway interface {
	MarketData
	OrderGateway
}
