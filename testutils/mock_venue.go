package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/vivian5285/aitrade/gateway"
	"github.com/vivian5285/aitrade/types"
)

// MockVenue is an in-memory stand-in for an exchange. It satisfies both
// gateway.MarketData and gateway.OrderGateway and lets a test script
// rejections, outages, and fills order by order.
type MockVenue struct {
	mu         sync.Mutex
	seq        int
	orders     map[string]types.Order
	statuses   map[string]types.OrderStatus
	placed     []types.Order
	cancelled  []string
	rejectNext bool
	downNext   bool

	candles    []types.Candle
	candlesErr error
	balance    float64
	positions  []types.Position
}

// NewMockVenue creates an empty venue with no candles and zero balance.
func NewMockVenue() *MockVenue {
	return &MockVenue{
		orders:   make(map[string]types.Order),
		statuses: make(map[string]types.OrderStatus),
	}
}

// RejectNext makes the next PlaceOrder call fail with gateway.ErrRejected.
func (v *MockVenue) RejectNext() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectNext = true
}

// DownNext makes the next data or order call fail with gateway.ErrUnavailable.
func (v *MockVenue) DownNext() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.downNext = true
}

// SetCandles installs the window returned by Candles.
func (v *MockVenue) SetCandles(candles []types.Candle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.candles = candles
}

// SetCandlesErr makes Candles return err until cleared with nil.
func (v *MockVenue) SetCandlesErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.candlesErr = err
}

// SetBalance sets the account balance reported by AccountState.
func (v *MockVenue) SetBalance(b float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balance = b
}

// SetPositions sets the open positions reported by AccountState.
func (v *MockVenue) SetPositions(ps []types.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = append([]types.Position(nil), ps...)
}

// MarkFilled flips a resting order to FILLED so a later status poll sees it.
func (v *MockVenue) MarkFilled(orderID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.statuses[orderID]; ok {
		v.statuses[orderID] = types.StatusFilled
	}
}

func (v *MockVenue) Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.downNext {
		v.downNext = false
		return nil, gateway.ErrUnavailable
	}
	if v.candlesErr != nil {
		return nil, v.candlesErr
	}
	out := v.candles
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]types.Candle(nil), out...), nil
}

func (v *MockVenue) AccountState(ctx context.Context) (types.AccountState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.downNext {
		v.downNext = false
		return types.AccountState{}, gateway.ErrUnavailable
	}
	return types.AccountState{
		TotalBalance:     v.balance,
		AvailableBalance: v.balance,
		OpenPositions:    append([]types.Position(nil), v.positions...),
	}, nil
}

func (v *MockVenue) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.statuses[orderID]
	if !ok {
		return "", gateway.ErrUnavailable
	}
	return st, nil
}

func (v *MockVenue) PlaceOrder(ctx context.Context, o types.Order) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.downNext {
		v.downNext = false
		return "", gateway.ErrUnavailable
	}
	if v.rejectNext || o.Qty <= 0 {
		v.rejectNext = false
		return "", gateway.ErrRejected
	}
	v.seq++
	id := fmt.Sprintf("mock-%d", v.seq)
	v.orders[id] = o
	if o.Type == types.Market {
		v.statuses[id] = types.StatusFilled
	} else {
		v.statuses[id] = types.StatusResting
	}
	v.placed = append(v.placed, o)
	return id, nil
}

func (v *MockVenue) CancelOrder(ctx context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.statuses[orderID] != types.StatusResting {
		return gateway.ErrRejected
	}
	v.statuses[orderID] = types.StatusCancelled
	v.cancelled = append(v.cancelled, orderID)
	return nil
}

// PlacedCount returns how many orders were accepted.
func (v *MockVenue) PlacedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.placed)
}

// PlacedOrders returns a copy of every accepted order, oldest first.
func (v *MockVenue) PlacedOrders() []types.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.Order(nil), v.placed...)
}

// LastOrder returns the most recently accepted order.
func (v *MockVenue) LastOrder() types.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.placed) == 0 {
		return types.Order{}
	}
	return v.placed[len(v.placed)-1]
}

// CancelledCount returns how many cancellations succeeded.
func (v *MockVenue) CancelledCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cancelled)
}
