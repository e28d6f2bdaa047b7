package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/vivian5285/aitrade/types"
)

// Sim is an in-memory Gateway fed by a candle series. It backs paper
// trading and the engine tests, so the fusion/risk/grid logic runs the
// same code path against simulated and live venues.
//
// Limit orders rest until a candle trades through their price; market
// orders fill at the current close. Fills are perfect, no slippage.
type Sim struct {
	mu      sync.Mutex
	symbol  string
	candles []types.Candle
	cursor  int
	balance float64
	orders  map[string]*simOrder

	// RejectOrders makes every subsequent PlaceOrder fail with
	// ErrRejected. Used to exercise the failed-level path.
	RejectOrders bool
}

type simOrder struct {
	order  types.Order
	status types.OrderStatus
}

// NewSim starts the simulation at the first candle of the series.
func NewSim(symbol string, candles []types.Candle, startBalance float64) *Sim {
	return &Sim{
		symbol:  symbol,
		candles: candles,
		balance: startBalance,
		orders:  make(map[string]*simOrder),
	}
}

// Advance moves to the next candle and matches resting limit orders
// against it. Returns false when the series is exhausted.
func (s *Sim) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor+1 >= len(s.candles) {
		return false
	}
	s.cursor++
	bar := s.candles[s.cursor]
	for _, o := range s.orders {
		if o.status != types.StatusResting {
			continue
		}
		filled := (o.order.Side == types.Buy && bar.Low <= o.order.Price) ||
			(o.order.Side == types.Sell && bar.High >= o.order.Price)
		if filled {
			o.status = types.StatusFilled
		}
	}
	return true
}

// Price returns the close of the current candle.
func (s *Sim) Price() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candles[s.cursor].Close
}

func (s *Sim) Candles(_ context.Context, _, _ string, limit int) ([]types.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.candles[:s.cursor+1]
	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	out := make([]types.Candle, len(visible))
	copy(out, visible)
	return out, nil
}

func (s *Sim) AccountState(_ context.Context) (types.AccountState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.AccountState{
		TotalBalance:     s.balance,
		AvailableBalance: s.balance,
	}, nil
}

func (s *Sim) OrderStatus(_ context.Context, orderID string) (types.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return "", ErrUnavailable
	}
	return o.status, nil
}

func (s *Sim) PlaceOrder(_ context.Context, o types.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RejectOrders || o.Qty <= 0 {
		return "", ErrRejected
	}
	id := uuid.NewString()
	status := types.StatusResting
	if o.Type == types.Market {
		status = types.StatusFilled
	}
	s.orders[id] = &simOrder{order: o, status: status}
	return id, nil
}

func (s *Sim) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.status != types.StatusResting {
		return ErrRejected
	}
	o.status = types.StatusCancelled
	return nil
}

// SetBalance adjusts the simulated account balance (paper PnL is applied
// by the caller that tracks positions).
func (s *Sim) SetBalance(balance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = balance
}
