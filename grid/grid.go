// Package grid manages a self-replenishing ladder of resting limit
// orders around an anchor price. Level prices are immutable once placed;
// a re-grid replaces the whole set.
package grid

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/gateway"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/logger"
	"github.com/vivian5285/aitrade/metrics"
	"github.com/vivian5285/aitrade/types"
)

// referenceVolatility is the realized volatility at which the adaptive
// spacing equals the configured base spacing. Tunable policy.
const referenceVolatility = 0.01

// LevelState is the lifecycle stage of one grid level. A level walks
// PENDING -> RESTING -> FILLED -> HEDGED at most once per generation;
// HEDGED and FAILED are terminal.
type LevelState int

const (
	StatePending LevelState = iota
	StateResting
	StateFilled
	StateHedged
	StateFailed
)

func (s LevelState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateResting:
		return "RESTING"
	case StateFilled:
		return "FILLED"
	case StateHedged:
		return "HEDGED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Level is one rung of the ladder.
type Level struct {
	Price        float64
	Side         types.Side
	Qty          float64
	OrderID      string
	State        LevelState
	FillPrice    float64
	HedgeOrderID string
}

// Venue is the slice of the gateway the grid needs: order placement,
// cancellation, and status polling.
type Venue interface {
	gateway.OrderGateway
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)
}

// Manager owns the current level set. Not safe for concurrent use; the
// live loop drives it from a single goroutine.
type Manager struct {
	cfg        config.Grid
	symbol     string
	gw         Venue
	log        logger.Logger
	levels     []*Level
	anchor     float64
	generation int
}

// NewManager builds an empty manager; call Setup to place the first grid.
func NewManager(cfg config.Grid, symbol string, venue Venue, log logger.Logger) *Manager {
	return &Manager{cfg: cfg, symbol: symbol, gw: venue, log: log}
}

// Anchor returns the anchor price of the current generation (0 when no
// grid is active).
func (m *Manager) Anchor() float64 { return m.anchor }

// Generation counts completed setups; each re-grid bumps it.
func (m *Manager) Generation() int { return m.generation }

// Levels returns a copy of the current level set for inspection.
func (m *Manager) Levels() []Level {
	out := make([]Level, len(m.levels))
	for i, l := range m.levels {
		out[i] = *l
	}
	return out
}

// Spacing computes the volatility-adjusted level spacing: wider when the
// market is moving, narrower when calm, clamped to the configured range.
// Undefined volatility falls back to the base spacing.
func (m *Manager) Spacing(vol indicator.Value) float64 {
	spacing := m.cfg.SpacingPct
	if v, ok := vol.Float(); ok && v > 0 {
		spacing = m.cfg.SpacingPct * (v / referenceVolatility)
	}
	return math.Max(m.cfg.MinSpacingPct, math.Min(spacing, m.cfg.MaxSpacingPct))
}

// BuildLevels generates the ladder without placing orders: N buys below
// the anchor and N sells above it, prices compounded per step.
func BuildLevels(anchor float64, size int, spacing, qty float64) []*Level {
	levels := make([]*Level, 0, 2*size)
	for k := 1; k <= size; k++ {
		levels = append(levels, &Level{
			Price: anchor * math.Pow(1-spacing, float64(k)),
			Side:  types.Buy,
			Qty:   qty,
		})
	}
	for k := 1; k <= size; k++ {
		levels = append(levels, &Level{
			Price: anchor * math.Pow(1+spacing, float64(k)),
			Side:  types.Sell,
			Qty:   qty,
		})
	}
	return levels
}

// Setup discards any previous level set, cancels its resting orders, and
// places a fresh ladder around the anchor. Rejected placements mark the
// level FAILED; the rest of the grid continues.
func (m *Manager) Setup(ctx context.Context, anchor, qty float64, vol indicator.Value) error {
	if anchor <= 0 || qty <= 0 {
		return fmt.Errorf("grid: invalid anchor %v or qty %v", anchor, qty)
	}
	m.cancelResting(ctx)

	spacing := m.Spacing(vol)
	m.levels = BuildLevels(anchor, m.cfg.Size, spacing, qty)
	m.anchor = anchor
	m.generation++

	resting := 0
	for _, lvl := range m.levels {
		id, err := m.gw.PlaceOrder(ctx, types.Order{
			Symbol:  m.symbol,
			Side:    lvl.Side,
			Type:    types.Limit,
			Qty:     lvl.Qty,
			Price:   lvl.Price,
			Comment: fmt.Sprintf("grid g%d", m.generation),
		})
		if err != nil {
			if errors.Is(err, gateway.ErrRejected) {
				lvl.State = StateFailed
				metrics.OrdersRejected.WithLabelValues("grid").Inc()
				m.log.Warn("grid_level_rejected",
					logger.String("side", string(lvl.Side)),
					logger.Float64("price", lvl.Price),
				)
				continue
			}
			return err
		}
		lvl.OrderID = id
		lvl.State = StateResting
		resting++
		metrics.OrdersSubmitted.WithLabelValues("grid").Inc()
	}
	metrics.GridLevelsResting.Set(float64(resting))
	m.log.Info("grid_placed",
		logger.Float64("anchor", anchor),
		logger.Float64("spacing", spacing),
		logger.Int("levels", len(m.levels)),
		logger.Int("resting", resting),
		logger.Int("generation", m.generation),
	)
	return nil
}

// CheckFills polls the venue for every resting level and hedges the
// filled ones. Errors on individual status calls skip that level for
// this pass; the next poll retries.
func (m *Manager) CheckFills(ctx context.Context) {
	for _, lvl := range m.levels {
		if lvl.State != StateResting {
			continue
		}
		st, err := m.gw.OrderStatus(ctx, lvl.OrderID)
		if err != nil {
			continue
		}
		switch st {
		case types.StatusFilled:
			m.ObserveFill(ctx, lvl.OrderID)
		case types.StatusRejected, types.StatusCancelled:
			lvl.State = StateFailed
		}
	}
	m.refreshRestingGauge()
}

// ObserveFill transitions the level that owns orderID through
// FILLED -> HEDGED. Repeated observations of an already-filled level are
// no-ops; one fill produces exactly one hedge order.
func (m *Manager) ObserveFill(ctx context.Context, orderID string) {
	for _, lvl := range m.levels {
		if lvl.OrderID != orderID {
			continue
		}
		if lvl.State != StateResting {
			// already filled, hedged, or failed: idempotent no-op
			return
		}
		lvl.State = StateFilled
		lvl.FillPrice = lvl.Price
		m.placeHedge(ctx, lvl)
		return
	}
}

// placeHedge issues the opposite-side order that books the spacing as
// profit. A rejected hedge fails the level; it is excluded from the next
// re-grid rather than retried in place.
func (m *Manager) placeHedge(ctx context.Context, lvl *Level) {
	hedgePrice := lvl.FillPrice * (1 + m.cfg.ProfitTargetPct)
	if lvl.Side == types.Sell {
		hedgePrice = lvl.FillPrice * (1 - m.cfg.ProfitTargetPct)
	}
	id, err := m.gw.PlaceOrder(ctx, types.Order{
		Symbol:  m.symbol,
		Side:    lvl.Side.Opposite(),
		Type:    types.Limit,
		Qty:     lvl.Qty,
		Price:   hedgePrice,
		Comment: "grid hedge",
	})
	if err != nil {
		lvl.State = StateFailed
		metrics.OrdersRejected.WithLabelValues("grid_hedge").Inc()
		m.log.Warn("grid_hedge_rejected",
			logger.Float64("fill_price", lvl.FillPrice),
			logger.Err(err),
		)
		return
	}
	lvl.HedgeOrderID = id
	lvl.State = StateHedged
	metrics.GridHedges.Inc()
	m.log.Info("grid_hedged",
		logger.String("side", string(lvl.Side)),
		logger.Float64("fill_price", lvl.FillPrice),
		logger.Float64("hedge_price", hedgePrice),
	)
}

// NeedsRegrid reports whether the ladder is spent: no level is resting
// or awaiting its hedge any more. Levels stuck in PENDING (a setup that
// aborted before placing them) do not count as live, so an interrupted
// setup is retried instead of wedging the grid.
func (m *Manager) NeedsRegrid() bool {
	for _, lvl := range m.levels {
		if lvl.State == StateResting || lvl.State == StateFilled {
			return false
		}
	}
	return true
}

func (m *Manager) cancelResting(ctx context.Context) {
	for _, lvl := range m.levels {
		if lvl.State == StateResting {
			_ = m.gw.CancelOrder(ctx, lvl.OrderID)
		}
	}
}

func (m *Manager) refreshRestingGauge() {
	resting := 0
	for _, lvl := range m.levels {
		if lvl.State == StateResting {
			resting++
		}
	}
	metrics.GridLevelsResting.Set(float64(resting))
}
