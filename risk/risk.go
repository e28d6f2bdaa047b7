// Package risk converts fused decisions into bounded order intents and
// enforces the daily and portfolio risk ceilings.
package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/strategy"
	"github.com/vivian5285/aitrade/types"
)

// ErrLimitBreached marks a risk-ceiling rejection. It is fatal for new
// entries until the next daily reset; existing positions are still
// managed for exit.
var ErrLimitBreached = errors.New("risk limit breached")

// Breach carries the operator-visible reason for a limit rejection.
type Breach struct {
	Reason string
}

func (b *Breach) Error() string { return fmt.Sprintf("risk limit breached: %s", b.Reason) }
func (b *Breach) Unwrap() error { return ErrLimitBreached }

// Regime is the coarse volatility classification driving the policy
// multipliers.
type Regime int

const (
	RegimeNormal Regime = iota
	RegimeCalm
	RegimeVolatile
)

// Controller owns the risk state and produces sized intents. It is not
// safe for concurrent use; the live loop is single-threaded by design.
type Controller struct {
	cfg   config.Risk
	state *State
}

// NewController seeds the state with the current balance.
func NewController(cfg config.Risk, now time.Time, balance float64) *Controller {
	return &Controller{cfg: cfg, state: NewState(now, balance)}
}

// State exposes a copy of the current counters.
func (c *Controller) State() State { return *c.state }

// ResetIfNewDay forwards the UTC rollover check; the engine clears its
// entry latch when this returns true.
func (c *Controller) ResetIfNewDay(now time.Time) bool { return c.state.ResetIfNewDay(now) }

// RecordClose folds a closed position's PnL into the daily counters.
func (c *Controller) RecordClose(pnl, balance float64) { c.state.RecordClose(pnl, balance) }

// Classify derives the volatility regime and trend flag from the
// snapshot. Undefined volatility reads as the normal regime.
func (c *Controller) Classify(snap indicator.Snapshot) (Regime, bool) {
	regime := RegimeNormal
	if vol, ok := snap.Volatility.Float(); ok {
		switch {
		case vol > c.cfg.HighVolatility:
			regime = RegimeVolatile
		case vol < c.cfg.LowVolatility:
			regime = RegimeCalm
		}
	}
	trending := false
	if fast, ok := snap.FastEMA.Float(); ok {
		if slow, ok := snap.SlowEMA.Float(); ok && slow > 0 {
			trending = math.Abs(fast-slow)/slow > 0.005
		}
	}
	return regime, trending
}

// Size turns a fused decision into a bounded order intent, or rejects it
// with a Breach. The ceilings are checked before any sizing so a breach
// is reported even when the intent itself would have been tiny.
func (c *Controller) Size(decision strategy.Decision, account types.AccountState,
	snap indicator.Snapshot, now time.Time) (types.OrderIntent, error) {

	c.state.ResetIfNewDay(now)

	if c.state.DailyTradeCount >= c.cfg.MaxDailyTrades {
		return types.OrderIntent{}, &Breach{Reason: "max daily trades reached"}
	}
	if c.state.DailyPnL <= -c.cfg.MaxDailyLossFraction*account.TotalBalance {
		return types.OrderIntent{}, &Breach{Reason: "daily loss limit reached"}
	}
	if c.state.CurrentDrawdown >= c.cfg.MaxDrawdownFraction {
		return types.OrderIntent{}, &Breach{Reason: "max drawdown reached"}
	}

	available := account.TotalBalance*c.cfg.MaxTotalRiskFraction - account.OpenNotional()
	if available < c.cfg.MinNotional {
		return types.OrderIntent{}, &Breach{Reason: "insufficient risk budget"}
	}

	price := snap.Close
	if price <= 0 {
		return types.OrderIntent{}, &Breach{Reason: "no valid market price"}
	}

	regime, trending := c.Classify(snap)
	fraction := c.cfg.PerTradeRiskFraction
	if regime == RegimeVolatile {
		fraction *= 0.5
	}
	if trending {
		fraction *= 1.25
	}
	fraction = math.Min(fraction, 1)

	notional := account.TotalBalance * fraction
	if notional < c.cfg.MinNotional {
		notional = c.cfg.MinNotional
	}
	if notional > c.cfg.MaxNotional {
		notional = c.cfg.MaxNotional
	}
	if notional > available {
		notional = available
	}

	qty := roundToLot(notional/price, c.cfg.LotSize)
	if qty <= 0 {
		return types.OrderIntent{}, &Breach{Reason: "quantity below lot size"}
	}

	leverage := c.leverageFor(regime, trending)
	stopFrac, tpFrac := c.exitFractions(snap)

	side := types.Buy
	stop := price * (1 - stopFrac)
	take := price * (1 + tpFrac)
	if decision.Direction == types.DirSell {
		side = types.Sell
		stop = price * (1 + stopFrac)
		take = price * (1 - tpFrac)
	}

	return types.OrderIntent{
		Side:       side,
		Qty:        qty,
		Notional:   qty * price,
		Leverage:   leverage,
		StopLoss:   stop,
		TakeProfit: take,
		Strength:   decision.Strength,
	}, nil
}

// leverageFor derives leverage from the regime, clamped to [1, max].
// High volatility halves it, a clean trend adds half a turn.
func (c *Controller) leverageFor(regime Regime, trending bool) float64 {
	lev := c.cfg.MaxLeverage / 2
	if regime == RegimeVolatile {
		lev /= 2
	}
	if trending {
		lev *= 1.5
	}
	return math.Max(1, math.Min(lev, c.cfg.MaxLeverage))
}

// exitFractions derives the stop-loss and take-profit offsets from
// realized volatility, clamped to the configured ranges.
func (c *Controller) exitFractions(snap indicator.Snapshot) (stop, take float64) {
	vol := snap.Volatility.Or(c.cfg.LowVolatility)
	stop = clampRange(vol*2, c.cfg.StopLossMinPct, c.cfg.StopLossMaxPct)
	take = clampRange(vol*3, c.cfg.TakeProfitMinPct, c.cfg.TakeProfitMaxPct)
	return stop, take
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// roundToLot floors a quantity to the instrument's lot-size granularity.
func roundToLot(qty, lot float64) float64 {
	if lot <= 0 {
		return qty
	}
	return math.Floor(qty/lot) * lot
}
