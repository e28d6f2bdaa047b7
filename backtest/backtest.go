// Package backtest replays a candle series through the indicator and
// fusion pipeline with a simplified single-position tracker. A run is a
// pure function of (candles, parameters, initial capital); two runs over
// the same inputs produce identical results.
package backtest

import (
	"math"
	"time"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/strategy"
	"github.com/vivian5285/aitrade/types"
)

// annualization factor for the Sharpe-like ratio, daily bars assumed
const sharpeAnnualization = 252

// Params is the subset of configuration a backtest run consumes.
type Params struct {
	Indicators     config.Indicators
	Strategies     []string
	MinAgree       int
	CommissionRate float64
}

// ParamsFrom extracts backtest parameters from a full engine config.
func ParamsFrom(cfg config.Config) Params {
	return Params{
		Indicators:     cfg.Indicators,
		Strategies:     cfg.Strategies,
		MinAgree:       cfg.MinAgree,
		CommissionRate: cfg.CommissionRate,
	}
}

// Trade is one closed round trip. PnL is per unit of exposure, net of
// commission.
type Trade struct {
	Side       types.PositionSide
	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	ExitReason string
}

// Result aggregates a finished run.
type Result struct {
	Trades       []Trade
	Equity       []float64 // initial capital, then one point per close
	InitialCap   float64
	FinalCap     float64
	TotalReturn  float64
	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64
	Sharpe       float64
}

type openPosition struct {
	side       types.PositionSide
	entryIndex int
	entryTime  time.Time
	entryPrice float64
}

// Run replays the candles in order. At index i only candles [0..i] are
// visible to the indicators and strategies. A position opens on a fused
// decision when flat and closes on the first opposing decision; any
// position still open at the end is closed at the final bar.
func Run(candles []types.Candle, params Params, initialCapital float64) (Result, error) {
	fuser, err := strategy.NewFuser(params.Strategies, params.MinAgree, params.Indicators)
	if err != nil {
		return Result{}, err
	}
	calc := indicator.New(params.Indicators)

	var (
		trades   []Trade
		open     *openPosition
		prev     indicator.Snapshot
		havePrev bool
	)
	for i, bar := range candles {
		snap, err := calc.Compute(candles[:i+1])
		if err != nil {
			continue
		}
		if havePrev {
			if decision, ok := fuser.Evaluate(prev, snap); ok {
				switch {
				case open == nil:
					side := types.Long
					if decision.Direction == types.DirSell {
						side = types.Short
					}
					open = &openPosition{
						side:       side,
						entryIndex: i,
						entryTime:  bar.OpenTime,
						entryPrice: snap.Close,
					}
				case opposes(open.side, decision.Direction):
					trades = append(trades, closeTrade(open, i, bar.OpenTime, snap.Close,
						params.CommissionRate, "opposing_signal"))
					open = nil
				}
			}
		}
		prev = snap
		havePrev = true
	}
	if open != nil && len(candles) > 0 {
		last := len(candles) - 1
		trades = append(trades, closeTrade(open, last, candles[last].OpenTime,
			candles[last].Close, params.CommissionRate, "end_of_data"))
	}
	return summarize(trades, initialCapital), nil
}

func opposes(side types.PositionSide, dir types.Direction) bool {
	return (side == types.Long && dir == types.DirSell) ||
		(side == types.Short && dir == types.DirBuy)
}

func closeTrade(open *openPosition, exitIndex int, exitTime time.Time,
	exitPrice, commissionRate float64, reason string) Trade {

	sign := 1.0
	if open.side == types.Short {
		sign = -1.0
	}
	gross := (exitPrice - open.entryPrice) * sign
	net := gross - math.Abs(gross)*commissionRate
	return Trade{
		Side:       open.side,
		EntryIndex: open.entryIndex,
		ExitIndex:  exitIndex,
		EntryTime:  open.entryTime,
		ExitTime:   exitTime,
		EntryPrice: open.entryPrice,
		ExitPrice:  exitPrice,
		PnL:        net,
		ExitReason: reason,
	}
}

// summarize computes the aggregate statistics over closed trades.
func summarize(trades []Trade, initialCapital float64) Result {
	equity := make([]float64, 0, len(trades)+1)
	equity = append(equity, initialCapital)

	var (
		capital    = initialCapital
		wins       int
		winSum     float64
		lossSum    float64 // stored as a positive magnitude
		peak       = initialCapital
		maxDD      float64
	)
	for _, t := range trades {
		capital += t.PnL
		equity = append(equity, capital)
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else {
			lossSum += -t.PnL
		}
		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			if dd := (peak - capital) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}

	res := Result{
		Trades:      trades,
		Equity:      equity,
		InitialCap:  initialCapital,
		FinalCap:    capital,
		MaxDrawdown: maxDD,
		Sharpe:      sharpeRatio(trades),
	}
	if initialCapital > 0 {
		res.TotalReturn = (capital - initialCapital) / initialCapital
	}
	if len(trades) > 0 {
		res.WinRate = float64(wins) / float64(len(trades))
	}
	switch {
	case lossSum > 0:
		res.ProfitFactor = winSum / lossSum
	case wins > 0:
		res.ProfitFactor = math.Inf(1)
	}
	return res
}

// sharpeRatio is sqrt(252) * mean(pnl) / stdev(pnl), reported as 0 when
// fewer than two trades exist since one sample has no defined variance.
func sharpeRatio(trades []Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnL
	}
	mean := sum / float64(len(trades))
	var sq float64
	for _, t := range trades {
		d := t.PnL - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(trades)-1))
	if stdev == 0 {
		return 0
	}
	return math.Sqrt(sharpeAnnualization) * mean / stdev
}
