// Package optimize searches the strategy parameter space with random
// sampling, scoring each candidate with a backtest run. Sampling is
// seeded so a search is reproducible; trials are independent and run in
// parallel up to a configured bound.
package optimize

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vivian5285/aitrade/backtest"
	"github.com/vivian5285/aitrade/types"
)

// ErrNoTrials is returned when the search completed no trial at all.
var ErrNoTrials = errors.New("optimize: no completed trials")

// IntRange is an inclusive integer sampling range.
type IntRange struct {
	Min, Max int
}

// FloatRange is a half-open float sampling range.
type FloatRange struct {
	Min, Max float64
}

// Space bounds the tunable indicator parameters. Cross-parameter
// constraints (fast below slow, oversold below overbought) are enforced
// during sampling so every candidate validates.
type Space struct {
	FastEMA       IntRange
	SlowEMA       IntRange
	RSIPeriod     IntRange
	RSIOverbought FloatRange
	RSIOversold   FloatRange
	BBPeriod      IntRange
	BBStdDev      FloatRange
}

// DefaultSpace covers the ranges worth scanning for intraday candles.
func DefaultSpace() Space {
	return Space{
		FastEMA:       IntRange{5, 20},
		SlowEMA:       IntRange{21, 60},
		RSIPeriod:     IntRange{7, 28},
		RSIOverbought: FloatRange{65, 85},
		RSIOversold:   FloatRange{15, 35},
		BBPeriod:      IntRange{10, 40},
		BBStdDev:      FloatRange{1.5, 3.0},
	}
}

// Trial is one sampled candidate and its outcome.
type Trial struct {
	Params backtest.Params
	Result backtest.Result
	Score  float64
}

// Report is the finished search: the best trial and the full history.
type Report struct {
	Best    Trial
	History []Trial
}

// Options tunes the search itself.
type Options struct {
	Trials      int
	Parallelism int
	Seed        int64
}

// Optimize samples Options.Trials candidates from the space, backtests
// each against the candles, and returns the best scorer. A cancelled
// context stops scheduling new trials; trials already finished stay in
// the history.
func Optimize(ctx context.Context, candles []types.Candle, base backtest.Params,
	space Space, initialCapital float64, opts Options) (Report, error) {

	if opts.Trials <= 0 {
		return Report{}, ErrNoTrials
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	// sample every candidate up front from one seeded source, so the
	// candidate set does not depend on worker scheduling
	rng := rand.New(rand.NewSource(opts.Seed))
	candidates := make([]backtest.Params, opts.Trials)
	for i := range candidates {
		candidates[i] = space.sample(rng, base)
	}

	var (
		mu      sync.Mutex
		history []Trial
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for _, params := range candidates {
		params := params
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			result, err := backtest.Run(candles, params, initialCapital)
			if err != nil {
				return err
			}
			trial := Trial{Params: params, Result: result, Score: Score(result)}
			mu.Lock()
			history = append(history, trial)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if len(history) == 0 {
		if err != nil {
			return Report{}, err
		}
		return Report{}, ErrNoTrials
	}

	best := history[0]
	for _, tr := range history[1:] {
		if tr.Score > best.Score {
			best = tr
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return Report{Best: best, History: history}, err
}

// Score collapses a backtest result into one comparable number. Return
// and drawdown dominate; the profit-factor term rewards asymmetric wins.
func Score(r backtest.Result) float64 {
	pf := r.ProfitFactor
	if math.IsInf(pf, 1) {
		// a flawless run still needs a finite rank
		pf = 10
	}
	return 0.3*r.TotalReturn +
		0.2*(1-r.MaxDrawdown) +
		0.2*r.Sharpe +
		0.2*r.WinRate +
		0.1*(pf-1)
}

// sample draws one candidate, keeping the cross-parameter orderings
// valid.
func (s Space) sample(rng *rand.Rand, base backtest.Params) backtest.Params {
	p := base
	in := &p.Indicators

	in.FastEMA = sampleInt(rng, s.FastEMA)
	slowMin := s.SlowEMA.Min
	if slowMin <= in.FastEMA {
		slowMin = in.FastEMA + 1
	}
	in.SlowEMA = sampleInt(rng, IntRange{slowMin, max(s.SlowEMA.Max, slowMin)})

	in.RSIPeriod = sampleInt(rng, s.RSIPeriod)
	in.RSIOverbought = sampleFloat(rng, s.RSIOverbought)
	soldMax := s.RSIOversold.Max
	if soldMax >= in.RSIOverbought {
		soldMax = in.RSIOverbought - 1
	}
	in.RSIOversold = sampleFloat(rng, FloatRange{math.Min(s.RSIOversold.Min, soldMax), soldMax})

	in.BBPeriod = sampleInt(rng, s.BBPeriod)
	in.BBStdDev = sampleFloat(rng, s.BBStdDev)
	return p
}

func sampleInt(rng *rand.Rand, r IntRange) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

func sampleFloat(rng *rand.Rand, r FloatRange) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}
