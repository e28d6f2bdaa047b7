// Package strategy evaluates named trading strategies against indicator
// snapshots and fuses their directional votes into a single decision.
package strategy

import (
	"fmt"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// Kind is the closed set of strategy rules. Selection happens at
// configuration time; there is no string dispatch on the hot path.
type Kind int

const (
	KindTrendCross Kind = iota
	KindRSIReversal
	KindBandBreakout
	KindComposite
)

var kindNames = map[Kind]string{
	KindTrendCross:   "trend_cross",
	KindRSIReversal:  "rsi_reversal",
	KindBandBreakout: "band_breakout",
	KindComposite:    "composite",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration string onto a Kind. Unknown names are a
// configuration error, not a silent default.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("strategy: unknown kind %q", s)
}

// Signal is one strategy's vote for a single evaluation tick.
type Signal struct {
	StrategyID string
	Direction  types.Direction
	Strength   float64 // [0,1]
}

// Strategy classifies a tick as BUY, SELL, or NONE. Implementations are
// stateless; crossover detection uses the previous snapshot.
type Strategy interface {
	ID() string
	Evaluate(prev, cur indicator.Snapshot) Signal
}

// New constructs the strategy for a kind using the indicator thresholds
// from configuration.
func New(k Kind, cfg config.Indicators) (Strategy, error) {
	switch k {
	case KindTrendCross:
		return &trendCross{}, nil
	case KindRSIReversal:
		return &rsiReversal{overbought: cfg.RSIOverbought, oversold: cfg.RSIOversold}, nil
	case KindBandBreakout:
		return &bandBreakout{}, nil
	case KindComposite:
		return &composite{overbought: cfg.RSIOverbought, oversold: cfg.RSIOversold}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown kind %v", k)
	}
}

func none(id string) Signal {
	return Signal{StrategyID: id, Direction: types.DirNone}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
