package strategy

import (
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// bandBreakout votes BUY when the close pierces the lower Bollinger band
// and SELL above the upper band. Inside the bands it abstains.
type bandBreakout struct{}

func (s *bandBreakout) ID() string { return KindBandBreakout.String() }

func (s *bandBreakout) Evaluate(_, cur indicator.Snapshot) Signal {
	upper, ok1 := cur.BandUpper.Float()
	lower, ok2 := cur.BandLower.Float()
	if !ok1 || !ok2 {
		return none(s.ID())
	}
	width := upper - lower
	if width <= 0 {
		return none(s.ID())
	}
	switch {
	case cur.Close < lower:
		return Signal{
			StrategyID: s.ID(),
			Direction:  types.DirBuy,
			Strength:   clamp01((lower - cur.Close) / width),
		}
	case cur.Close > upper:
		return Signal{
			StrategyID: s.ID(),
			Direction:  types.DirSell,
			Strength:   clamp01((cur.Close - upper) / width),
		}
	default:
		return none(s.ID())
	}
}
