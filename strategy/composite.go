package strategy

import (
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// compositeThreshold is the minimum absolute weighted score before the
// composite emits a direction.
const compositeThreshold = 0.5

// composite blends the trend relation, the oscillator zone, and the band
// position into one weighted score. Weights are tunable policy, not a
// calibrated model.
type composite struct {
	overbought float64
	oversold   float64
}

func (s *composite) ID() string { return KindComposite.String() }

func (s *composite) Evaluate(prev, cur indicator.Snapshot) Signal {
	fast, ok1 := cur.FastEMA.Float()
	slow, ok2 := cur.SlowEMA.Float()
	rsi, ok3 := cur.RSI.Float()
	upper, ok4 := cur.BandUpper.Float()
	lower, ok5 := cur.BandLower.Float()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return none(s.ID())
	}

	score := 0.0
	switch {
	case fast > slow:
		score += 0.4
	case fast < slow:
		score -= 0.4
	}
	switch {
	case rsi < s.oversold:
		score += 0.3
	case rsi > s.overbought:
		score -= 0.3
	}
	switch {
	case cur.Close < lower:
		score += 0.3
	case cur.Close > upper:
		score -= 0.3
	}

	// rising momentum breaks score ties toward the move already underway
	if m, ok := cur.Momentum.Float(); ok && score != 0 {
		if (score > 0 && m > 0) || (score < 0 && m < 0) {
			score *= 1.1
		}
	}

	switch {
	case score >= compositeThreshold:
		return Signal{StrategyID: s.ID(), Direction: types.DirBuy, Strength: clamp01(score)}
	case score <= -compositeThreshold:
		return Signal{StrategyID: s.ID(), Direction: types.DirSell, Strength: clamp01(-score)}
	default:
		return none(s.ID())
	}
}
