package strategy

import (
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// rsiReversal votes BUY in oversold territory and SELL in overbought
// territory, scaled by how deep into the zone the oscillator sits.
type rsiReversal struct {
	overbought float64
	oversold   float64
}

func (s *rsiReversal) ID() string { return KindRSIReversal.String() }

func (s *rsiReversal) Evaluate(_, cur indicator.Snapshot) Signal {
	rsi, ok := cur.RSI.Float()
	if !ok {
		return none(s.ID())
	}
	switch {
	case rsi < s.oversold:
		strength := clamp01((s.oversold - rsi) / s.oversold)
		return Signal{StrategyID: s.ID(), Direction: types.DirBuy, Strength: strength}
	case rsi > s.overbought:
		strength := clamp01((rsi - s.overbought) / (100 - s.overbought))
		return Signal{StrategyID: s.ID(), Direction: types.DirSell, Strength: strength}
	default:
		return none(s.ID())
	}
}
