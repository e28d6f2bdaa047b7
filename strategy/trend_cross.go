package strategy

import (
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// trendCross votes with the fast/slow EMA relation: BUY while the fast
// average rides above the slow one, SELL below, NONE when they touch.
// The vote is strongest on the tick where the averages actually cross.
type trendCross struct{}

func (s *trendCross) ID() string { return KindTrendCross.String() }

func (s *trendCross) Evaluate(prev, cur indicator.Snapshot) Signal {
	curFast, ok1 := cur.FastEMA.Float()
	curSlow, ok2 := cur.SlowEMA.Float()
	if !ok1 || !ok2 || curSlow == 0 || curFast == curSlow {
		return none(s.ID())
	}

	strength := clamp01(abs(curFast-curSlow) / curSlow * 100)
	if prevFast, ok := prev.FastEMA.Float(); ok {
		if prevSlow, ok := prev.SlowEMA.Float(); ok {
			crossedUp := curFast > curSlow && prevFast <= prevSlow
			crossedDown := curFast < curSlow && prevFast >= prevSlow
			if crossedUp || crossedDown {
				strength = 1
			}
		}
	}

	dir := types.DirBuy
	if curFast < curSlow {
		dir = types.DirSell
	}
	return Signal{StrategyID: s.ID(), Direction: dir, Strength: strength}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
