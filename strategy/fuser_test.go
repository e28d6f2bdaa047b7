package strategy

import (
	"testing"
	"time"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

type stubStrategy struct {
	id  string
	dir types.Direction
}

func (s stubStrategy) ID() string { return s.id }
func (s stubStrategy) Evaluate(_, _ indicator.Snapshot) Signal {
	return Signal{StrategyID: s.id, Direction: s.dir, Strength: 1}
}

func fuserOf(minAgree int, stubs ...Strategy) *Fuser {
	return &Fuser{strategies: stubs, minAgree: minAgree}
}

func TestFuserUnanimousAgreement(t *testing.T) {
	f := fuserOf(1,
		stubStrategy{"a", types.DirBuy},
		stubStrategy{"b", types.DirBuy},
		stubStrategy{"c", types.DirNone},
	)
	d, ok := f.Evaluate(indicator.Snapshot{}, indicator.Snapshot{})
	if !ok {
		t.Fatal("expected a decision from two agreeing votes")
	}
	if d.Direction != types.DirBuy {
		t.Fatalf("direction = %v, want BUY", d.Direction)
	}
	if d.Strength != 2.0/3.0 {
		t.Fatalf("strength = %v, want 2/3", d.Strength)
	}
	if len(d.Contributing) != 2 {
		t.Fatalf("contributing = %v", d.Contributing)
	}
}

func TestFuserConflictYieldsNone(t *testing.T) {
	// any two disagreeing strategies kill the decision, whatever else votes
	f := fuserOf(1,
		stubStrategy{"a", types.DirBuy},
		stubStrategy{"b", types.DirSell},
		stubStrategy{"c", types.DirBuy},
	)
	if _, ok := f.Evaluate(indicator.Snapshot{}, indicator.Snapshot{}); ok {
		t.Fatal("conflicting votes must not fuse")
	}
}

func TestFuserMinAgreeFloor(t *testing.T) {
	f := fuserOf(2,
		stubStrategy{"a", types.DirSell},
		stubStrategy{"b", types.DirNone},
		stubStrategy{"c", types.DirNone},
	)
	if _, ok := f.Evaluate(indicator.Snapshot{}, indicator.Snapshot{}); ok {
		t.Fatal("single vote below min_agree must not fuse")
	}
}

func TestFuserAllAbstain(t *testing.T) {
	f := fuserOf(1, stubStrategy{"a", types.DirNone})
	if _, ok := f.Evaluate(indicator.Snapshot{}, indicator.Snapshot{}); ok {
		t.Fatal("all-NONE tick must not fuse")
	}
}

func TestNewFuserRejectsUnknownName(t *testing.T) {
	if _, err := NewFuser([]string{"martingale"}, 1, config.Default().Indicators); err == nil {
		t.Fatal("expected error for unknown strategy name")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindTrendCross, KindRSIReversal, KindBandBreakout, KindComposite} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("round trip failed for %v: %v %v", k, got, err)
		}
	}
}

// Twenty identical-price candles: every sub-20-period indicator becomes
// defined, RSI sits at 50, price sits inside collapsed bands, the EMAs
// coincide. No strategy votes and the fused decision is NONE.
func TestFlatMarketFusesToNone(t *testing.T) {
	ind := config.Indicators{
		FastEMA: 5, SlowEMA: 10, RSIPeriod: 5,
		RSIOverbought: 70, RSIOversold: 30,
		BBPeriod: 10, BBStdDev: 2, VolumePeriod: 10,
	}
	calc := indicator.New(ind)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, 20)
	for i := range candles {
		candles[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     100, High: 100, Low: 100, Close: 100, Volume: 50,
		}
	}
	prev, err := calc.Compute(candles[:19])
	if err != nil {
		t.Fatal(err)
	}
	cur, err := calc.Compute(candles)
	if err != nil {
		t.Fatal(err)
	}
	if !cur.RSI.Defined() || !cur.BandUpper.Defined() || !cur.FastEMA.Defined() {
		t.Fatalf("indicators should be defined on the flat window: %+v", cur)
	}

	f, err := NewFuser([]string{"trend_cross", "rsi_reversal", "band_breakout", "composite"}, 1, ind)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Evaluate(prev, cur); ok {
		t.Fatal("flat market must fuse to NONE")
	}
}
