package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/types"
)

func candlesFromCloses(closes ...float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     c, High: c, Low: c, Close: c,
			Volume: 100,
		}
	}
	return out
}

func testCalc() *Calculator {
	return New(config.Default().Indicators)
}

func TestComputeEmptyWindow(t *testing.T) {
	if _, err := testCalc().Compute(nil); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestShortWindowLeavesFieldsUndefined(t *testing.T) {
	// 5 candles: fast EMA (12) and everything longer must stay undefined.
	snap, err := testCalc().Compute(candlesFromCloses(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if snap.FastEMA.Defined() || snap.SlowEMA.Defined() || snap.RSI.Defined() ||
		snap.BandUpper.Defined() || snap.Volatility.Defined() || snap.Momentum.Defined() {
		t.Fatalf("expected undefined fields on short window: %+v", snap)
	}
	if snap.Close != 5 {
		t.Fatalf("close should come from the last candle, got %v", snap.Close)
	}
}

func TestUndefinedNeverReadsAsZero(t *testing.T) {
	snap, _ := testCalc().Compute(candlesFromCloses(1, 2, 3))
	if v, ok := snap.RSI.Float(); ok || v != 0 {
		// the numeric payload of an undefined value is not meaningful,
		// but Defined must be false
		if ok {
			t.Fatal("RSI reported defined on a 3-candle window")
		}
	}
	if snap.RSI.Or(-1) != -1 {
		t.Fatal("Or should return the fallback for undefined values")
	}
}

func TestFlatWindowDefinesEverything(t *testing.T) {
	// 20 identical-price candles are shorter than the slow EMA (26) but
	// cover every other warm-up; use 30 to cover all of them.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	snap, err := testCalc().Compute(candlesFromCloses(closes...))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !snap.FastEMA.Defined() || !snap.SlowEMA.Defined() || !snap.RSI.Defined() ||
		!snap.BandUpper.Defined() || !snap.Volatility.Defined() || !snap.VolumeAvg.Defined() {
		t.Fatalf("expected all fields defined after warm-up: %+v", snap)
	}
	if v, _ := snap.RSI.Float(); v != 50 {
		t.Fatalf("flat window RSI should be 50, got %v", v)
	}
	up, _ := snap.BandUpper.Float()
	lo, _ := snap.BandLower.Float()
	mid, _ := snap.BandMid.Float()
	if up != 100 || lo != 100 || mid != 100 {
		t.Fatalf("flat window bands should collapse to price: %v %v %v", up, mid, lo)
	}
	if vol, _ := snap.Volatility.Float(); vol != 0 {
		t.Fatalf("flat window volatility should be 0, got %v", vol)
	}
}

func TestEMASeededBySimpleAverage(t *testing.T) {
	calc := New(config.Indicators{
		FastEMA: 3, SlowEMA: 5, RSIPeriod: 3, RSIOverbought: 70, RSIOversold: 30,
		BBPeriod: 3, BBStdDev: 2, VolumePeriod: 3,
	})
	// fast EMA(3) over [1 2 3 4]: seed = 2, mult = 0.5, next = (4-2)*0.5+2 = 3
	snap, err := calc.Compute(candlesFromCloses(1, 2, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := snap.FastEMA.Float()
	if !ok || math.Abs(got-3) > 1e-12 {
		t.Fatalf("EMA(3) over [1 2 3 4] = %v, want 3", got)
	}
}

func TestRSIDirectional(t *testing.T) {
	calc := New(config.Indicators{
		FastEMA: 2, SlowEMA: 3, RSIPeriod: 5, RSIOverbought: 70, RSIOversold: 30,
		BBPeriod: 3, BBStdDev: 2, VolumePeriod: 3,
	})
	up, _ := calc.Compute(candlesFromCloses(1, 2, 3, 4, 5, 6))
	if v, _ := up.RSI.Float(); v != 100 {
		t.Fatalf("monotonic rising closes should give RSI 100, got %v", v)
	}
	down, _ := calc.Compute(candlesFromCloses(6, 5, 4, 3, 2, 1))
	if v, _ := down.RSI.Float(); v != 0 {
		t.Fatalf("monotonic falling closes should give RSI 0, got %v", v)
	}
}

func TestBollingerBandsSpread(t *testing.T) {
	calc := New(config.Indicators{
		FastEMA: 2, SlowEMA: 3, RSIPeriod: 2, RSIOverbought: 70, RSIOversold: 30,
		BBPeriod: 4, BBStdDev: 2, VolumePeriod: 2,
	})
	// closes 9,11,9,11: mean 10, population stddev 1 -> bands 12 / 10 / 8
	snap, _ := calc.Compute(candlesFromCloses(9, 11, 9, 11))
	up, _ := snap.BandUpper.Float()
	mid, _ := snap.BandMid.Float()
	lo, _ := snap.BandLower.Float()
	if math.Abs(up-12) > 1e-9 || math.Abs(mid-10) > 1e-9 || math.Abs(lo-8) > 1e-9 {
		t.Fatalf("bands = %v/%v/%v, want 12/10/8", up, mid, lo)
	}
}

func TestWarmupCoversEveryField(t *testing.T) {
	calc := testCalc()
	n := calc.Warmup()
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i%3)
	}
	snap, err := calc.Compute(candlesFromCloses(closes...))
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]Value{
		"fast_ema": snap.FastEMA, "slow_ema": snap.SlowEMA, "rsi": snap.RSI,
		"band_upper": snap.BandUpper, "band_mid": snap.BandMid, "band_lower": snap.BandLower,
		"volatility": snap.Volatility, "volume_avg": snap.VolumeAvg, "momentum": snap.Momentum,
	} {
		if !v.Defined() {
			t.Errorf("%s undefined after %d candles", name, n)
		}
	}
}
