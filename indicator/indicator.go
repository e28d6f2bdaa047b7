// Package indicator computes derived time-series from a trailing candle
// window. Every indicator has a fixed warm-up length; until the window
// covers it, the corresponding snapshot field is undefined and must be
// treated as "no signal", never as zero.
package indicator

import (
	"errors"
	"math"

	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/types"
)

// ErrInsufficientData is returned when a window is too short to compute
// anything at all.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// momentumPeriod is the fixed close-to-close momentum lookback.
const momentumPeriod = 10

// Value is a possibly-undefined indicator output. The zero Value is
// undefined.
type Value struct {
	v  float64
	ok bool
}

// Of wraps a defined value.
func Of(v float64) Value { return Value{v: v, ok: true} }

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Defined reports whether the value has warmed up.
func (v Value) Defined() bool { return v.ok }

// Float returns the numeric value and whether it is defined.
func (v Value) Float() (float64, bool) { return v.v, v.ok }

// Or returns the value when defined, otherwise the fallback.
func (v Value) Or(fallback float64) float64 {
	if v.ok {
		return v.v
	}
	return fallback
}

// Snapshot holds the per-candle derived values for the most recent candle
// of a window. Close and Volume come straight off the candle and are
// always present; every derived field is independently warm-up gated.
type Snapshot struct {
	Close  float64
	Volume float64

	FastEMA    Value
	SlowEMA    Value
	RSI        Value
	BandUpper  Value
	BandMid    Value
	BandLower  Value
	Volatility Value // stddev of close-to-close returns over the band period
	VolumeAvg  Value
	Momentum   Value
}

// Calculator computes snapshots for a fixed set of periods. It keeps no
// state beyond the configuration; the window is passed per call.
type Calculator struct {
	cfg config.Indicators
}

// New builds a calculator from validated indicator configuration.
func New(cfg config.Indicators) *Calculator {
	return &Calculator{cfg: cfg}
}

// Warmup returns the window length after which every field is defined.
func (c *Calculator) Warmup() int {
	n := c.cfg.SlowEMA
	for _, p := range []int{c.cfg.RSIPeriod + 1, c.cfg.BBPeriod + 1, c.cfg.VolumePeriod, momentumPeriod + 1} {
		if p > n {
			n = p
		}
	}
	return n
}

// Compute returns the snapshot for the last candle of the window. Only the
// candles [0..len-1] feed the result; there is no lookahead. An empty
// window yields ErrInsufficientData.
func (c *Calculator) Compute(window []types.Candle) (Snapshot, error) {
	if len(window) == 0 {
		return Snapshot{}, ErrInsufficientData
	}
	closes := make([]float64, len(window))
	volumes := make([]float64, len(window))
	for i, cd := range window {
		closes[i] = cd.Close
		volumes[i] = cd.Volume
	}
	last := window[len(window)-1]

	snap := Snapshot{
		Close:      last.Close,
		Volume:     last.Volume,
		FastEMA:    ema(closes, c.cfg.FastEMA),
		SlowEMA:    ema(closes, c.cfg.SlowEMA),
		RSI:        rsi(closes, c.cfg.RSIPeriod),
		Volatility: returnsStdDev(closes, c.cfg.BBPeriod),
		VolumeAvg:  sma(volumes, c.cfg.VolumePeriod),
		Momentum:   momentum(closes, momentumPeriod),
	}
	snap.BandUpper, snap.BandMid, snap.BandLower = bollinger(closes, c.cfg.BBPeriod, c.cfg.BBStdDev)
	return snap, nil
}

// sma is the simple moving average of the last period values.
func sma(values []float64, period int) Value {
	if period <= 0 || len(values) < period {
		return Undefined()
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return Of(sum / float64(period))
}

// ema applies the standard recursive smoothing, seeded by the simple
// average of the first period values.
func ema(values []float64, period int) Value {
	if period <= 0 || len(values) < period {
		return Undefined()
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	cur := seed / float64(period)
	mult := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		cur = (values[i]-cur)*mult + cur
	}
	return Of(cur)
}

// rsi computes the RS-form relative strength index from simple-average
// gains and losses over the last period changes.
func rsi(values []float64, period int) Value {
	if period <= 0 || len(values) < period+1 {
		return Undefined()
	}
	gain, loss := 0.0, 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		if gain == 0 {
			// flat window: neither side dominates
			return Of(50)
		}
		return Of(100)
	}
	rs := gain / loss
	return Of(100 - 100/(1+rs))
}

// bollinger returns upper, middle, lower bands: SMA +/- k*stddev over the
// last period closes. Population standard deviation.
func bollinger(values []float64, period int, k float64) (upper, mid, lower Value) {
	m := sma(values, period)
	if !m.Defined() {
		return Undefined(), Undefined(), Undefined()
	}
	mean, _ := m.Float()
	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return Of(mean + k*sd), m, Of(mean - k*sd)
}

// returnsStdDev is the population stddev of close-to-close fractional
// returns over the last period changes. Used as the realized volatility
// measure for regime classification and grid spacing.
func returnsStdDev(values []float64, period int) Value {
	if period <= 0 || len(values) < period+1 {
		return Undefined()
	}
	rets := make([]float64, 0, period)
	for i := len(values) - period; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			return Undefined()
		}
		rets = append(rets, values[i]/prev-1)
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	return Of(math.Sqrt(variance / float64(len(rets))))
}

// momentum is the fractional price change over the lookback.
func momentum(values []float64, period int) Value {
	if len(values) < period+1 {
		return Undefined()
	}
	base := values[len(values)-1-period]
	if base == 0 {
		return Undefined()
	}
	return Of(values[len(values)-1]/base - 1)
}
