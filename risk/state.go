package risk

import "time"

// State tracks the rolling risk counters. It is mutated only when a
// position closes and reset at the first evaluation after a UTC date
// rollover.
type State struct {
	day             time.Time // UTC midnight of the current trading day
	DailyTradeCount int
	DailyPnL        float64
	PeakBalance     float64
	CurrentDrawdown float64
	MaxDrawdownSeen float64
}

// NewState starts a fresh trading day anchored at now (UTC) with the
// given balance as the initial equity peak.
func NewState(now time.Time, balance float64) *State {
	return &State{
		day:         utcDay(now),
		PeakBalance: balance,
	}
}

func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ResetIfNewDay zeroes the daily counters when now falls on a later UTC
// date than the tracked day. Peak balance and max drawdown survive the
// rollover. Returns true when a reset happened.
func (s *State) ResetIfNewDay(now time.Time) bool {
	d := utcDay(now)
	if !d.After(s.day) {
		return false
	}
	s.day = d
	s.DailyTradeCount = 0
	s.DailyPnL = 0
	return true
}

// RecordClose folds a closed trade into the counters and refreshes the
// drawdown measures against the post-close balance.
func (s *State) RecordClose(pnl, balance float64) {
	s.DailyTradeCount++
	s.DailyPnL += pnl
	if balance > s.PeakBalance {
		s.PeakBalance = balance
	}
	if s.PeakBalance > 0 {
		s.CurrentDrawdown = (s.PeakBalance - balance) / s.PeakBalance
		if s.CurrentDrawdown < 0 {
			s.CurrentDrawdown = 0
		}
	}
	if s.CurrentDrawdown > s.MaxDrawdownSeen {
		s.MaxDrawdownSeen = s.CurrentDrawdown
	}
}
