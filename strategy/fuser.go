package strategy

import (
	"github.com/vivian5285/aitrade/config"
	"github.com/vivian5285/aitrade/indicator"
	"github.com/vivian5285/aitrade/types"
)

// Decision is the fused outcome of one evaluation tick. It is only
// produced when every non-abstaining strategy agrees on the direction.
type Decision struct {
	Direction    types.Direction
	Strength     float64 // fraction of enabled strategies that agree
	Contributing []string
}

// Fuser runs the enabled strategies and applies the unanimity rule: a
// single dissenting vote kills the decision. All-or-nothing convergence is
// a deliberate false-positive reducer.
type Fuser struct {
	strategies []Strategy
	minAgree   int
}

// NewFuser builds the enabled strategies from configuration. Unknown
// strategy names fail construction.
func NewFuser(names []string, minAgree int, cfg config.Indicators) (*Fuser, error) {
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		s, err := New(k, cfg)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if minAgree < 1 {
		minAgree = 1
	}
	return &Fuser{strategies: strategies, minAgree: minAgree}, nil
}

// Strategies exposes the enabled set, mainly for logging.
func (f *Fuser) Strategies() []Strategy {
	out := make([]Strategy, len(f.strategies))
	copy(out, f.strategies)
	return out
}

// Evaluate collects one vote per enabled strategy and fuses them. The
// boolean is false when no decision is emitted for this tick.
func (f *Fuser) Evaluate(prev, cur indicator.Snapshot) (Decision, bool) {
	var (
		dir          types.Direction = types.DirNone
		contributing []string
	)
	for _, s := range f.strategies {
		sig := s.Evaluate(prev, cur)
		if sig.Direction == types.DirNone {
			continue
		}
		if dir == types.DirNone {
			dir = sig.Direction
		} else if sig.Direction != dir {
			// conflicting non-NONE votes: unanimity broken
			return Decision{}, false
		}
		contributing = append(contributing, sig.StrategyID)
	}
	if dir == types.DirNone || len(contributing) < f.minAgree {
		return Decision{}, false
	}
	return Decision{
		Direction:    dir,
		Strength:     float64(len(contributing)) / float64(len(f.strategies)),
		Contributing: contributing,
	}, true
}
