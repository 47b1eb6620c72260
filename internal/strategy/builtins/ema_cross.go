// Package builtins provides the strategies that ship with simtrader.
package builtins

import (
	"context"

	"simtrader/internal/domain"
	"simtrader/internal/engine"
	"simtrader/internal/indicator"
	"simtrader/internal/series"
	"simtrader/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EMACross)(nil)

// EMACross holds the asset while the fast EMA of its close is above the slow
// EMA and is flat otherwise. Changes are filled at the next open.
type EMACross struct {
	asset      string
	fastPeriod int
	slowPeriod int

	fast, slow *series.Float
	target     float64
}

// NewEMACross creates an EMACross over asset.
func NewEMACross(asset string, fast, slow int) *EMACross {
	return &EMACross{asset: asset, fastPeriod: fast, slowPeriod: slow, target: -1}
}

// Name returns "ema-cross".
func (s *EMACross) Name() string {
	return "ema-cross"
}

func (s *EMACross) Init(_ context.Context, r *engine.Run) error {
	closes := r.Asset(s.asset).Close()
	s.fast = indicator.EMA(closes, s.fastPeriod)
	s.slow = indicator.EMA(closes, s.slowPeriod)
	return nil
}

func (s *EMACross) OnBar(_ context.Context, r *engine.Run) error {
	if r.State() != engine.StateActive {
		return nil
	}
	fast, err := s.fast.At(0)
	if err != nil {
		return err
	}
	slow, err := s.slow.At(0)
	if err != nil {
		return err
	}

	target := 0.0
	if fast > slow {
		target = 1
	}
	if target == s.target {
		return nil
	}
	s.target = target
	return r.Allocate(s.asset, target, domain.OpenNextBar)
}
