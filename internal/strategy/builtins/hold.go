package builtins

import (
	"context"

	"simtrader/internal/domain"
	"simtrader/internal/engine"
	"simtrader/internal/strategy"
)

// BuyAndHold puts all capital into one asset on the first bar.
type BuyAndHold struct {
	asset string
}

func NewBuyAndHold(asset string) *BuyAndHold { return &BuyAndHold{asset: asset} }

func (s *BuyAndHold) Name() string { return "buy-and-hold" }

func (s *BuyAndHold) Init(_ context.Context, r *engine.Run) error {
	r.Asset(s.asset)
	return nil
}

func (s *BuyAndHold) OnBar(_ context.Context, r *engine.Run) error {
	if r.IsFirstBar() {
		return r.Allocate(s.asset, 1, domain.OpenNextBar)
	}
	return nil
}

// Register adds the builtin strategies, trading asset, to reg.
func Register(reg *strategy.Registry, asset string, fast, slow int) {
	reg.Register(func() strategy.Strategy { return NewEMACross(asset, fast, slow) })
	reg.Register(func() strategy.Strategy { return NewBuyAndHold(asset) })
}
