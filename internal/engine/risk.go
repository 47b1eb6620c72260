package engine

import (
	"context"
	"fmt"
	"math"

	"simtrader/internal/domain"
)

// RiskManager enforces pre-trade limits on allocation orders.
type RiskManager struct {
	maxWeight float64
}

// NewRiskManager creates a RiskManager. maxWeight is the largest absolute
// target weight accepted (e.g. 1.0 for no leverage); 0 disables the limit.
func NewRiskManager(maxWeight float64) *RiskManager {
	return &RiskManager{maxWeight: maxWeight}
}

// CheckOrder rejects non-finite weights and weights beyond the limit with
// ErrConfiguration.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order) error {
	w := order.Weight
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %s: weight %v is not finite", domain.ErrConfiguration, order.Symbol, w)
	}
	if rm.maxWeight > 0 && math.Abs(w) > rm.maxWeight {
		return fmt.Errorf("%w: %s: weight %v exceeds limit %v", domain.ErrConfiguration, order.Symbol, w, rm.maxWeight)
	}
	return nil
}
