// Package broker holds the simulated account. Orders carry a target weight
// rather than a quantity; the broker sizes them against NAV when their fill
// bar arrives and books the friction cost against cash.
package broker

import (
	"context"
	"time"

	"simtrader/internal/domain"
)

// PriceFunc quotes symbol for the bar being processed. ok is false while
// the symbol has no bar at or before the current date.
type PriceFunc func(symbol string) (price float64, ok bool)

// Account is the read side of a simulated account.
type Account interface {
	NAV() float64
	Position(symbol string) domain.Position
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// Broker accepts weight orders and settles them bar by bar. The engine owns
// it and drives Execute and Mark from its single loop goroutine.
type Broker interface {
	Account

	Name() string
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	Pending() []*domain.Order

	// Execute fills the pending orders selected by due at the given prices
	// and returns the fills in execution order.
	Execute(date time.Time, due func(*domain.Order) bool, price PriceFunc) []domain.Fill
	// Mark revalues every position at the given prices.
	Mark(price PriceFunc)
}
