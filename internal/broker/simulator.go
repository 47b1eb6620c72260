package broker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements Broker for backtesting. Orders carry a target
// weight of net asset value and stay pending until Execute fills them at
// a price supplied by the caller. Cash and quantities are kept in decimal.
// It is not safe for concurrent use.
type SimulatorBroker struct {
	friction decimal.Decimal
	cash     decimal.Decimal

	positions map[string]*holding
	orders    map[string]*domain.Order
	pending   []*domain.Order
}

type holding struct {
	qty   decimal.Decimal
	price float64
}

// NewSimulatorBroker creates a broker holding initialCash. friction is the
// proportional cost charged on the traded value of every fill.
func NewSimulatorBroker(initialCash, friction float64) *SimulatorBroker {
	return &SimulatorBroker{
		friction:  decimal.NewFromFloat(friction),
		cash:      decimal.NewFromFloat(initialCash),
		positions: make(map[string]*holding),
		orders:    make(map[string]*domain.Order),
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder queues order, assigning an ID when it has none. A pending
// order for the same symbol and fill type is superseded.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, dup := b.orders[order.ID]; dup {
		return nil, fmt.Errorf("%w: duplicate order id %s", domain.ErrConfiguration, order.ID)
	}
	kept := b.pending[:0]
	for _, o := range b.pending {
		if o.Symbol == order.Symbol && o.Type == order.Type {
			o.Status = domain.OrderStatusCancelled
			continue
		}
		kept = append(kept, o)
	}
	order.Status = domain.OrderStatusPending
	b.pending = append(kept, order)
	b.orders[order.ID] = order
	return order, nil
}

// CancelOrder cancels a pending order. Unknown or already final orders are
// an error.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("order %s is %s", orderID, o.Status)
	}
	o.Status = domain.OrderStatusCancelled
	b.dropPending(orderID)
	return nil
}

func (b *SimulatorBroker) dropPending(orderID string) {
	for i, o := range b.pending {
		if o.ID == orderID {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the orders waiting to be filled, oldest first.
func (b *SimulatorBroker) Pending() []*domain.Order {
	return append([]*domain.Order(nil), b.pending...)
}

// GetPositions returns all non-flat positions sorted by symbol.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	positions := make([]domain.Position, 0, len(b.positions))
	for sym, h := range b.positions {
		if h.qty.IsZero() {
			continue
		}
		positions = append(positions, domain.Position{Symbol: sym, Qty: h.qty.InexactFloat64(), LastPrice: h.price})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// Position returns the holding in symbol, flat when there is none.
func (b *SimulatorBroker) Position(symbol string) domain.Position {
	h, ok := b.positions[symbol]
	if !ok {
		return domain.Position{Symbol: symbol}
	}
	return domain.Position{Symbol: symbol, Qty: h.qty.InexactFloat64(), LastPrice: h.price}
}

// GetAccount returns cash and net asset value at the last marked prices.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	return &domain.AccountInfo{Cash: b.cash.InexactFloat64(), NAV: b.nav().InexactFloat64()}, nil
}

// NAV is cash plus every position at its last marked price.
func (b *SimulatorBroker) NAV() float64 { return b.nav().InexactFloat64() }

func (b *SimulatorBroker) nav() decimal.Decimal {
	total := b.cash
	for _, h := range b.positions {
		total = total.Add(h.qty.Mul(decimal.NewFromFloat(h.price)))
	}
	return total
}

// Mark records the latest price of every held symbol that price knows.
func (b *SimulatorBroker) Mark(price PriceFunc) {
	for sym, h := range b.positions {
		if p, ok := price(sym); ok {
			h.price = p
		}
	}
}

// Execute fills every pending order for which due reports true and price
// has a quote. Holdings are marked first, so all fills of one call size
// against the same net asset value. Sells are filled before buys. Orders
// without a quote stay pending.
//
// An order moves its position to weight × NAV: buying spends |delta| of
// cash and acquires |delta| less the fee, selling disposes of |delta| and
// receives it less the fee.
func (b *SimulatorBroker) Execute(date time.Time, due func(*domain.Order) bool, price PriceFunc) []domain.Fill {
	b.Mark(price)
	nav := b.nav()

	type leg struct {
		order *domain.Order
		price decimal.Decimal
		delta decimal.Decimal
	}
	var legs []leg
	for _, o := range b.pending {
		if !due(o) {
			continue
		}
		p, ok := price(o.Symbol)
		if !ok || p <= 0 {
			continue
		}
		dp := decimal.NewFromFloat(p)
		held := decimal.Zero
		if h, ok := b.positions[o.Symbol]; ok {
			held = h.qty.Mul(dp)
		}
		target := decimal.NewFromFloat(o.Weight).Mul(nav)
		legs = append(legs, leg{order: o, price: dp, delta: target.Sub(held)})
	}
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].delta.LessThan(legs[j].delta) })

	fills := make([]domain.Fill, 0, len(legs))
	for _, l := range legs {
		fee := l.delta.Abs().Mul(b.friction)
		var qty decimal.Decimal
		if l.delta.IsPositive() {
			qty = l.delta.Sub(fee).Div(l.price)
			b.cash = b.cash.Sub(l.delta)
		} else {
			qty = l.delta.Div(l.price)
			b.cash = b.cash.Add(l.delta.Abs().Sub(fee))
		}

		h, ok := b.positions[l.order.Symbol]
		if !ok {
			h = &holding{}
			b.positions[l.order.Symbol] = h
		}
		h.qty = h.qty.Add(qty)
		h.price = l.price.InexactFloat64()

		l.order.Status = domain.OrderStatusFilled
		l.order.FilledAt = date
		b.dropPending(l.order.ID)
		if l.delta.IsZero() {
			continue
		}
		fills = append(fills, domain.Fill{
			OrderID: l.order.ID,
			Symbol:  l.order.Symbol,
			Date:    date,
			Price:   l.price.InexactFloat64(),
			Qty:     qty.InexactFloat64(),
			Fee:     fee.InexactFloat64(),
		})
	}
	return fills
}
