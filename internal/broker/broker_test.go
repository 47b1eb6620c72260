package broker

import (
	"context"
	"math"
	"testing"
	"time"

	"simtrader/internal/domain"
)

var day = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func always(*domain.Order) bool { return true }

func quote(prices map[string]float64) func(string) (float64, bool) {
	return func(s string) (float64, bool) {
		p, ok := prices[s]
		return p, ok
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSimulatorBrokerName(t *testing.T) {
	b := NewSimulatorBroker(1000, 0)
	if got := b.Name(); got != "simulator" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "simulator")
	}
}

func TestFullAllocationPaysFriction(t *testing.T) {
	ctx := context.Background()
	b := NewSimulatorBroker(1000, 0.005)
	o, err := b.SubmitOrder(ctx, &domain.Order{Symbol: "SPY", Weight: 1, Type: domain.OpenNextBar})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if o.ID == "" || o.Status != domain.OrderStatusPending {
		t.Fatalf("order = %+v", o)
	}

	fills := b.Execute(day, always, quote(map[string]float64{"SPY": 50}))
	if len(fills) != 1 {
		t.Fatalf("got %d fills, want 1", len(fills))
	}
	f := fills[0]
	if !near(f.Fee, 5) || !near(f.Qty, 19.9) || f.Price != 50 || f.OrderID != o.ID {
		t.Errorf("fill = %+v", f)
	}
	acct, _ := b.GetAccount(ctx)
	if !near(acct.Cash, 0) || !near(acct.NAV, 995) {
		t.Errorf("account = %+v", acct)
	}
	if o.Status != domain.OrderStatusFilled || !o.FilledAt.Equal(day) {
		t.Errorf("order after fill = %+v", o)
	}
	if len(b.Pending()) != 0 {
		t.Error("filled order still pending")
	}
}

func TestSellReceivesNetOfFee(t *testing.T) {
	b := NewSimulatorBroker(1000, 0.01)
	ctx := context.Background()
	b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 0.5, Type: domain.CloseThisBar})
	b.Execute(day, always, quote(map[string]float64{"A": 10}))
	// 500 spent, 495 worth acquired, NAV 995.

	b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 0, Type: domain.CloseThisBar})
	fills := b.Execute(day.AddDate(0, 0, 1), always, quote(map[string]float64{"A": 10}))
	if len(fills) != 1 || !near(fills[0].Qty, -49.5) || !near(fills[0].Fee, 4.95) {
		t.Fatalf("fills = %+v", fills)
	}
	acct, _ := b.GetAccount(ctx)
	if !near(acct.Cash, 990.05) || !near(acct.NAV, 990.05) {
		t.Errorf("account = %+v", acct)
	}
	if pos, _ := b.GetPositions(ctx); len(pos) != 0 {
		t.Errorf("positions = %+v, want none", pos)
	}
}

func TestRebalanceSellsBeforeBuys(t *testing.T) {
	b := NewSimulatorBroker(1000, 0)
	ctx := context.Background()
	b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 1, Type: domain.CloseThisBar})
	b.Execute(day, always, quote(map[string]float64{"A": 10}))

	b.SubmitOrder(ctx, &domain.Order{Symbol: "B", Weight: 1, Type: domain.CloseThisBar})
	b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 0, Type: domain.CloseThisBar})
	fills := b.Execute(day, always, quote(map[string]float64{"A": 20, "B": 40}))
	if len(fills) != 2 || fills[0].Symbol != "A" || fills[1].Symbol != "B" {
		t.Fatalf("fills = %+v", fills)
	}
	if p := b.Position("B"); !near(p.Qty, 50) {
		t.Errorf("B qty = %v, want 50", p.Qty)
	}
	if !near(b.NAV(), 2000) {
		t.Errorf("NAV = %v, want 2000", b.NAV())
	}
}

func TestOrdersWaitForQuoteAndDueTime(t *testing.T) {
	b := NewSimulatorBroker(1000, 0)
	ctx := context.Background()
	b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 1, Type: domain.OpenNextBar})

	if fills := b.Execute(day, always, quote(nil)); len(fills) != 0 {
		t.Errorf("filled without a quote: %+v", fills)
	}
	never := func(*domain.Order) bool { return false }
	if fills := b.Execute(day, never, quote(map[string]float64{"A": 1})); len(fills) != 0 {
		t.Errorf("filled before due: %+v", fills)
	}
	if len(b.Pending()) != 1 {
		t.Errorf("pending = %d, want 1", len(b.Pending()))
	}
}

func TestSupersedeAndCancel(t *testing.T) {
	b := NewSimulatorBroker(1000, 0)
	ctx := context.Background()
	first, _ := b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 1, Type: domain.OpenNextBar})
	second, _ := b.SubmitOrder(ctx, &domain.Order{Symbol: "A", Weight: 0.5, Type: domain.OpenNextBar})
	if first.Status != domain.OrderStatusCancelled {
		t.Errorf("first order status = %s, want cancelled", first.Status)
	}
	if err := b.CancelOrder(ctx, second.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if err := b.CancelOrder(ctx, second.ID); err == nil {
		t.Error("cancelling twice should fail")
	}
	if err := b.CancelOrder(ctx, "missing"); err == nil {
		t.Error("cancelling unknown order should fail")
	}
	if len(b.Pending()) != 0 {
		t.Errorf("pending = %d, want 0", len(b.Pending()))
	}
}
