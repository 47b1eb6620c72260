package builtins

import (
	"context"
	"testing"
	"time"

	"simtrader/internal/calendar"
	"simtrader/internal/datasource"
	"simtrader/internal/domain"
	"simtrader/internal/engine"
	"simtrader/internal/strategy"
)

type weekdays struct{}

func (weekdays) TradingDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for d := calendar.Day(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
	}
	return out, nil
}

// vData rises for the first half of the calendar and falls afterwards.
type vData struct{}

func (vData) LoadAsset(_ context.Context, nick string, cal *calendar.TradingCalendar) (*domain.Asset, error) {
	days := cal.Days()
	var bars []domain.Bar
	for i, d := range days {
		p := 100 + float64(i)
		if i > len(days)/2 {
			p = 100 + float64(len(days)-i)
		}
		bars = append(bars, domain.Bar{Symbol: nick, Timestamp: d, Open: p, High: p, Low: p, Close: p})
	}
	return &domain.Asset{Nickname: nick, Bars: bars}, nil
}

func (vData) Universe(context.Context, string) (*datasource.Universe, error) {
	return nil, domain.ErrConfiguration
}

func run(t *testing.T, name string) *strategy.BacktestResult {
	t.Helper()
	reg := strategy.NewRegistry()
	Register(reg, "SPY", 3, 10)
	bt := strategy.NewBacktester(vData{}, weekdays{}, nil, reg, nil)
	res, err := bt.Run(context.Background(), name, engine.Config{
		Start:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		WarmupDays:  30,
		InitialCash: 1000,
		Friction:    0.001,
	})
	if err != nil {
		t.Fatalf("Run %s: %v", name, err)
	}
	return res
}

func TestEMACrossEntersAndExits(t *testing.T) {
	res := run(t, "ema-cross")
	if len(res.Fills) != 2 {
		t.Fatalf("fills = %+v, want entry and exit", res.Fills)
	}
	if res.Fills[0].Qty <= 0 || res.Fills[1].Qty >= 0 {
		t.Errorf("fills = %+v", res.Fills)
	}
	for _, f := range res.Fills[1:] {
		if !f.Date.After(res.Fills[0].Date) {
			t.Errorf("exit %v not after entry %v", f.Date, res.Fills[0].Date)
		}
	}
}

func TestBuyAndHoldSingleFill(t *testing.T) {
	res := run(t, "buy-and-hold")
	if len(res.Fills) != 1 || res.Fills[0].Qty <= 0 {
		t.Fatalf("fills = %+v", res.Fills)
	}
}

func TestRegisterNames(t *testing.T) {
	reg := strategy.NewRegistry()
	Register(reg, "SPY", 5, 20)
	names := reg.List()
	if len(names) != 2 || names[0] != "buy-and-hold" || names[1] != "ema-cross" {
		t.Errorf("names = %v", names)
	}
}
