package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"simtrader/internal/calendar"
	"simtrader/internal/datasource"
	"simtrader/internal/domain"
	"simtrader/internal/indicator"
	"simtrader/internal/metrics"
)

// weekdays is a calendar source trading every Monday to Friday.
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

// fakeData serves bars with open = 100 + i and close = open + 0.5.
type fakeData struct {
	symbols map[string]bool
	loads   map[string]int
}

func newFakeData(symbols ...string) *fakeData {
	d := &fakeData{symbols: make(map[string]bool), loads: make(map[string]int)}
	for _, s := range symbols {
		d.symbols[s] = true
	}
	return d
}

func (f *fakeData) LoadAsset(_ context.Context, nick string, cal *calendar.TradingCalendar) (*domain.Asset, error) {
	if !f.symbols[nick] {
		return nil, domain.ErrDataUnavailable
	}
	var bars []domain.Bar
	for i, d := range cal.Days() {
		o := 100 + float64(i)
		bars = append(bars, domain.Bar{Symbol: nick, Timestamp: d, Open: o, High: o + 1, Low: o - 1, Close: o + 0.5, Volume: 1})
	}
	return &domain.Asset{Nickname: nick, Meta: domain.Meta{Ticker: nick}, Bars: bars}, nil
}

func (f *fakeData) Universe(context.Context, string) (*datasource.Universe, error) {
	return nil, domain.ErrConfiguration
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func testConfig() Config {
	return Config{
		Start:       date(2024, 1, 8),
		End:         date(2024, 1, 19),
		WarmupDays:  7,
		InitialCash: 1000,
		Friction:    0.005,
		MaxWeight:   1,
	}
}

func TestConfigValidate(t *testing.T) {
	good := testConfig()
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := []func(*Config){
		func(c *Config) { c.End = c.Start.AddDate(0, 0, -1) },
		func(c *Config) { c.InitialCash = 0 },
		func(c *Config) { c.Friction = 1 },
		func(c *Config) { c.WarmupDays = -1 },
		func(c *Config) { c.MaxWeight = math.NaN() },
		func(c *Config) { c.Start = time.Time{} },
	}
	for i, mutate := range bad {
		c := testConfig()
		mutate(&c)
		if err := c.Validate(); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("case %d: err = %v, want ErrConfiguration", i, err)
		}
	}
}

func TestStatesAndEquity(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Asset("SPY")

	var states []State
	firsts, lasts := 0, 0
	res, err := r.Loop(ctx, func(_ context.Context, r *Run) error {
		states = append(states, r.State())
		if r.IsFirstBar() {
			firsts++
			if !r.SimDate().Equal(date(2024, 1, 8)) {
				t.Errorf("first bar = %v", r.SimDate())
			}
		}
		if r.IsLastBar() {
			lasts++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	// 2024-01-01..05 warmup, 01-08..19 active.
	if len(states) != 15 || states[0] != StateWarmup || states[4] != StateWarmup || states[5] != StateActive {
		t.Errorf("states = %v", states)
	}
	if firsts != 1 || lasts != 1 {
		t.Errorf("first/last bar seen %d/%d times", firsts, lasts)
	}
	if len(res.Equity) != 10 || res.FinalNAV != 1000 {
		t.Errorf("equity points = %d, final NAV = %v", len(res.Equity), res.FinalNAV)
	}
	if r.State() != StateDone {
		t.Errorf("state = %s, want done", r.State())
	}
	if _, err := r.Loop(ctx, nil); err == nil {
		t.Error("second Loop should fail")
	}
}

func TestFullAllocationAtNextOpen(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r, err := New(ctx, testConfig(), newFakeData("SPY"), weekdays{}, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spy := r.Asset("SPY")

	var navAtFill, valueAfterFill float64
	res, err := r.Loop(ctx, func(_ context.Context, r *Run) error {
		if len(r.fills) == 1 && valueAfterFill == 0 {
			b, _ := spy.Bar(0)
			valueAfterFill = r.Position("SPY").Qty * b.Open
		}
		if r.IsFirstBar() {
			navAtFill = r.NAV()
			return r.Allocate("SPY", 1, domain.OpenNextBar)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	f := res.Fills[0]
	if !f.Date.Equal(date(2024, 1, 9)) || f.Price != 106 {
		t.Errorf("fill = %+v, want 2024-01-09 at open 106", f)
	}
	want := navAtFill * (1 - 0.005)
	if math.Abs(valueAfterFill-want) > 1e-6 {
		t.Errorf("position value after fill = %v, want %v", valueAfterFill, want)
	}
	if got := testutil.ToFloat64(m.OrdersFilled); got != 1 {
		t.Errorf("orders filled metric = %v", got)
	}
	if got := testutil.ToFloat64(m.BarsProcessed); got != 15 {
		t.Errorf("bars processed metric = %v", got)
	}
	last := res.Equity[len(res.Equity)-1]
	if math.Abs(last.NAV-f.Qty*114.5) > 1e-6 {
		t.Errorf("final NAV = %v, want %v", last.NAV, f.Qty*114.5)
	}
}

func TestCloseThisBarFillsSameDay(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Friction = 0
	r, _ := New(ctx, cfg, newFakeData("SPY"), weekdays{})
	res, err := r.Loop(ctx, func(_ context.Context, r *Run) error {
		if r.IsFirstBar() {
			return r.Allocate("SPY", 0.5, domain.CloseThisBar)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if len(res.Fills) != 1 || !res.Fills[0].Date.Equal(date(2024, 1, 8)) || res.Fills[0].Price != 105.5 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	if math.Abs(r.Weight("SPY")-0.5) > 0.05 {
		t.Errorf("weight = %v", r.Weight("SPY"))
	}
}

func TestWarmupAllocationsDiscarded(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
	res, err := r.Loop(ctx, func(_ context.Context, r *Run) error {
		if r.State() == StateWarmup {
			return r.Allocate("SPY", 1, domain.CloseThisBar)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if len(res.Fills) != 0 || res.FinalNAV != 1000 {
		t.Errorf("fills = %d, final NAV = %v", len(res.Fills), res.FinalNAV)
	}
}

func TestAllocateErrors(t *testing.T) {
	ctx := context.Background()
	cases := map[string]func(r *Run) error{
		"unresolvable": func(r *Run) error { return r.Allocate("NOPE", 1, domain.OpenNextBar) },
		"over limit":   func(r *Run) error { return r.Allocate("SPY", 1.5, domain.OpenNextBar) },
		"not finite":   func(r *Run) error { return r.Allocate("SPY", math.Inf(1), domain.OpenNextBar) },
		"bad type":     func(r *Run) error { return r.Allocate("SPY", 1, "whenever") },
	}
	for name, alloc := range cases {
		r, _ := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
		_, err := r.Loop(ctx, func(_ context.Context, r *Run) error { return alloc(r) })
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", name, err)
		}
	}

	r, _ := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
	if err := r.Allocate("SPY", 1, domain.OpenNextBar); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("allocate before loop: err = %v", err)
	}
}

func TestBarrierFailsBeforeFirstBar(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
	r.Asset("SPY")
	r.Asset("MISSING")
	called := false
	_, err := r.Loop(ctx, func(context.Context, *Run) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
	if called {
		t.Error("strategy called before assets resolved")
	}
}

func TestIndicatorsFollowSimDate(t *testing.T) {
	ctx := context.Background()
	r, _ := New(ctx, testConfig(), newFakeData("SPY"), weekdays{})
	closes := r.Asset("SPY").Close()
	prev := indicator.Delay(closes, 1)
	_, err := r.Loop(ctx, func(_ context.Context, r *Run) error {
		c, err := closes.At(0)
		if err != nil {
			return err
		}
		p, err := prev.At(0)
		if err != nil {
			return err
		}
		if !r.SimDate().Equal(r.Calendar().First()) && c-p != 1 {
			t.Errorf("%v: close %v prev %v", r.SimDate(), c, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if n := r.Cache().Evaluations("asset:SPY"); n != 1 {
		t.Errorf("asset loaded %d times", n)
	}
}

func TestNoActiveDates(t *testing.T) {
	cfg := testConfig()
	cfg.Start, cfg.End = date(2024, 1, 6), date(2024, 1, 7)
	if _, err := New(context.Background(), cfg, newFakeData(), weekdays{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

// stallData fails one asset immediately and blocks every other load until
// its context is cancelled.
type stallData struct {
	cancelled chan string
}

func (d *stallData) LoadAsset(ctx context.Context, nick string, _ *calendar.TradingCalendar) (*domain.Asset, error) {
	if nick == "MISSING" {
		return nil, domain.ErrDataUnavailable
	}
	<-ctx.Done()
	d.cancelled <- nick
	return nil, ctx.Err()
}

func (d *stallData) Universe(context.Context, string) (*datasource.Universe, error) {
	return nil, domain.ErrConfiguration
}

func TestBarrierCancelsPendingLoads(t *testing.T) {
	ctx := context.Background()
	data := &stallData{cancelled: make(chan string, 1)}
	r, err := New(ctx, testConfig(), data, weekdays{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Asset("SLOW")
	r.Asset("MISSING")

	_, err = r.Loop(ctx, func(context.Context, *Run) error { return nil })
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	select {
	case nick := <-data.cancelled:
		if nick != "SLOW" {
			t.Errorf("cancelled load = %q, want SLOW", nick)
		}
	default:
		t.Error("pending load was not cancelled")
	}
}
