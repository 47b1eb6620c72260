package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"simtrader/internal/cache"
	"simtrader/internal/domain"
	"simtrader/internal/series"
)

type testHost struct {
	now time.Time
	c   *cache.Cache
}

func (h *testHost) SimDate() time.Time  { return h.now }
func (h *testHost) Cache() *cache.Cache { return h.c }

func day(i int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func newSeries(vals []float64) (*testHost, *series.Float) {
	h := &testHost{c: cache.New(), now: day(len(vals) - 1)}
	pts := make([]series.Point, len(vals))
	for i, v := range vals {
		pts[i] = series.Point{Date: day(i), Value: v}
	}
	return h, series.Memo(h, "src", func() ([]series.Point, error) { return pts, nil })
}

func newAsset(bars []domain.Bar) (*testHost, *series.Asset) {
	h := &testHost{c: cache.New(), now: bars[len(bars)-1].Timestamp}
	a := series.NewAsset(h, "test:X", cache.Resolved(&domain.Asset{Bars: bars}, nil))
	return h, a
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func mustPoints(t *testing.T, s *series.Float) []float64 {
	t.Helper()
	pts, err := s.Points()
	if err != nil {
		t.Fatalf("%s: %v", s.ID(), err)
	}
	return values(pts)
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestConstantSeriesAverages(t *testing.T) {
	for _, c := range []float64{100, 0.1, 0.7, 123.456} {
		_, src := newSeries(constant(100, c))
		for _, n := range []int{1, 3, 20} {
			for _, s := range []*series.Float{EMA(src, n), SMA(src, n)} {
				for i, v := range mustPoints(t, s) {
					if v != c {
						t.Fatalf("%s[%d] = %.17g, want exactly %g", s.ID(), i, v, c)
					}
				}
			}
		}
	}
}

func TestSMALongSeries(t *testing.T) {
	vals := make([]float64, 5000)
	for i := range vals {
		vals[i] = 0.1 * float64(i%7)
	}
	_, src := newSeries(vals)
	got := mustPoints(t, SMA(src, 5))
	for i := 4; i < len(vals); i++ {
		want := 0.0
		for j := i - 4; j <= i; j++ {
			want += vals[j]
		}
		want /= 5
		if !near(got[i], want, 1e-12) {
			t.Fatalf("SMA[%d] = %.17g, want %.17g", i, got[i], want)
		}
	}
}

func TestEMAValues(t *testing.T) {
	_, src := newSeries([]float64{1, 2, 3})
	got := mustPoints(t, EMA(src, 3))
	want := []float64{1, 1.5, 2.25}
	for i := range want {
		if !near(got[i], want[i], 1e-12) {
			t.Errorf("EMA[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestSMAValues(t *testing.T) {
	_, src := newSeries([]float64{1, 2, 3, 4})
	got := mustPoints(t, SMA(src, 2))
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if !near(got[i], want[i], 1e-12) {
			t.Errorf("SMA[%d] = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestIndicatorMemoized(t *testing.T) {
	h, src := newSeries(constant(50, 10))
	a := EMA(src, 20)
	b := EMA(src, 20)
	if a.ID() != "src.EMA(20)" || a.ID() != b.ID() {
		t.Fatalf("IDs = %q, %q", a.ID(), b.ID())
	}
	_, _ = a.At(0)
	_, _ = b.At(-3)
	if n := h.c.Evaluations("src.EMA(20)"); n != 1 {
		t.Errorf("EMA evaluated %d times, want 1", n)
	}
}

func TestInvalidPeriod(t *testing.T) {
	_, src := newSeries(constant(10, 1))
	for _, s := range []*series.Float{EMA(src, 0), SMA(src, -1), RSI(src, 0), LinRegression(src, 1).Slope} {
		if _, err := s.At(0); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("%s: err = %v, want ErrConfiguration", s.ID(), err)
		}
	}
}

func TestLinRegressionPerfectLine(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 2*float64(i) + 3
	}
	_, src := newSeries(vals)
	reg := LinRegression(src, 5)

	slope, intercept, r2 := mustPoints(t, reg.Slope), mustPoints(t, reg.Intercept), mustPoints(t, reg.R2)
	for i := 4; i < len(vals); i++ {
		if !near(slope[i], 2, 1e-9) {
			t.Errorf("slope[%d] = %g, want 2", i, slope[i])
		}
		if !near(intercept[i], vals[i], 1e-9) {
			t.Errorf("intercept[%d] = %g, want %g", i, intercept[i], vals[i])
		}
		if !near(r2[i], 1, 1e-9) {
			t.Errorf("r2[%d] = %g, want 1", i, r2[i])
		}
	}
}

func TestLinRegressionFlat(t *testing.T) {
	_, src := newSeries(constant(10, 7))
	reg := LinRegression(src, 4)
	if v, _ := reg.R2.At(0); v != 0 {
		t.Errorf("R2 of flat series = %g, want 0", v)
	}
	if v, _ := reg.Slope.At(0); v != 0 {
		t.Errorf("slope of flat series = %g, want 0", v)
	}
}

func TestLogRegressionGrowth(t *testing.T) {
	vals := make([]float64, 40)
	for i := range vals {
		vals[i] = 100 * math.Exp(0.01*float64(i))
	}
	_, src := newSeries(vals)
	slope, err := LogRegression(src, 10).Slope.At(0)
	if err != nil || !near(slope, 0.01, 1e-9) {
		t.Errorf("LogRegression slope = %g, %v; want 0.01", slope, err)
	}
}

func TestRangeIndicatorsFlat(t *testing.T) {
	_, src := newSeries(constant(20, 42))
	if v, _ := WilliamsR(series.Flat(src), 10).At(0); v != -50 {
		t.Errorf("WilliamsR flat = %g, want -50", v)
	}
	stoch := StochasticOscillator(series.Flat(src), 10)
	if v, _ := stoch.PercentK.At(0); v != 50 {
		t.Errorf("%%K flat = %g, want 50", v)
	}
	if v, _ := stoch.PercentD.At(0); v != 50 {
		t.Errorf("%%D flat = %g, want 50", v)
	}
}

func TestRangeIndicatorsTrend(t *testing.T) {
	_, src := newSeries([]float64{1, 2, 3, 4, 5})
	if v, _ := WilliamsR(series.Flat(src), 5).At(0); v != 0 {
		t.Errorf("WilliamsR at high = %g, want 0", v)
	}
	if v, _ := WilliamsR(series.Flat(src), 5).At(-4); v != -50 {
		t.Errorf("WilliamsR first bar = %g, want -50", v)
	}
	k := StochasticOscillator(series.Flat(src), 3).PercentK
	// hh=5, ll=3, close=5
	if v, _ := k.At(0); v != 0 {
		t.Errorf("%%K = %g, want 0", v)
	}
}

func TestRSI(t *testing.T) {
	vals := make([]float64, 50)
	for i := range vals {
		vals[i] = 100 + float64(i)
	}
	_, src := newSeries(vals)
	if v, _ := RSI(src, 14).At(0); v < 99 {
		t.Errorf("RSI of rising series = %g, want > 99", v)
	}

	_, flat := newSeries(constant(20, 5))
	if v, _ := RSI(flat, 14).At(0); v != 0 {
		t.Errorf("RSI of flat series = %g, want 0", v)
	}
}

func TestCCIConstant(t *testing.T) {
	_, src := newSeries(constant(30, 9))
	for i, v := range mustPoints(t, CCI(src, 20)) {
		if v != 0 {
			t.Fatalf("CCI[%d] = %g, want 0", i, v)
		}
	}
}

func TestMomentumAndTSI(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = 50 * math.Exp(0.02*float64(i))
	}
	_, src := newSeries(vals)
	if v, _ := Momentum(src, 10).At(0); !near(v, 0.02, 1e-12) {
		t.Errorf("Momentum = %g, want 0.02", v)
	}
	if v, _ := TSI(src, 25, 13).At(0); v < 90 {
		t.Errorf("TSI of steady growth = %g, want close to 100", v)
	}
}

func trendingBars(n int, step float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + step*float64(i)
		bars[i] = domain.Bar{Timestamp: day(i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	return bars
}

func TestATRConstantRange(t *testing.T) {
	_, a := newAsset(trendingBars(30, 0))
	for i, v := range mustPoints(t, ATR(a, 14)) {
		if v != 2 {
			t.Fatalf("ATR[%d] = %g, want 2", i, v)
		}
	}
}

func TestADXUptrend(t *testing.T) {
	_, a := newAsset(trendingBars(200, 0.5))
	adx := DirectionalMovement(a, 14)

	if v, _ := adx.MinusDI.At(0); v != 0 {
		t.Errorf("-DI in a pure uptrend = %g, want 0", v)
	}
	if v, _ := adx.PlusDI.At(0); v <= 0 {
		t.Errorf("+DI = %g, want > 0", v)
	}
	if v, _ := adx.DX.At(0); !near(v, 1, 1e-9) {
		t.Errorf("DX = %g, want 1", v)
	}
	if v, _ := adx.ADX.At(0); v < 90 {
		t.Errorf("ADX = %g, want > 90", v)
	}
}

func TestTypicalPriceAndCCIPrice(t *testing.T) {
	_, a := newAsset(trendingBars(25, 0))
	if v, _ := TypicalPrice(a).At(0); v != 100 {
		t.Errorf("TypicalPrice = %g, want 100", v)
	}
	if v, _ := CCIPrice(a, 20).At(0); v != 0 {
		t.Errorf("CCIPrice = %g, want 0", v)
	}
}

func TestArithmetic(t *testing.T) {
	_, src := newSeries([]float64{2, 4, 8})
	if v, _ := Divide(src, Delay(src, 1)).At(0); v != 2 {
		t.Errorf("Divide/Delay = %g, want 2", v)
	}
	if v, _ := Return(src).At(0); v != 1 {
		t.Errorf("Return = %g, want 1", v)
	}
	if v, _ := Subtract(src, Multiply(src, 0.5)).At(0); v != 4 {
		t.Errorf("Subtract/Multiply = %g, want 4", v)
	}
	if v, _ := Add(src, src).At(-2); v != 4 {
		t.Errorf("Add = %g, want 4", v)
	}
	if v, _ := Highest(src, 2).At(-1); v != 4 {
		t.Errorf("Highest = %g, want 4", v)
	}
	if v, _ := Lowest(src, 2).At(0); v != 4 {
		t.Errorf("Lowest = %g, want 4", v)
	}
	if v, _ := AbsValue(Multiply(src, -1)).At(0); v != 8 {
		t.Errorf("AbsValue = %g, want 8", v)
	}
}

func TestBufferedMatchesEMA(t *testing.T) {
	vals := []float64{10, 12, 11, 15, 14, 13, 18}
	h, src := newSeries(vals)
	alpha := 2.0 / (1 + 3.0)
	whole := EMA(src, 3)

	for i := range vals {
		h.now = day(i)
		b := series.NewBuffered(h, "src.EMAStep(3)", vals[0], func(prev float64) float64 {
			v, _ := src.At(0)
			return prev + alpha*(v-prev)
		})
		want, _ := whole.At(0)
		got, err := b.At(0)
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if !near(got, want, 1e-12) {
			t.Errorf("bar %d: buffered = %g, whole-sequence = %g", i, got, want)
		}
	}
}
