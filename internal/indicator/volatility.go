package indicator

import (
	"math"

	"simtrader/internal/cache"
	"simtrader/internal/series"
)

// TrueRange is max(high, prevClose) - min(low, prevClose).
func TrueRange(p series.HLC) *series.Float {
	high, low, closes := p.High(), p.Low(), p.Close()
	id := cache.ID(closes.ID(), "TrueRange", high.ID(), low.ID())
	return series.Memo(closes.Host(), id, func() ([]series.Point, error) {
		h, l, c, err := hlc(high, low, closes)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(c))
		for i := range c {
			prev := c[max(0, i-1)].Value
			vals[i] = math.Max(h[i], prev) - math.Min(l[i], prev)
		}
		return withValues(c, vals), nil
	})
}

// ATR is the simple moving average of the true range.
func ATR(p series.HLC, n int) *series.Float {
	if bad, ok := checkPeriod(p.Close(), "ATR", n, 1); ok {
		return bad
	}
	return SMA(TrueRange(p), n)
}

// TypicalPrice is (high + low + close) / 3.
func TypicalPrice(p series.HLC) *series.Float {
	high, low, closes := p.High(), p.Low(), p.Close()
	id := cache.ID(closes.ID(), "TypicalPrice", high.ID(), low.ID())
	return series.Memo(closes.Host(), id, func() ([]series.Point, error) {
		h, l, c, err := hlc(high, low, closes)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(c))
		for i := range c {
			vals[i] = (h[i] + l[i] + c[i].Value) / 3
		}
		return withValues(c, vals), nil
	})
}

// hlc resolves the three price series and aligns high and low on the close
// dates.
func hlc(high, low, closes *series.Float) (h, l []float64, c []series.Point, err error) {
	if c, err = closes.Points(); err != nil {
		return nil, nil, nil, err
	}
	hp, err := high.Points()
	if err != nil {
		return nil, nil, nil, err
	}
	lp, err := low.Points()
	if err != nil {
		return nil, nil, nil, err
	}
	return series.Align(hp, c), series.Align(lp, c), c, nil
}
