package indicator

import (
	"math"

	"simtrader/internal/cache"
	"simtrader/internal/series"
)

// RSI is the relative strength index. Gains and losses of the one-bar
// return are smoothed with EMA(n).
func RSI(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "RSI", n, 1); ok {
		return bad
	}
	ret := Return(src)
	up := EMA(ret.Map("Gain", func(v float64) float64 { return math.Max(0, v) }), n)
	down := EMA(ret.Map("Loss", func(v float64) float64 { return math.Max(0, -v) }), n)
	return series.Combine(cache.ID(src.ID(), "RSI", n), up, down, func(u, d float64) float64 {
		rs := u / math.Max(epsilon, d)
		return 100 - 100/(1+rs)
	})
}

// CCI is the commodity channel index of a plain series.
func CCI(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "CCI", n, 1); ok {
		return bad
	}
	delta := Subtract(src, SMA(src, n))
	meanDev := SMA(AbsValue(delta), n)
	return series.Combine(cache.ID(src.ID(), "CCI", n), delta, meanDev, func(d, m float64) float64 {
		return d / math.Max(epsilon, 0.015*m)
	})
}

// CCIPrice is the commodity channel index of the typical price.
func CCIPrice(p series.HLC, n int) *series.Float {
	return CCI(TypicalPrice(p), n)
}

// TSI is the true strength index with long period r and short period s.
func TSI(src *series.Float, r, s int) *series.Float {
	if bad, ok := checkPeriod(src, "TSI", min(r, s), 1); ok {
		return bad
	}
	ret := Return(src)
	num := EMA(EMA(ret, r), s)
	den := EMA(EMA(AbsValue(ret), r), s)
	return series.Combine(cache.ID(src.ID(), "TSI", r, s), num, den, func(x, y float64) float64 {
		return 100 * x / math.Max(epsilon, y)
	})
}

// Momentum is the per-bar log return over n bars: ln(v[t]/v[t-n]) / n.
func Momentum(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "Momentum", n, 1); ok {
		return bad
	}
	return src.Derive("Momentum", kernel(func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i := range v {
			out[i] = math.Log(v[i]/v[max(0, i-n)]) / float64(n)
		}
		return out
	}), n)
}

// WilliamsR is Williams %R over n bars. A flat range yields -50.
func WilliamsR(p series.HLC, n int) *series.Float {
	if bad, ok := checkPeriod(p.Close(), "WilliamsR", n, 1); ok {
		return bad
	}
	return rangePosition(p, n, "WilliamsR", func(hh, ll, c float64) float64 {
		if hh-ll == 0 {
			return -50
		}
		return -100 * (hh - c) / (hh - ll)
	})
}

// Stochastic holds the %K line and its three-bar SMA, %D.
type Stochastic struct {
	PercentK *series.Float
	PercentD *series.Float
}

// StochasticOscillator computes %K = 100*(hh-close)/(hh-ll) over n bars, 50
// for a flat range, and %D = SMA(%K, 3).
func StochasticOscillator(p series.HLC, n int) Stochastic {
	if bad, ok := checkPeriod(p.Close(), "Stochastic", n, 1); ok {
		return Stochastic{PercentK: bad, PercentD: bad}
	}
	k := rangePosition(p, n, "StochasticK", func(hh, ll, c float64) float64 {
		if hh-ll == 0 {
			return 50
		}
		return 100 * (hh - c) / (hh - ll)
	})
	return Stochastic{PercentK: k, PercentD: SMA(k, 3)}
}

func rangePosition(p series.HLC, n int, op string, fn func(hh, ll, c float64) float64) *series.Float {
	hh, ll, closes := Highest(p.High(), n), Lowest(p.Low(), n), p.Close()
	id := cache.ID(closes.ID(), op, n, p.High().ID(), p.Low().ID())
	return series.Memo(closes.Host(), id, func() ([]series.Point, error) {
		h, l, c, err := hlc(hh, ll, closes)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(c))
		for i := range c {
			vals[i] = fn(h[i], l[i], c[i].Value)
		}
		return withValues(c, vals), nil
	})
}
