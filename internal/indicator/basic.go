// Package indicator implements technical indicators on top of memoized
// series. Every indicator is registered in the run cache under
// "<source>.<NAME>(<params>)", so repeated calls with the same arguments
// share one computation.
package indicator

import (
	"fmt"
	"math"

	"simtrader/internal/cache"
	"simtrader/internal/domain"
	"simtrader/internal/series"
)

// epsilon floors denominators that may legitimately reach zero.
const epsilon = 1e-10

func checkPeriod(src *series.Float, op string, n, min int) (*series.Float, bool) {
	if n >= min {
		return nil, false
	}
	err := fmt.Errorf("%w: %s period %d must be >= %d", domain.ErrConfiguration, op, n, min)
	return series.Failed(src.Host(), cache.ID(src.ID(), op, n), err), true
}

func values(pts []series.Point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

func withValues(pts []series.Point, vals []float64) []series.Point {
	out := make([]series.Point, len(pts))
	for i, p := range pts {
		out[i] = series.Point{Date: p.Date, Value: vals[i]}
	}
	return out
}

// kernel lifts a function over the raw values into a Derive callback.
func kernel(fn func([]float64) []float64) func([]series.Point) ([]series.Point, error) {
	return func(pts []series.Point) ([]series.Point, error) {
		return withValues(pts, fn(values(pts))), nil
	}
}

// EMA is the exponential moving average with alpha = 2/(n+1), seeded with
// the first value.
func EMA(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "EMA", n, 1); ok {
		return bad
	}
	return src.Derive("EMA", kernel(func(v []float64) []float64 { return ema(v, n) }), n)
}

func ema(v []float64, n int) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	alpha := 2.0 / (1.0 + float64(n))
	e := v[0]
	for i, x := range v {
		e += alpha * (x - e)
		out[i] = e
	}
	return out
}

// SMA is the simple moving average over the trailing n values. Before n
// values exist the window is padded with the first value.
func SMA(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "SMA", n, 1); ok {
		return bad
	}
	return src.Derive("SMA", kernel(func(v []float64) []float64 { return sma(v, n) }), n)
}

// sma averages each window directly. Deviations are summed around the
// window's oldest sample, so a constant window yields exactly that constant.
func sma(v []float64, n int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		ref := v[max(0, i-n+1)]
		dev := 0.0
		for j := i - n + 1; j <= i; j++ {
			dev += v[max(0, j)] - ref
		}
		out[i] = ref + dev/float64(n)
	}
	return out
}

// Highest is the maximum of the trailing n values.
func Highest(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "Highest", n, 1); ok {
		return bad
	}
	return src.Derive("Highest", kernel(func(v []float64) []float64 { return window(v, n, math.Max) }), n)
}

// Lowest is the minimum of the trailing n values.
func Lowest(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "Lowest", n, 1); ok {
		return bad
	}
	return src.Derive("Lowest", kernel(func(v []float64) []float64 { return window(v, n, math.Min) }), n)
}

func window(v []float64, n int, pick func(a, b float64) float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		acc := v[i]
		for j := max(0, i-n+1); j < i; j++ {
			acc = pick(acc, v[j])
		}
		out[i] = acc
	}
	return out
}

// Delay shifts the series n bars into the future, clamping at the start.
func Delay(src *series.Float, n int) *series.Float {
	if bad, ok := checkPeriod(src, "Delay", n, 0); ok {
		return bad
	}
	return src.Derive("Delay", kernel(func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i := range v {
			out[i] = v[max(0, i-n)]
		}
		return out
	}), n)
}

// Return is the linear one-bar return v[t]/v[t-1] - 1. The first bar, and
// any bar following a zero, is 0.
func Return(src *series.Float) *series.Float {
	return src.Derive("Return", kernel(func(v []float64) []float64 {
		out := make([]float64, len(v))
		for i := 1; i < len(v); i++ {
			if v[i-1] != 0 {
				out[i] = v[i]/v[i-1] - 1
			}
		}
		return out
	}))
}

// AbsValue is |v|.
func AbsValue(src *series.Float) *series.Float {
	return src.Map("AbsValue", math.Abs)
}

// Log is the natural logarithm of the series.
func Log(src *series.Float) *series.Float {
	return src.Map("Log", math.Log)
}

// Add is a + b, with b aligned to a's dates.
func Add(a, b *series.Float) *series.Float {
	return series.Combine(cache.ID(a.ID(), "Add", b.ID()), a, b, func(x, y float64) float64 { return x + y })
}

// Subtract is a - b, with b aligned to a's dates.
func Subtract(a, b *series.Float) *series.Float {
	return series.Combine(cache.ID(a.ID(), "Subtract", b.ID()), a, b, func(x, y float64) float64 { return x - y })
}

// Divide is a / b, with b aligned to a's dates. Division by zero yields the
// IEEE result; indicators that can hit it floor the divisor themselves.
func Divide(a, b *series.Float) *series.Float {
	return series.Combine(cache.ID(a.ID(), "Divide", b.ID()), a, b, func(x, y float64) float64 { return x / y })
}

// Multiply scales the series by k.
func Multiply(src *series.Float, k float64) *series.Float {
	return src.Map("Multiply", func(v float64) float64 { return v * k }, k)
}
