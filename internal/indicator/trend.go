package indicator

import (
	"math"

	"simtrader/internal/cache"
	"simtrader/internal/series"
)

// ADX holds the directional movement system.
type ADX struct {
	PlusDI  *series.Float
	MinusDI *series.Float
	DX      *series.Float
	ADX     *series.Float
}

// DirectionalMovement computes +DI, -DI, DX and ADX over n bars. Directional
// movement is smoothed with EMA(n) and normalized by ATR(n).
func DirectionalMovement(p series.HLC, n int) ADX {
	if bad, ok := checkPeriod(p.Close(), "ADX", n, 1); ok {
		return ADX{PlusDI: bad, MinusDI: bad, DX: bad, ADX: bad}
	}
	high, low := p.High(), p.Low()
	plusDM := directional(high, low, true)
	minusDM := directional(high, low, false)
	atr := ATR(p, n)

	di := func(dm *series.Float, op string) *series.Float {
		smoothed := EMA(dm, n)
		return series.Combine(cache.ID(smoothed.ID(), op, atr.ID()), smoothed, atr, func(x, a float64) float64 {
			return 100 * x / math.Max(epsilon, a)
		})
	}
	plusDI := di(plusDM, "PlusDI")
	minusDI := di(minusDM, "MinusDI")

	dx := series.Combine(cache.ID(plusDI.ID(), "DX", minusDI.ID()), plusDI, minusDI, func(pl, mi float64) float64 {
		return math.Abs(pl-mi) / math.Max(epsilon, pl+mi)
	})
	return ADX{
		PlusDI:  plusDI,
		MinusDI: minusDI,
		DX:      dx,
		ADX:     Multiply(EMA(dx, n), 100),
	}
}

// directional returns +DM (plus) or -DM. upMove = max(0, H - H[-1]) and
// downMove = max(0, L[-1] - L); the larger move counts, ties count as zero.
func directional(high, low *series.Float, plus bool) *series.Float {
	op := "MinusDM"
	if plus {
		op = "PlusDM"
	}
	return series.Memo(high.Host(), cache.ID(high.ID(), op, low.ID()), func() ([]series.Point, error) {
		hp, err := high.Points()
		if err != nil {
			return nil, err
		}
		lp, err := low.Points()
		if err != nil {
			return nil, err
		}
		h, l := values(hp), series.Align(lp, hp)
		vals := make([]float64, len(h))
		for i := 1; i < len(h); i++ {
			up := math.Max(0, h[i]-h[i-1])
			down := math.Max(0, l[i-1]-l[i])
			switch {
			case plus && up > down:
				vals[i] = up
			case !plus && down > up:
				vals[i] = down
			}
		}
		return withValues(hp, vals), nil
	})
}

// Regression holds the rolling least-squares fit over the trailing window.
// The x axis runs from -n+1 (oldest) to 0 (current bar), so Intercept is the
// fitted value at the current bar.
type Regression struct {
	Slope     *series.Float
	Intercept *series.Float
	R2        *series.Float
}

type fit struct{ slope, intercept, r2 float64 }

// LinRegression fits a line to the trailing n values at every bar. Values
// before the start of the series repeat the first value.
func LinRegression(src *series.Float, n int) Regression {
	if bad, ok := checkPeriod(src, "LinRegression", n, 2); ok {
		return Regression{Slope: bad, Intercept: bad, R2: bad}
	}
	id := cache.ID(src.ID(), "LinRegression", n)
	fits := cache.Memo(src.Host().Cache(), id, func() ([]fit, error) {
		pts, err := src.Points()
		if err != nil {
			return nil, err
		}
		v := values(pts)
		out := make([]fit, len(v))
		for i := range v {
			out[i] = regress(v, i, n)
		}
		return out, nil
	})

	field := func(name string, pick func(fit) float64) *series.Float {
		return series.Memo(src.Host(), id+"."+name, func() ([]series.Point, error) {
			pts, err := src.Points()
			if err != nil {
				return nil, err
			}
			fs, err := fits.Get()
			if err != nil {
				return nil, err
			}
			vals := make([]float64, len(fs))
			for i, f := range fs {
				vals[i] = pick(f)
			}
			return withValues(pts, vals), nil
		})
	}
	return Regression{
		Slope:     field("Slope", func(f fit) float64 { return f.slope }),
		Intercept: field("Intercept", func(f fit) float64 { return f.intercept }),
		R2:        field("R2", func(f fit) float64 { return f.r2 }),
	}
}

// LogRegression is LinRegression of the natural log of the series.
func LogRegression(src *series.Float, n int) Regression {
	return LinRegression(Log(src), n)
}

func regress(v []float64, i, n int) fit {
	y := func(x int) float64 { return v[max(0, i+x)] }

	var avgX, avgY float64
	for x := -n + 1; x <= 0; x++ {
		avgX += float64(x)
		avgY += y(x)
	}
	avgX /= float64(n)
	avgY /= float64(n)

	var sxx, sxy float64
	for x := -n + 1; x <= 0; x++ {
		dx := float64(x) - avgX
		sxx += dx * dx
		sxy += dx * (y(x) - avgY)
	}
	b := sxy / sxx
	a := avgY - b*avgX

	var ssReg, ssRes float64
	for x := -n + 1; x <= 0; x++ {
		f := a + b*float64(x)
		ssReg += (f - avgY) * (f - avgY)
		ssRes += (f - y(x)) * (f - y(x))
	}
	r2 := 0.0
	if ssReg != 0 {
		r2 = 1 - math.Min(1, ssRes/ssReg)
	}
	return fit{slope: b, intercept: a, r2: r2}
}
