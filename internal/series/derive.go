package series

import "simtrader/internal/cache"

// Derive returns the series computed by fn from the points of s, memoized
// under the identity s.op(params...).
func (s *Float) Derive(op string, fn func([]Point) ([]Point, error), params ...any) *Float {
	id := cache.ID(s.id, op, params...)
	return Memo(s.host, id, func() ([]Point, error) {
		pts, err := s.Points()
		if err != nil {
			return nil, err
		}
		return fn(pts)
	})
}

// Map applies fn to every value of s.
func (s *Float) Map(op string, fn func(float64) float64, params ...any) *Float {
	return s.Derive(op, func(pts []Point) ([]Point, error) {
		out := make([]Point, len(pts))
		for i, p := range pts {
			out[i] = Point{Date: p.Date, Value: fn(p.Value)}
		}
		return out, nil
	}, params...)
}

// Combine merges b into a point by point on a's dates and memoizes the
// result under id. b is aligned by taking its latest value at or before each
// date of a, clamped to its first value.
func Combine(id string, a, b *Float, fn func(x, y float64) float64) *Float {
	return Memo(a.host, id, func() ([]Point, error) {
		pa, err := a.Points()
		if err != nil {
			return nil, err
		}
		pb, err := b.Points()
		if err != nil {
			return nil, err
		}
		aligned := Align(pb, pa)
		out := make([]Point, len(pa))
		for i, p := range pa {
			out[i] = Point{Date: p.Date, Value: fn(p.Value, aligned[i])}
		}
		return out, nil
	})
}

// Align returns the values of src sampled on the dates of ref using the
// latest src point at or before each date. Dates before the first src point
// take its first value; an empty src yields zeros.
func Align(src, ref []Point) []float64 {
	out := make([]float64, len(ref))
	if len(src) == 0 {
		return out
	}
	j := 0
	for i, p := range ref {
		for j+1 < len(src) && !src[j+1].Date.After(p.Date) {
			j++
		}
		out[i] = src[j].Value
	}
	return out
}

// sorted reports whether pts are in strictly ascending date order.
func sorted(pts []Point) bool {
	for i := 1; i < len(pts); i++ {
		if !pts[i].Date.After(pts[i-1].Date) {
			return false
		}
	}
	return true
}
