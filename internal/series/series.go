// Package series provides navigable views over memoized time-ordered data.
// A view resolves relative offsets against the host's current simulation
// date: offset 0 is the latest point at or before that date, negative
// offsets step back in time, and offsets beyond either end clamp.
package series

import (
	"errors"
	"fmt"
	"time"

	"simtrader/internal/cache"
	"simtrader/internal/domain"
)

// ErrOutOfRange is returned when an offset is resolved against an empty
// series.
var ErrOutOfRange = errors.New("series out of range")

// Host supplies the current simulation date and the run-scoped cache shared
// by every series of a run.
type Host interface {
	SimDate() time.Time
	Cache() *cache.Cache
}

// Point is one dated value.
type Point struct {
	Date  time.Time
	Value float64
}

// Float is a numeric time series with a private cursor. Many Float values
// may share the same cached data; each keeps its own cursor.
type Float struct {
	host   Host
	id     string
	data   *cache.Future[[]Point]
	cursor int
}

// New wraps a data future. The slice produced by data must be sorted by date
// and must not be modified afterwards.
func New(host Host, id string, data *cache.Future[[]Point]) *Float {
	return &Float{host: host, id: id, data: cache.Put(host.Cache(), id, data)}
}

// Memo returns the series registered under id, computing it with fn on first
// read. Points that are not in strictly ascending date order are reported as
// ErrDataIntegrity, since the cursor relies on that order.
func Memo(host Host, id string, fn func() ([]Point, error)) *Float {
	return &Float{host: host, id: id, data: cache.Memo(host.Cache(), id, func() ([]Point, error) {
		pts, err := fn()
		if err != nil {
			return nil, err
		}
		if !sorted(pts) {
			return nil, fmt.Errorf("%w: series %s is not in ascending date order", domain.ErrDataIntegrity, id)
		}
		return pts, nil
	})}
}

// Failed returns a series whose every read reports err. Used to defer
// parameter errors to the first read.
func Failed(host Host, id string, err error) *Float {
	return &Float{host: host, id: id, data: cache.Resolved[[]Point](nil, err)}
}

// ID returns the structural identity of the series.
func (s *Float) ID() string { return s.id }

// Host returns the host the series is bound to.
func (s *Float) Host() Host { return s.host }

// Points blocks until the series is computed and returns its points.
func (s *Float) Points() ([]Point, error) { return s.data.Get() }

// At returns the value at offset relative to the current simulation date.
func (s *Float) At(offset int) (float64, error) {
	pts, err := s.data.Get()
	if err != nil {
		return 0, err
	}
	i, err := s.index(pts, offset)
	if err != nil {
		return 0, err
	}
	return pts[i].Value, nil
}

// Date returns the timestamp at offset relative to the current simulation
// date.
func (s *Float) Date(offset int) (time.Time, error) {
	pts, err := s.data.Get()
	if err != nil {
		return time.Time{}, err
	}
	i, err := s.index(pts, offset)
	if err != nil {
		return time.Time{}, err
	}
	return pts[i].Date, nil
}

func (s *Float) index(pts []Point, offset int) (int, error) {
	if len(pts) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrOutOfRange, s.id)
	}
	s.cursor = seek(s.cursor, len(pts), func(i int) time.Time { return pts[i].Date }, s.host.SimDate())
	return clamp(s.cursor+offset, len(pts)), nil
}

// seek moves cursor to the latest index whose date is at or before now,
// scanning locally from its previous position in either direction. When
// every date is after now the cursor rests on the first element.
func seek(cursor, n int, date func(int) time.Time, now time.Time) int {
	i := clamp(cursor, n)
	for i+1 < n && !date(i+1).After(now) {
		i++
	}
	for i > 0 && date(i).After(now) {
		i--
	}
	return i
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
