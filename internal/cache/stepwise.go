package cache

import (
	"sort"
	"sync"
	"time"
)

// Steps stores one value per visited date for a recursively defined series.
// New values are computed from the immediately preceding output, so each new
// date costs O(1) and visited dates are never recomputed.
type Steps struct {
	mu     sync.Mutex
	dates  []time.Time
	values []float64
}

// Stepwise returns the Steps registered under id, creating it on first use.
// An id already registered for another result type is an ErrConfiguration.
func Stepwise(c *Cache, id string) (*Steps, error) {
	return Memo(c, id, func() (*Steps, error) { return &Steps{}, nil }).Get()
}

// At returns the value for date. A date after the last visited one is
// computed as step(previous output), using init before the first step. A
// date already visited returns the stored value; a date between visited
// dates returns the latest value at or before it, and a date before the
// first visited one returns init.
func (s *Steps) At(date time.Time, init float64, step func(prev float64) float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.dates)
	if n == 0 || date.After(s.dates[n-1]) {
		prev := init
		if n > 0 {
			prev = s.values[n-1]
		}
		v := step(prev)
		s.dates = append(s.dates, date)
		s.values = append(s.values, v)
		return v
	}

	i := sort.Search(n, func(i int) bool { return s.dates[i].After(date) })
	if i == 0 {
		return init
	}
	return s.values[i-1]
}

// Len returns the number of stored values.
func (s *Steps) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Index returns the position of the latest stored date at or before date,
// or -1 when none exists.
func (s *Steps) Index(date time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(date) }) - 1
}

// Value returns the stored value at position i.
func (s *Steps) Value(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[i]
}
