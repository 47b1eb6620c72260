// Package calendar provides the ordered set of trading dates that drives a
// simulation and the resampling of foreign bar sequences onto it.
package calendar

import (
	"context"
	"sort"
	"time"

	"simtrader/internal/domain"
)

// Source produces the trading dates in [start, end].
type Source interface {
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// TradingCalendar is an ordered, de-duplicated list of trading dates at UTC
// midnight.
type TradingCalendar struct {
	days []time.Time
}

// New builds a calendar from arbitrary dates. Dates are truncated to the
// day, sorted and de-duplicated.
func New(days []time.Time) *TradingCalendar {
	norm := make([]time.Time, 0, len(days))
	for _, d := range days {
		norm = append(norm, Day(d))
	}
	sort.Slice(norm, func(i, j int) bool { return norm[i].Before(norm[j]) })

	out := norm[:0]
	for i, d := range norm {
		if i == 0 || !d.Equal(norm[i-1]) {
			out = append(out, d)
		}
	}
	return &TradingCalendar{days: out}
}

// Load builds a calendar for [start, end] from src.
func Load(ctx context.Context, src Source, start, end time.Time) (*TradingCalendar, error) {
	days, err := src.TradingDays(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return New(days), nil
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns the trading dates. The slice must not be modified.
func (c *TradingCalendar) Days() []time.Time { return c.days }

// Len returns the number of trading dates.
func (c *TradingCalendar) Len() int { return len(c.days) }

// First returns the earliest trading date, or the zero time when empty.
func (c *TradingCalendar) First() time.Time {
	if len(c.days) == 0 {
		return time.Time{}
	}
	return c.days[0]
}

// Last returns the latest trading date, or the zero time when empty.
func (c *TradingCalendar) Last() time.Time {
	if len(c.days) == 0 {
		return time.Time{}
	}
	return c.days[len(c.days)-1]
}

// Contains reports whether d is a trading date.
func (c *TradingCalendar) Contains(d time.Time) bool {
	d = Day(d)
	i := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(d) })
	return i < len(c.days) && c.days[i].Equal(d)
}

// Between returns the trading dates in [start, end].
func (c *TradingCalendar) Between(start, end time.Time) []time.Time {
	lo := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(Day(start)) })
	hi := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(Day(end)) })
	if lo >= hi {
		return nil
	}
	return c.days[lo:hi]
}

// Resample maps bars onto the calendar. Each trading date from the first bar
// to the last bar receives the latest bar at or before it, re-stamped with
// the trading date. Bars on non-trading dates are folded into the next
// trading date.
func (c *TradingCalendar) Resample(bars []domain.Bar) []domain.Bar {
	if len(bars) == 0 {
		return nil
	}
	first, last := Day(bars[0].Timestamp), Day(bars[len(bars)-1].Timestamp)

	out := make([]domain.Bar, 0, len(bars))
	j := 0
	for _, d := range c.Between(first, last) {
		for j+1 < len(bars) && !Day(bars[j+1].Timestamp).After(d) {
			j++
		}
		b := bars[j]
		b.Timestamp = d
		out = append(out, b)
	}
	return out
}
