package calendar

import (
	"context"
	"time"
)

// NYSE generates trading dates from the exchange's regular holiday rules.
// Unscheduled closures (weather, national mourning) are not modeled; use
// AlpacaSource when those matter.
type NYSE struct{}

var _ Source = NYSE{}

// TradingDays returns weekdays in [start, end] that are not NYSE holidays.
func (NYSE) TradingDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var days []time.Time
	holidays := map[int]map[time.Time]bool{}
	for d := Day(start); !d.After(Day(end)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		h, ok := holidays[d.Year()]
		if !ok {
			h = nyseHolidays(d.Year())
			holidays[d.Year()] = h
		}
		if !h[d] {
			days = append(days, d)
		}
	}
	return days, nil
}

// IsHoliday reports whether d is a regular NYSE holiday.
func IsHoliday(d time.Time) bool {
	d = Day(d)
	return nyseHolidays(d.Year())[d]
}

func nyseHolidays(year int) map[time.Time]bool {
	h := map[time.Time]bool{}
	add := func(d time.Time) { h[d] = true }
	date := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 0, 0, 0, 0, time.UTC) }

	// New Year's Day falling on Saturday is not observed on the prior Friday.
	if ny := date(time.January, 1); ny.Weekday() == time.Sunday {
		add(ny.AddDate(0, 0, 1))
	} else if ny.Weekday() != time.Saturday {
		add(ny)
	}
	if year >= 1998 {
		add(nthWeekday(year, time.January, time.Monday, 3))
	}
	add(nthWeekday(year, time.February, time.Monday, 3))
	add(easter(year).AddDate(0, 0, -2))
	add(lastWeekday(year, time.May, time.Monday))
	if year >= 2022 {
		add(observed(date(time.June, 19)))
	}
	add(observed(date(time.July, 4)))
	add(nthWeekday(year, time.September, time.Monday, 1))
	add(nthWeekday(year, time.November, time.Thursday, 4))
	add(observed(date(time.December, 25)))
	return h
}

// observed moves Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, m time.Month, wd time.Weekday, n int) time.Time {
	d := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, m time.Month, wd time.Weekday) time.Time {
	d := time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// easter returns Easter Sunday (anonymous Gregorian algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
