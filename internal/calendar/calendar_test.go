package calendar

import (
	"context"
	"testing"
	"time"

	"simtrader/internal/domain"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestNYSEHolidays2024(t *testing.T) {
	want := []time.Time{
		date(2024, 1, 1), date(2024, 1, 15), date(2024, 2, 19), date(2024, 3, 29),
		date(2024, 5, 27), date(2024, 6, 19), date(2024, 7, 4), date(2024, 9, 2),
		date(2024, 11, 28), date(2024, 12, 25),
	}
	for _, d := range want {
		if !IsHoliday(d) {
			t.Errorf("%s should be a holiday", d.Format("2006-01-02"))
		}
	}
	if IsHoliday(date(2024, 7, 5)) {
		t.Error("2024-07-05 is not a holiday")
	}
}

func TestNYSEObservance(t *testing.T) {
	// 2021-07-04 is a Sunday, observed Monday the 5th.
	if !IsHoliday(date(2021, 7, 5)) {
		t.Error("2021-07-05 should be observed Independence Day")
	}
	// 2022-01-01 is a Saturday and is not observed on Friday 2021-12-31.
	if IsHoliday(date(2021, 12, 31)) {
		t.Error("2021-12-31 should be a trading day")
	}
	// 2020-12-25 is a Friday.
	if !IsHoliday(date(2020, 12, 25)) {
		t.Error("2020-12-25 should be a holiday")
	}
	// Juneteenth only from 2022.
	if IsHoliday(date(2020, 6, 19)) {
		t.Error("2020-06-19 should be a trading day")
	}
}

func TestNYSETradingDays(t *testing.T) {
	days, err := NYSE{}.TradingDays(context.Background(), date(2024, 1, 1), date(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	// 262 weekdays minus 10 holidays.
	if len(days) != 252 {
		t.Errorf("2024 trading days = %d, want 252", len(days))
	}
	if !days[0].Equal(date(2024, 1, 2)) {
		t.Errorf("first trading day = %v", days[0])
	}
}

func TestCalendarQueries(t *testing.T) {
	cal := New([]time.Time{
		date(2024, 1, 5), date(2024, 1, 3), date(2024, 1, 4),
		time.Date(2024, 1, 3, 15, 30, 0, 0, time.UTC),
	})
	if cal.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", cal.Len())
	}
	if !cal.First().Equal(date(2024, 1, 3)) || !cal.Last().Equal(date(2024, 1, 5)) {
		t.Errorf("First/Last = %v/%v", cal.First(), cal.Last())
	}
	if !cal.Contains(date(2024, 1, 4)) || cal.Contains(date(2024, 1, 6)) {
		t.Error("Contains() mismatch")
	}
	if got := cal.Between(date(2024, 1, 4), date(2024, 1, 10)); len(got) != 2 {
		t.Errorf("Between() = %v", got)
	}
	if got := cal.Between(date(2024, 2, 1), date(2024, 2, 10)); got != nil {
		t.Errorf("Between() outside range = %v", got)
	}
}

func TestResample(t *testing.T) {
	cal := New([]time.Time{
		date(2024, 1, 1), date(2024, 1, 2), date(2024, 1, 3), date(2024, 1, 4), date(2024, 1, 5), date(2024, 1, 8),
	})
	// Weekly-ish data with one weekend bar.
	bars := []domain.Bar{
		{Timestamp: date(2024, 1, 2), Close: 1},
		{Timestamp: date(2024, 1, 4), Close: 2},
		{Timestamp: date(2024, 1, 6), Close: 3},
		{Timestamp: date(2024, 1, 8), Close: 4},
	}
	got := cal.Resample(bars)
	want := []struct {
		d time.Time
		c float64
	}{
		{date(2024, 1, 2), 1}, {date(2024, 1, 3), 1}, {date(2024, 1, 4), 2},
		{date(2024, 1, 5), 2}, {date(2024, 1, 8), 4},
	}
	if len(got) != len(want) {
		t.Fatalf("Resample() len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if !got[i].Timestamp.Equal(w.d) || got[i].Close != w.c {
			t.Errorf("bar %d = %v %g, want %v %g", i, got[i].Timestamp, got[i].Close, w.d, w.c)
		}
	}
	if cal.Resample(nil) != nil {
		t.Error("Resample(nil) should be nil")
	}
}
