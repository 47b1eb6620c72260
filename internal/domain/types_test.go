package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestBarValidate(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	good := Bar{Symbol: "AAPL", Timestamp: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: 100}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}

	cases := map[string]Bar{
		"zero close":   {Symbol: "X", Timestamp: ts, Open: 10, High: 12, Low: 9, Close: 0},
		"high below":   {Symbol: "X", Timestamp: ts, Open: 10, High: 10.5, Low: 9, Close: 11},
		"low above":    {Symbol: "X", Timestamp: ts, Open: 10, High: 12, Low: 10.5, Close: 11},
		"negative vol": {Symbol: "X", Timestamp: ts, Open: 10, High: 12, Low: 9, Close: 11, Volume: -1},
		"high by ulp":  {Symbol: "X", Timestamp: ts, Open: 10, High: math.Nextafter(11, 0), Low: 9, Close: 11},
		"low by ulp":   {Symbol: "X", Timestamp: ts, Open: 10, High: 12, Low: math.Nextafter(10, 11), Close: 11},
	}
	for name, b := range cases {
		err := b.Validate()
		if !errors.Is(err, ErrDataIntegrity) {
			t.Errorf("%s: Validate() = %v, want ErrDataIntegrity", name, err)
		}
	}
}

func TestFieldValue(t *testing.T) {
	b := Bar{Open: 1, High: 4, Low: 0.5, Close: 2, Volume: 7}
	want := map[Field]float64{FieldOpen: 1, FieldHigh: 4, FieldLow: 0.5, FieldClose: 2, FieldVolume: 7}
	for f, v := range want {
		if got := f.Value(b); got != v {
			t.Errorf("%s.Value() = %g, want %g", f, got, v)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("load fmp:SPY: %w", ErrDataUnavailable)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Error("wrapped error should match ErrDataUnavailable")
	}
	if errors.Is(err, ErrConfiguration) {
		t.Error("wrapped error should not match ErrConfiguration")
	}
}

func TestPositionMarketValue(t *testing.T) {
	pos := Position{Symbol: "AAPL", Qty: -10, LastPrice: 5}
	if got := pos.MarketValue(); got != -50 {
		t.Errorf("MarketValue() = %g, want -50", got)
	}
}
