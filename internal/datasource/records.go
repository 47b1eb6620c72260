package datasource

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"simtrader/internal/domain"
)

// FieldMap names the fields of one bar record in a provider document.
// AdjClose is optional; when set, prices are adjusted to it.
type FieldMap struct {
	Date       string
	DateLayout string
	Open       string
	High       string
	Low        string
	Close      string
	Volume     string
	AdjClose   string
}

var errMissingField = errors.New("missing required field")

// number reads a required numeric field. Missing, null or non-numeric
// values fail instead of defaulting to zero.
func number(rec gjson.Result, field string) (float64, error) {
	v := rec.Get(field)
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%w %q", errMissingField, field)
	}
	return v.Float(), nil
}

// extractRecords converts an array of bar records into ascending, validated
// bars for symbol.
func extractRecords(symbol string, records gjson.Result, fm FieldMap) ([]domain.Bar, error) {
	if !records.IsArray() {
		return nil, fmt.Errorf("records are not an array")
	}

	var (
		bars []domain.Bar
		err  error
	)
	records.ForEach(func(_, rec gjson.Result) bool {
		var b domain.Bar
		b, err = extractRecord(symbol, rec, fm)
		if err != nil {
			return false
		}
		bars = append(bars, b)
		return true
	})
	if err != nil {
		return nil, err
	}
	return finishBars(bars)
}

func extractRecord(symbol string, rec gjson.Result, fm FieldMap) (domain.Bar, error) {
	ds := rec.Get(fm.Date)
	if ds.Type != gjson.String {
		return domain.Bar{}, fmt.Errorf("%w %q", errMissingField, fm.Date)
	}
	ts, err := time.Parse(fm.DateLayout, ds.String())
	if err != nil {
		return domain.Bar{}, fmt.Errorf("field %q: %w", fm.Date, err)
	}

	b := domain.Bar{Symbol: symbol, Timestamp: day(ts)}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{fm.Open, &b.Open}, {fm.High, &b.High}, {fm.Low, &b.Low},
		{fm.Close, &b.Close}, {fm.Volume, &b.Volume},
	} {
		if *f.dst, err = number(rec, f.name); err != nil {
			return domain.Bar{}, err
		}
	}
	if fm.AdjClose != "" {
		adj, err := number(rec, fm.AdjClose)
		if err != nil {
			return domain.Bar{}, err
		}
		b = Adjust(b, adj)
	}
	return b, nil
}

// finishBars sorts bars ascending, drops duplicate dates (first wins) and
// checks every bar's invariants.
func finishBars(bars []domain.Bar) ([]domain.Bar, error) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Timestamp.Equal(bars[i-1].Timestamp) {
			continue
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
