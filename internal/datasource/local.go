package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"simtrader/internal/domain"
	"simtrader/internal/store"
)

// Local serves bars previously written to a BarStore, typically by the
// warmer. Symbols are "SOURCE/SYMBOL" or a bare symbol read from the default
// source. Bars in the store are already adjusted.
type Local struct {
	bars          store.BarStore
	defaultSource string
}

// NewLocal creates a provider over s.
func NewLocal(s store.BarStore, defaultSource string) *Local {
	return &Local{bars: s, defaultSource: defaultSource}
}

func (p *Local) Name() string { return "pq" }

func (p *Local) split(symbol string) (source, ticker string) {
	if src, sym, ok := strings.Cut(symbol, "/"); ok {
		return src, strings.ToUpper(sym)
	}
	return p.defaultSource, strings.ToUpper(symbol)
}

var localEpoch = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)

var localBarFields = FieldMap{
	Date:       "date",
	DateLayout: domain.DateLayout,
	Open:       "open",
	High:       "high",
	Low:        "low",
	Close:      "close",
	Volume:     "volume",
}

func (p *Local) Bars(symbol string) Loader[[]domain.Bar] {
	source, ticker := p.split(symbol)
	return Loader[[]domain.Bar]{
		Key:     store.Key{Provider: p.Name(), Symbol: source + "/" + ticker, Signature: "bars"},
		NoCache: true,
		Fetch: func(ctx context.Context) ([]byte, error) {
			if source == "" {
				return nil, fmt.Errorf("%w: no source for %q", domain.ErrConfiguration, symbol)
			}
			bars, err := p.bars.ReadBars(ctx, source, ticker, localEpoch, time.Now().AddDate(0, 0, 7))
			if err != nil {
				return nil, err
			}
			records := make([]alpacaRecord, len(bars))
			for i, b := range bars {
				records[i] = alpacaRecord{
					Date: b.Timestamp.UTC().Format(domain.DateLayout),
					Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
				}
			}
			return json.Marshal(records)
		},
		Validate: func(raw []byte) error {
			if doc := gjson.ParseBytes(raw); !doc.IsArray() || len(doc.Array()) == 0 {
				return errors.New("no stored bars")
			}
			return nil
		},
		Extract: func(raw []byte) ([]domain.Bar, error) {
			return extractRecords(ticker, gjson.ParseBytes(raw), localBarFields)
		},
	}
}

// Meta has nothing to look up locally; the ticker doubles as description.
func (p *Local) Meta(symbol string) Loader[domain.Meta] {
	_, ticker := p.split(symbol)
	m := domain.Meta{Ticker: ticker, Description: ticker}
	return Loader[domain.Meta]{
		Key:      store.Key{Provider: p.Name(), Symbol: ticker, Signature: "meta"},
		NoCache:  true,
		Fetch:    func(context.Context) ([]byte, error) { return nil, nil },
		Validate: func([]byte) error { return nil },
		Extract:  func([]byte) (domain.Meta, error) { return m, nil },
	}
}
