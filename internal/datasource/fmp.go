package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"simtrader/internal/domain"
	"simtrader/internal/store"
)

// FMP loads bars, quotes and index membership from Financial Modeling Prep.
type FMP struct {
	apiKey  string
	baseURL string
	http    *httpGetter
	now     func() time.Time
}

// NewFMP creates an FMP provider.
func NewFMP(apiKey, baseURL string, opts HTTPOptions) *FMP {
	return &FMP{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPGetter(opts),
		now:     time.Now,
	}
}

func (p *FMP) Name() string { return "fmp" }

// fmpTicker converts a ticker to FMP's notation, which uses "-" for share
// classes (BRK.B becomes BRK-B).
func fmpTicker(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), ".", "-")
}

func (p *FMP) url(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", p.apiKey)
	return p.baseURL + path + "?" + query.Encode()
}

var fmpBarFields = FieldMap{
	Date:       "date",
	DateLayout: domain.DateLayout,
	Open:       "open",
	High:       "high",
	Low:        "low",
	Close:      "close",
	Volume:     "unadjustedVolume",
	AdjClose:   "adjClose",
}

// Bars requests the full history up to a few days past today so the
// signature stays stable and the cache can serve later runs.
func (p *FMP) Bars(symbol string) Loader[[]domain.Bar] {
	ticker := fmpTicker(symbol)
	return Loader[[]domain.Bar]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "historical-price-full"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			q := url.Values{}
			q.Set("from", "1950-01-01")
			q.Set("to", p.now().AddDate(0, 0, 5).Format(domain.DateLayout))
			return p.http.get(ctx, p.url("/api/v3/historical-price-full/"+url.PathEscape(ticker), q))
		},
		Validate: func(raw []byte) error {
			if len(raw) < 25 || !gjson.ValidBytes(raw) {
				return errors.New("truncated or malformed document")
			}
			hist := gjson.GetBytes(raw, "historical")
			if !hist.IsArray() || len(hist.Array()) == 0 {
				return errors.New("no historical records")
			}
			return nil
		},
		Extract: func(raw []byte) ([]domain.Bar, error) {
			return extractRecords(ticker, gjson.GetBytes(raw, "historical"), fmpBarFields)
		},
	}
}

func (p *FMP) Meta(symbol string) Loader[domain.Meta] {
	ticker := fmpTicker(symbol)
	return Loader[domain.Meta]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "quote"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			return p.http.get(ctx, p.url("/api/v3/quote/"+url.PathEscape(ticker), nil))
		},
		Validate: func(raw []byte) error {
			if len(raw) < 10 || !gjson.ValidBytes(raw) {
				return errors.New("truncated or malformed document")
			}
			doc := gjson.ParseBytes(raw)
			if !doc.IsArray() || doc.Get("0.name").Type != gjson.String {
				return errors.New("quote has no name")
			}
			return nil
		},
		Extract: func(raw []byte) (domain.Meta, error) {
			return domain.Meta{
				Ticker:      ticker,
				Description: gjson.GetBytes(raw, "0.name").String(),
			}, nil
		},
	}
}

// fmpIndex maps an index symbol to FMP's constituent list name.
func fmpIndex(index string) (string, error) {
	switch strings.ToUpper(index) {
	case "$SPX":
		return "sp500", nil
	case "$DJI", "$DJU":
		return "dowjones", nil
	case "$NDX":
		return "nasdaq", nil
	}
	return "", fmt.Errorf("%w: no constituent list for index %q", domain.ErrConfiguration, index)
}

// Constituents loads the current members of index. An unknown index yields
// a loader whose fetch fails with ErrConfiguration.
func (p *FMP) Constituents(index string) Loader[[]string] {
	list, idxErr := fmpIndex(index)
	return Loader[[]string]{
		Key: store.Key{Provider: p.Name(), Symbol: "universe_" + list, Signature: "constituent"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			if idxErr != nil {
				return nil, idxErr
			}
			return p.http.get(ctx, p.url("/api/v3/"+list+"_constituent", nil))
		},
		Validate: validateArrayOf("symbol"),
		Extract: func(raw []byte) ([]string, error) {
			var out []string
			for _, r := range gjson.ParseBytes(raw).Array() {
				s := r.Get("symbol").String()
				if s == "" {
					return nil, fmt.Errorf("%w %q", errMissingField, "symbol")
				}
				out = append(out, s)
			}
			return out, nil
		},
	}
}

// Changes loads the historical membership changes of index, oldest first.
func (p *FMP) Changes(index string) Loader[[]Change] {
	list, idxErr := fmpIndex(index)
	return Loader[[]Change]{
		Key: store.Key{Provider: p.Name(), Symbol: "universe_" + list + "_historical", Signature: "historical-constituent"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			if idxErr != nil {
				return nil, idxErr
			}
			return p.http.get(ctx, p.url("/api/v3/historical/"+list+"_constituent", nil))
		},
		Validate: validateArrayOf("reason"),
		Extract: func(raw []byte) ([]Change, error) {
			var out []Change
			for _, r := range gjson.ParseBytes(raw).Array() {
				d, err := time.Parse(domain.DateLayout, r.Get("date").String())
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", "date", err)
				}
				out = append(out, Change{
					Date:    d,
					Added:   r.Get("symbol").String(),
					Removed: r.Get("removedTicker").String(),
					Reason:  r.Get("reason").String(),
				})
			}
			sortChanges(out)
			return out, nil
		},
	}
}

// validateArrayOf accepts a non-empty JSON array whose first element
// carries field.
func validateArrayOf(field string) func([]byte) error {
	return func(raw []byte) error {
		if len(raw) < 10 || !gjson.ValidBytes(raw) {
			return errors.New("truncated or malformed document")
		}
		doc := gjson.ParseBytes(raw)
		if !doc.IsArray() || !doc.Get("0."+field).Exists() {
			return fmt.Errorf("%w %q", errMissingField, field)
		}
		return nil
	}
}
