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

// Yahoo loads bars and names from the Yahoo Finance chart endpoint.
type Yahoo struct {
	baseURL string
	http    *httpGetter
}

// NewYahoo creates a Yahoo provider.
func NewYahoo(baseURL string, opts HTTPOptions) *Yahoo {
	return &Yahoo{baseURL: strings.TrimRight(baseURL, "/"), http: newHTTPGetter(opts)}
}

func (p *Yahoo) Name() string { return "yahoo" }

func (p *Yahoo) chartURL(symbol, rng string) string {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("range", rng)
	q.Set("events", "div,split")
	return p.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + q.Encode()
}

func validateChart(raw []byte) error {
	if len(raw) < 25 || !gjson.ValidBytes(raw) {
		return errors.New("truncated or malformed document")
	}
	if e := gjson.GetBytes(raw, "chart.error.description"); e.Exists() {
		return fmt.Errorf("chart error: %s", e.String())
	}
	if !gjson.GetBytes(raw, "chart.result.0.meta").Exists() {
		return errors.New("chart has no result")
	}
	return nil
}

func (p *Yahoo) Bars(symbol string) Loader[[]domain.Bar] {
	ticker := strings.ToUpper(symbol)
	return Loader[[]domain.Bar]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "chart-1d-max"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			return p.http.get(ctx, p.chartURL(ticker, "max"))
		},
		Validate: func(raw []byte) error {
			if err := validateChart(raw); err != nil {
				return err
			}
			ts := gjson.GetBytes(raw, "chart.result.0.timestamp")
			if !ts.IsArray() || len(ts.Array()) == 0 {
				return errors.New("chart has no timestamps")
			}
			return nil
		},
		Extract: func(raw []byte) ([]domain.Bar, error) {
			return extractChart(ticker, gjson.GetBytes(raw, "chart.result.0"))
		},
	}
}

// extractChart reads the columnar chart layout. Rows where every price is
// null are placeholders for halted sessions and are skipped; a row with
// some prices missing is rejected.
func extractChart(symbol string, res gjson.Result) ([]domain.Bar, error) {
	offset := time.Duration(res.Get("meta.gmtoffset").Int()) * time.Second
	stamps := res.Get("timestamp").Array()
	quote := res.Get("indicators.quote.0")
	cols := make(map[string][]gjson.Result, 6)
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		c := quote.Get(name).Array()
		if len(c) != len(stamps) {
			return nil, fmt.Errorf("%w %q", errMissingField, name)
		}
		cols[name] = c
	}
	adj := res.Get("indicators.adjclose.0.adjclose").Array()
	if len(adj) != 0 && len(adj) != len(stamps) {
		return nil, fmt.Errorf("%w %q", errMissingField, "adjclose")
	}

	bars := make([]domain.Bar, 0, len(stamps))
	for i, ts := range stamps {
		if cols["open"][i].Type == gjson.Null && cols["high"][i].Type == gjson.Null &&
			cols["low"][i].Type == gjson.Null && cols["close"][i].Type == gjson.Null {
			continue
		}
		b := domain.Bar{Symbol: symbol, Timestamp: day(time.Unix(ts.Int(), 0).UTC().Add(offset))}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low},
			{"close", &b.Close}, {"volume", &b.Volume},
		} {
			v := cols[f.name][i]
			if v.Type != gjson.Number {
				return nil, fmt.Errorf("%w %q at %d", errMissingField, f.name, ts.Int())
			}
			*f.dst = v.Float()
		}
		if len(adj) != 0 {
			if adj[i].Type != gjson.Number {
				return nil, fmt.Errorf("%w %q at %d", errMissingField, "adjclose", ts.Int())
			}
			b = Adjust(b, adj[i].Float())
		}
		bars = append(bars, b)
	}
	return finishBars(bars)
}

func (p *Yahoo) Meta(symbol string) Loader[domain.Meta] {
	ticker := strings.ToUpper(symbol)
	return Loader[domain.Meta]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "chart-meta"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			return p.http.get(ctx, p.chartURL(ticker, "5d"))
		},
		Validate: validateChart,
		Extract: func(raw []byte) (domain.Meta, error) {
			meta := gjson.GetBytes(raw, "chart.result.0.meta")
			name := meta.Get("longName").String()
			if name == "" {
				name = meta.Get("shortName").String()
			}
			if name == "" {
				return domain.Meta{}, fmt.Errorf("%w %q", errMissingField, "longName")
			}
			return domain.Meta{Ticker: ticker, Description: name}, nil
		},
	}
}
