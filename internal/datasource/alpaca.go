package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/tidwall/gjson"

	"simtrader/internal/domain"
	"simtrader/internal/store"
)

// Alpaca loads bars from the Alpaca market-data API and names from the
// trading API.
type Alpaca struct {
	data    *marketdata.Client
	trading *alpaca.Client
	feed    string
	start   time.Time
	now     func() time.Time
}

// AlpacaOptions configures the Alpaca provider.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, used for asset names
	DataURL   string
	Feed      string
}

// alpacaEpoch is the earliest date the market-data API serves.
var alpacaEpoch = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// NewAlpaca creates an Alpaca provider.
func NewAlpaca(opts AlpacaOptions) *Alpaca {
	dataOpts := marketdata.ClientOpts{APIKey: opts.APIKey, APISecret: opts.APISecret}
	if opts.DataURL != "" {
		dataOpts.BaseURL = opts.DataURL
	}
	feed := opts.Feed
	if feed == "" {
		feed = "sip"
	}
	return &Alpaca{
		data: marketdata.NewClient(dataOpts),
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		feed:  feed,
		start: alpacaEpoch,
		now:   time.Now,
	}
}

func (p *Alpaca) Name() string { return "alpaca" }

// alpacaRecord is one row of the document the Alpaca provider caches: the
// raw bar joined with the fully adjusted close of the same session.
type alpacaRecord struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	AdjClose float64 `json:"adjClose"`
}

var alpacaBarFields = FieldMap{
	Date:       "date",
	DateLayout: domain.DateLayout,
	Open:       "open",
	High:       "high",
	Low:        "low",
	Close:      "close",
	Volume:     "volume",
	AdjClose:   "adjClose",
}

func (p *Alpaca) Bars(symbol string) Loader[[]domain.Bar] {
	ticker := strings.ToUpper(symbol)
	return Loader[[]domain.Bar]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "bars-1d-" + p.feed},
		Fetch: func(ctx context.Context) ([]byte, error) {
			return p.fetchBars(ctx, ticker)
		},
		Validate: func(raw []byte) error {
			if len(raw) < 25 || !gjson.ValidBytes(raw) {
				return errors.New("truncated or malformed document")
			}
			if doc := gjson.ParseBytes(raw); !doc.IsArray() || len(doc.Array()) == 0 {
				return errors.New("no bar records")
			}
			return nil
		},
		Extract: func(raw []byte) ([]domain.Bar, error) {
			return extractRecords(ticker, gjson.ParseBytes(raw), alpacaBarFields)
		},
	}
}

func (p *Alpaca) fetchBars(ctx context.Context, ticker string) ([]byte, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     p.start,
		End:       p.now(),
		Feed:      marketdata.Feed(p.feed),
	}
	req.Adjustment = marketdata.Raw
	raw, err := p.data.GetBars(ticker, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars raw: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	req.Adjustment = marketdata.All
	adjusted, err := p.data.GetBars(ticker, req)
	if err != nil {
		return nil, fmt.Errorf("GetBars adjusted: %w", err)
	}

	adjClose := make(map[string]float64, len(adjusted))
	for _, b := range adjusted {
		adjClose[b.Timestamp.UTC().Format(domain.DateLayout)] = b.Close
	}
	records := make([]alpacaRecord, 0, len(raw))
	for _, b := range raw {
		d := b.Timestamp.UTC().Format(domain.DateLayout)
		ac, ok := adjClose[d]
		if !ok {
			ac = b.Close
		}
		records = append(records, alpacaRecord{
			Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: float64(b.Volume), AdjClose: ac,
		})
	}
	return json.Marshal(records)
}

func (p *Alpaca) Meta(symbol string) Loader[domain.Meta] {
	ticker := strings.ToUpper(symbol)
	return Loader[domain.Meta]{
		Key: store.Key{Provider: p.Name(), Symbol: ticker, Signature: "asset"},
		Fetch: func(ctx context.Context) ([]byte, error) {
			a, err := p.trading.GetAsset(ticker)
			if err != nil {
				return nil, fmt.Errorf("GetAsset: %w", err)
			}
			return json.Marshal(domain.Meta{Ticker: a.Symbol, Description: a.Name})
		},
		Validate: func(raw []byte) error {
			if gjson.GetBytes(raw, "description").String() == "" {
				return fmt.Errorf("%w %q", errMissingField, "description")
			}
			return nil
		},
		Extract: func(raw []byte) (domain.Meta, error) {
			var m domain.Meta
			err := json.Unmarshal(raw, &m)
			return m, err
		},
	}
}
