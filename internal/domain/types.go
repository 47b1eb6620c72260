// Package domain defines the core records shared by the data pipeline, the
// simulation loop, and the account model.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar is one daily OHLCV record for a single instrument.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the OHLC ordering invariant and that prices are positive
// and finite. Violations are reported as ErrDataIntegrity.
func (b Bar) Validate() error {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: %s %s: non-positive or non-finite price",
				ErrDataIntegrity, b.Symbol, b.Timestamp.Format(DateLayout))
		}
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return fmt.Errorf("%w: %s %s: negative volume",
			ErrDataIntegrity, b.Symbol, b.Timestamp.Format(DateLayout))
	}
	lo := math.Min(b.Open, b.Close)
	hi := math.Max(b.Open, b.Close)
	if b.Low > lo || b.High < hi {
		return fmt.Errorf("%w: %s %s: OHLC out of order (o=%g h=%g l=%g c=%g)",
			ErrDataIntegrity, b.Symbol, b.Timestamp.Format(DateLayout), b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// DateLayout is the day-granular layout used in provider documents and logs.
const DateLayout = "2006-01-02"

// Field selects one component of a bar.
type Field string

const (
	FieldOpen   Field = "Open"
	FieldHigh   Field = "High"
	FieldLow    Field = "Low"
	FieldClose  Field = "Close"
	FieldVolume Field = "Volume"
)

// Value extracts the selected field from b.
func (f Field) Value(b Bar) float64 {
	switch f {
	case FieldOpen:
		return b.Open
	case FieldHigh:
		return b.High
	case FieldLow:
		return b.Low
	case FieldVolume:
		return b.Volume
	default:
		return b.Close
	}
}

// Meta is the descriptive record of an instrument.
type Meta struct {
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
}

// Asset is a loaded instrument: its meta record plus its bar sequence in
// ascending timestamp order.
type Asset struct {
	Nickname string
	Meta     Meta
	Bars     []Bar
}

// OrderType controls when a pending allocation is filled.
type OrderType string

const (
	OpenNextBar  OrderType = "open_next_bar"
	CloseThisBar OrderType = "close_this_bar"
	CloseNextBar OrderType = "close_next_bar"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a request to move an asset's position to a target share of NAV.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Weight    float64     `json:"weight"`
	Type      OrderType   `json:"type"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	FilledAt  time.Time   `json:"filled_at,omitzero"`
}

// Fill records the execution of an order.
type Fill struct {
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Date    time.Time `json:"date"`
	Price   float64   `json:"price"`
	Qty     float64   `json:"qty"`
	Fee     float64   `json:"fee"`
}

// Position is a signed holding; negative quantities are short.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	LastPrice float64 `json:"last_price"`
}

// MarketValue is Qty valued at LastPrice.
func (p Position) MarketValue() float64 {
	return p.Qty * p.LastPrice
}

// AccountInfo is a read-only snapshot of the simulated account.
type AccountInfo struct {
	Cash float64 `json:"cash"`
	NAV  float64 `json:"nav"`
}

// EquityPoint is one sample of the NAV curve.
type EquityPoint struct {
	Date time.Time `json:"date"`
	NAV  float64   `json:"nav"`
}
