package series

import (
	"fmt"
	"time"

	"simtrader/internal/cache"
	"simtrader/internal/domain"
)

// HLC is the price view consumed by range-based indicators.
type HLC interface {
	High() *Float
	Low() *Float
	Close() *Float
}

// Asset is an OHLCV series. Its fields are exposed as Float series through
// a single extraction adapter so indicators treat them like any other
// numeric series.
type Asset struct {
	host     Host
	nickname string
	data     *cache.Future[*domain.Asset]
	cursor   int
}

// NewAsset binds a loaded (or loading) asset to host.
func NewAsset(host Host, nickname string, data *cache.Future[*domain.Asset]) *Asset {
	return &Asset{host: host, nickname: nickname, data: data}
}

// ID returns the nickname the asset was loaded under.
func (a *Asset) ID() string { return a.nickname }

// Resolve blocks until the asset data is loaded.
func (a *Asset) Resolve() (*domain.Asset, error) { return a.data.Get() }

// Meta returns the descriptive record of the asset.
func (a *Asset) Meta() (domain.Meta, error) {
	d, err := a.data.Get()
	if err != nil {
		return domain.Meta{}, err
	}
	return d.Meta, nil
}

// Bar returns the bar at offset relative to the current simulation date.
func (a *Asset) Bar(offset int) (domain.Bar, error) {
	d, err := a.data.Get()
	if err != nil {
		return domain.Bar{}, err
	}
	if len(d.Bars) == 0 {
		return domain.Bar{}, fmt.Errorf("%w: %s has no bars", ErrOutOfRange, a.nickname)
	}
	a.cursor = seek(a.cursor, len(d.Bars), func(i int) time.Time { return d.Bars[i].Timestamp }, a.host.SimDate())
	return d.Bars[clamp(a.cursor+offset, len(d.Bars))], nil
}

// Field extracts one OHLCV component as a numeric series with identity
// "<nickname>.<Field>".
func (a *Asset) Field(f domain.Field) *Float {
	id := a.nickname + "." + string(f)
	return Memo(a.host, id, func() ([]Point, error) {
		d, err := a.data.Get()
		if err != nil {
			return nil, err
		}
		pts := make([]Point, len(d.Bars))
		for i, b := range d.Bars {
			pts[i] = Point{Date: b.Timestamp, Value: f.Value(b)}
		}
		return pts, nil
	})
}

func (a *Asset) Open() *Float   { return a.Field(domain.FieldOpen) }
func (a *Asset) High() *Float   { return a.Field(domain.FieldHigh) }
func (a *Asset) Low() *Float    { return a.Field(domain.FieldLow) }
func (a *Asset) Close() *Float  { return a.Field(domain.FieldClose) }
func (a *Asset) Volume() *Float { return a.Field(domain.FieldVolume) }

type flat struct{ s *Float }

// Flat adapts a plain series to HLC by using it for all three prices.
func Flat(s *Float) HLC { return flat{s} }

func (f flat) High() *Float  { return f.s }
func (f flat) Low() *Float   { return f.s }
func (f flat) Close() *Float { return f.s }
