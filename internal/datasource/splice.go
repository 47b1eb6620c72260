package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"simtrader/internal/calendar"
	"simtrader/internal/domain"
)

// part loads one calendar-resampled component of a spliced series.
type part func(ctx context.Context, nickname string) (*domain.Asset, error)

// splice walks parts from most to least authoritative and prepends the
// older history of each one to the accumulated series. With scale set, the
// prepended segment is rescaled so prices are continuous at the seam, which
// requires both series to share the accumulator's first date. Parts that
// are unavailable are skipped.
func splice(ctx context.Context, log *slog.Logger, cal *calendar.TradingCalendar, nicknames []string, scale bool, load part) (*domain.Asset, error) {
	var acc *domain.Asset
	for _, nick := range nicknames {
		if acc != nil && len(acc.Bars) > 0 && !acc.Bars[0].Timestamp.After(cal.First()) {
			break
		}

		src, err := load(ctx, nick)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				log.Warn("splice part unavailable, skipping", "part", nick, "error", err)
				continue
			}
			return nil, err
		}
		if acc == nil || len(acc.Bars) == 0 {
			meta := src.Meta
			if acc != nil {
				meta = acc.Meta
			}
			acc = &domain.Asset{Meta: meta, Bars: src.Bars}
			continue
		}

		first := acc.Bars[0]
		factor := 1.0
		if scale {
			overlap, ok := barAt(src.Bars, first)
			if !ok {
				return nil, fmt.Errorf("%w: splice %s: no overlap on %s",
					domain.ErrDataIntegrity, nick, first.Timestamp.Format(domain.DateLayout))
			}
			factor = (first.Open/overlap.Open + first.High/overlap.High +
				first.Low/overlap.Low + first.Close/overlap.Close) / 4
		}
		log.Debug("splicing", "part", nick, "before", first.Timestamp.Format(domain.DateLayout), "scale", factor)

		var older []domain.Bar
		for _, b := range src.Bars {
			if !b.Timestamp.Before(first.Timestamp) {
				break
			}
			older = append(older, domain.Bar{
				Symbol:    first.Symbol,
				Timestamp: b.Timestamp,
				Open:      b.Open * factor,
				High:      b.High * factor,
				Low:       b.Low * factor,
				Close:     b.Close * factor,
			})
		}
		acc.Bars = append(older, acc.Bars...)
	}

	if acc == nil {
		return nil, fmt.Errorf("%w: no splice part available in %v", domain.ErrDataUnavailable, nicknames)
	}
	return acc, nil
}

func barAt(bars []domain.Bar, ref domain.Bar) (domain.Bar, bool) {
	for _, b := range bars {
		if b.Timestamp.Equal(ref.Timestamp) {
			return b, true
		}
		if b.Timestamp.After(ref.Timestamp) {
			break
		}
	}
	return domain.Bar{}, false
}
