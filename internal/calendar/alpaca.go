package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// AlpacaSource reads the exchange calendar from the Alpaca trading API,
// which includes unscheduled closures.
type AlpacaSource struct {
	client *alpaca.Client
}

var _ Source = (*AlpacaSource)(nil)

// NewAlpacaSource creates an AlpacaSource with the given credentials.
func NewAlpacaSource(apiKey, apiSecret, baseURL string) *AlpacaSource {
	return &AlpacaSource{client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})}
}

// TradingDays returns the market days in [start, end].
func (s *AlpacaSource) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	calendar, err := s.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}

	days := make([]time.Time, 0, len(calendar))
	for _, day := range calendar {
		d, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return nil, fmt.Errorf("GetCalendar: parse %q: %w", day.Date, err)
		}
		days = append(days, d)
	}
	return days, nil
}
