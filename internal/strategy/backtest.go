package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"simtrader/internal/calendar"
	"simtrader/internal/domain"
	"simtrader/internal/engine"
	"simtrader/internal/store"
	"simtrader/internal/util"
)

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	RunID       string
	Strategy    string
	FinalNAV    float64
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	TotalTrades int
	Equity      []domain.EquityPoint
	Fills       []domain.Fill
}

// Backtester runs registered strategies through the engine and persists
// their results.
type Backtester struct {
	data     engine.DataSource
	calendar calendar.Source
	runs     store.RunStore
	registry *Registry
	log      *slog.Logger
}

// NewBacktester creates a Backtester. runs may be nil to skip persistence.
func NewBacktester(data engine.DataSource, cal calendar.Source, runs store.RunStore, registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = util.Discard()
	}
	return &Backtester{
		data:     data,
		calendar: cal,
		runs:     runs,
		registry: registry,
		log:      log.With("component", "backtester"),
	}
}

// Run executes the named strategy under cfg.
func (bt *Backtester) Run(ctx context.Context, name string, cfg engine.Config, opts ...engine.Option) (*BacktestResult, error) {
	s, ok := bt.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrConfiguration, name)
	}

	opts = append([]engine.Option{engine.WithLogger(bt.log)}, opts...)
	run, err := engine.New(ctx, cfg, bt.data, bt.calendar, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx, run); err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	res, err := run.Loop(ctx, s.OnBar)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}

	out := Summarize(res.Equity, cfg.InitialCash)
	out.RunID = res.RunID
	out.Strategy = name
	out.FinalNAV = res.FinalNAV
	out.TotalTrades = len(res.Fills)
	out.Fills = res.Fills

	bt.log.Info("backtest complete", "strategy", name, "run", res.RunID,
		"total_return", out.TotalReturn, "sharpe", out.SharpeRatio, "max_drawdown", out.MaxDrawdown)

	if bt.runs != nil {
		rec := store.RunRecord{
			ID:          res.RunID,
			Strategy:    name,
			CreatedAt:   time.Now().UTC(),
			StartDate:   res.Start,
			EndDate:     res.End,
			InitialCash: cfg.InitialCash,
			FinalNAV:    out.FinalNAV,
			TotalReturn: out.TotalReturn,
			Sharpe:      out.SharpeRatio,
			MaxDrawdown: out.MaxDrawdown,
			Trades:      out.TotalTrades,
		}
		if err := bt.runs.SaveRun(ctx, rec, res.Equity, res.Fills); err != nil {
			return out, fmt.Errorf("saving run %s: %w", res.RunID, err)
		}
	}
	return out, nil
}

// tradingDays annualizes daily Sharpe ratios.
const tradingDays = 252

// Summarize scores an equity curve that started from initial. MaxDrawdown
// is the largest peak-to-trough loss as a positive fraction.
func Summarize(equity []domain.EquityPoint, initial float64) *BacktestResult {
	out := &BacktestResult{Equity: equity}
	if len(equity) == 0 || initial <= 0 {
		return out
	}
	out.TotalReturn = equity[len(equity)-1].NAV/initial - 1

	peak := initial
	var sum, sumSq float64
	prev := initial
	for _, p := range equity {
		peak = max(peak, p.NAV)
		if peak > 0 {
			out.MaxDrawdown = max(out.MaxDrawdown, (peak-p.NAV)/peak)
		}
		r := 0.0
		if prev != 0 {
			r = p.NAV/prev - 1
		}
		sum += r
		sumSq += r * r
		prev = p.NAV
	}
	n := float64(len(equity))
	mean := sum / n
	if variance := sumSq/n - mean*mean; variance > 1e-18 {
		out.SharpeRatio = mean / math.Sqrt(variance) * math.Sqrt(tradingDays)
	}
	return out
}
