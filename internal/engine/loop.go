package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"simtrader/internal/broker"
	"simtrader/internal/domain"
)

// Result is the output of a completed run.
type Result struct {
	RunID    string
	Start    time.Time
	End      time.Time
	Equity   []domain.EquityPoint
	Fills    []domain.Fill
	FinalNAV float64
}

// BarFunc is the strategy callback, invoked once per simulated date.
type BarFunc func(ctx context.Context, r *Run) error

// Loop steps through every date of the run. On each date it fills orders
// due at the open, calls onBar, fills orders due at the close and marks the
// account to the closing prices. Equity is recorded from the first active
// date on.
func (r *Run) Loop(ctx context.Context, onBar BarFunc) (*Result, error) {
	if r.state != StateInit {
		return nil, errors.New("run already started")
	}
	r.ctx = ctx
	if err := r.resolveAssets(ctx); err != nil {
		return nil, err
	}

	r.log.Info("simulation started", "dates", len(r.dates), "warmup", r.first,
		"start", r.dates[r.first].Format(domain.DateLayout))

	for i, date := range r.dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.idx = i
		r.state = StateWarmup
		if i >= r.first {
			r.state = StateActive
		}

		r.execute(date, func(o *domain.Order) bool {
			return o.Type == domain.OpenNextBar && o.CreatedAt.Before(date)
		}, domain.FieldOpen)

		if err := onBar(ctx, r); err != nil {
			return nil, fmt.Errorf("bar %s: %w", date.Format(domain.DateLayout), err)
		}

		r.execute(date, func(o *domain.Order) bool {
			return o.Type == domain.CloseThisBar ||
				(o.Type == domain.CloseNextBar && o.CreatedAt.Before(date))
		}, domain.FieldClose)
		r.broker.Mark(r.quote(domain.FieldClose))

		nav := r.broker.NAV()
		if r.state == StateActive {
			r.equity = append(r.equity, domain.EquityPoint{Date: date, NAV: nav})
		}
		r.metrics.BarProcessed(nav)
		if r.onStep != nil {
			r.onStep(i+1, len(r.dates))
		}
	}

	r.state = StateDone
	for _, o := range r.broker.Pending() {
		_ = r.broker.CancelOrder(ctx, o.ID)
	}
	r.metrics.RunCompleted()

	res := &Result{
		RunID:    r.id,
		Start:    r.dates[r.first],
		End:      r.dates[len(r.dates)-1],
		Equity:   r.equity,
		Fills:    r.fills,
		FinalNAV: r.broker.NAV(),
	}
	r.log.Info("simulation finished", "final_nav", res.FinalNAV, "fills", len(res.Fills))
	return res, nil
}

// resolveAssets loads every registered asset concurrently and fails on the
// first load error, cancelling the loads still in flight.
func (r *Run) resolveAssets(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	// Asset futures read r.ctx when they first run.
	r.ctx = gctx
	defer func() { r.ctx = ctx }()
	for _, nick := range r.order {
		a := r.assets[nick]
		g.Go(func() error {
			if _, err := a.Resolve(); err != nil {
				return fmt.Errorf("loading %s: %w", nick, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Run) execute(date time.Time, due func(*domain.Order) bool, field domain.Field) {
	fills := r.broker.Execute(date, due, r.quote(field))
	for _, f := range fills {
		r.log.Debug("order filled", "asset", f.Symbol, "date", f.Date.Format(domain.DateLayout),
			"price", f.Price, "qty", f.Qty, "fee", f.Fee)
		r.metrics.OrderFilled()
	}
	r.fills = append(r.fills, fills...)
}

// quote prices assets at field of the current date's bar. Assets whose
// history has not started yet have no quote.
func (r *Run) quote(field domain.Field) broker.PriceFunc {
	return func(nickname string) (float64, bool) {
		a, ok := r.assets[nickname]
		if !ok {
			return 0, false
		}
		b, err := a.Bar(0)
		if err != nil || b.Timestamp.After(r.SimDate()) {
			return 0, false
		}
		return field.Value(b), true
	}
}
