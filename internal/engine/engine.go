// Package engine runs the bar-stepped simulation: it advances simulated time
// over the trading calendar, exposes assets and indicators to a strategy
// callback, and turns allocation targets into fills through the simulated
// broker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"simtrader/internal/broker"
	"simtrader/internal/cache"
	"simtrader/internal/calendar"
	"simtrader/internal/datasource"
	"simtrader/internal/domain"
	"simtrader/internal/metrics"
	"simtrader/internal/series"
	"simtrader/internal/util"
)

// DataSource loads calendar-aligned assets and index universes.
type DataSource interface {
	LoadAsset(ctx context.Context, nickname string, cal *calendar.TradingCalendar) (*domain.Asset, error)
	Universe(ctx context.Context, id string) (*datasource.Universe, error)
}

// Config bounds one simulation run.
type Config struct {
	Start       time.Time
	End         time.Time
	WarmupDays  int // calendar days before Start processed without trading
	InitialCash float64
	Friction    float64 // proportional cost per unit of traded value
	MaxWeight   float64 // largest |weight| accepted by Allocate; 0 disables
}

// Validate reports invalid settings as ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.Start.IsZero() || c.End.IsZero():
		return fmt.Errorf("%w: start and end dates are required", domain.ErrConfiguration)
	case c.End.Before(c.Start):
		return fmt.Errorf("%w: end %s before start %s", domain.ErrConfiguration,
			c.End.Format(domain.DateLayout), c.Start.Format(domain.DateLayout))
	case c.WarmupDays < 0:
		return fmt.Errorf("%w: negative warmup", domain.ErrConfiguration)
	case !(c.InitialCash > 0) || math.IsInf(c.InitialCash, 0):
		return fmt.Errorf("%w: initial cash must be positive", domain.ErrConfiguration)
	case !(c.Friction >= 0 && c.Friction < 1):
		return fmt.Errorf("%w: friction must be in [0, 1)", domain.ErrConfiguration)
	case !(c.MaxWeight >= 0) || math.IsInf(c.MaxWeight, 0):
		return fmt.Errorf("%w: max weight must be non-negative", domain.ErrConfiguration)
	}
	return nil
}

// State is the lifecycle stage of a run.
type State int

const (
	StateInit State = iota
	StateWarmup
	StateActive
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWarmup:
		return "warmup"
	case StateActive:
		return "active"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option customizes a Run.
type Option func(*Run)

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option { return func(r *Run) { r.log = l } }

// WithMetrics records bar, fill and run metrics into m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Run) { r.metrics = m } }

// WithStepHook calls fn after every simulated date with the number of dates
// done and the total.
func WithStepHook(fn func(done, total int)) Option { return func(r *Run) { r.onStep = fn } }

// Run is one simulation. It owns the memo cache shared by all of its series
// and is driven from a single goroutine.
type Run struct {
	id      string
	cfg     Config
	data    DataSource
	cal     *calendar.TradingCalendar
	cache   *cache.Cache
	broker  broker.Broker
	risk    *RiskManager
	log     *slog.Logger
	metrics *metrics.Metrics
	onStep  func(done, total int)

	// ctx is the context of the current phase; lazy asset loads use it.
	ctx   context.Context
	dates []time.Time
	first int // index of the first active date
	idx   int
	state State

	assets map[string]*series.Asset
	order  []string
	equity []domain.EquityPoint
	fills  []domain.Fill
}

// New prepares a run over the trading days of cal within
// [Start - WarmupDays, End].
func New(ctx context.Context, cfg Config, data DataSource, cal calendar.Source, opts ...Option) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tc, err := calendar.Load(ctx, cal, cfg.Start.AddDate(0, 0, -cfg.WarmupDays), cfg.End)
	if err != nil {
		return nil, fmt.Errorf("loading trading calendar: %w", err)
	}
	dates := tc.Days()
	first := len(dates)
	for i, d := range dates {
		if !d.Before(calendar.Day(cfg.Start)) {
			first = i
			break
		}
	}
	if first == len(dates) {
		return nil, fmt.Errorf("%w: no trading days between %s and %s", domain.ErrConfiguration,
			cfg.Start.Format(domain.DateLayout), cfg.End.Format(domain.DateLayout))
	}

	r := &Run{
		id:     uuid.NewString(),
		cfg:    cfg,
		data:   data,
		cal:    tc,
		cache:  cache.New(),
		broker: broker.NewSimulatorBroker(cfg.InitialCash, cfg.Friction),
		risk:   NewRiskManager(cfg.MaxWeight),
		log:    util.Discard(),
		ctx:    ctx,
		dates:  dates,
		first:  first,
		assets: make(map[string]*series.Asset),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "engine", "run", r.id)
	return r, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Config returns the run settings.
func (r *Run) Config() Config { return r.cfg }

// Calendar returns the trading calendar the run steps over.
func (r *Run) Calendar() *calendar.TradingCalendar { return r.cal }

// Cache returns the run-scoped memo cache.
func (r *Run) Cache() *cache.Cache { return r.cache }

// State returns the lifecycle stage.
func (r *Run) State() State { return r.state }

// SimDate returns the current simulated date. Before the loop starts it is
// the first calendar date.
func (r *Run) SimDate() time.Time { return r.dates[r.idx] }

// IsFirstBar reports whether the current date is the first active date.
func (r *Run) IsFirstBar() bool { return r.idx == r.first }

// IsLastBar reports whether the current date is the last date of the run.
func (r *Run) IsLastBar() bool { return r.idx == len(r.dates)-1 }

// NAV returns the net asset value at the last marked prices.
func (r *Run) NAV() float64 { return r.broker.NAV() }

// Position returns the holding in the asset loaded under nickname.
func (r *Run) Position(nickname string) domain.Position { return r.broker.Position(nickname) }

// Weight returns the share of NAV held in nickname.
func (r *Run) Weight(nickname string) float64 {
	nav := r.NAV()
	if nav == 0 {
		return 0
	}
	return r.Position(nickname).MarketValue() / nav
}

// Asset returns the series handle for nickname, registering its load.
// Assets registered before Loop are loaded concurrently before the first
// bar; later ones load on first read.
func (r *Run) Asset(nickname string) *series.Asset {
	if a, ok := r.assets[nickname]; ok {
		return a
	}
	f := cache.Memo(r.cache, "asset:"+nickname, func() (*domain.Asset, error) {
		return r.data.LoadAsset(r.ctx, nickname, r.cal)
	})
	a := series.NewAsset(r, nickname, f)
	r.assets[nickname] = a
	r.order = append(r.order, nickname)
	return a
}

// Universe returns the membership of the index id, loaded once per run.
func (r *Run) Universe(id string) (*datasource.Universe, error) {
	return cache.Memo(r.cache, "universe:"+id, func() (*datasource.Universe, error) {
		return r.data.Universe(r.ctx, id)
	}).Get()
}

// Allocate targets weight × NAV in the asset loaded under nickname, filled
// at the time typ selects. Allocations made during warmup are accepted
// and discarded.
func (r *Run) Allocate(nickname string, weight float64, typ domain.OrderType) error {
	if r.state != StateWarmup && r.state != StateActive {
		return fmt.Errorf("%w: allocate while %s", domain.ErrConfiguration, r.state)
	}
	switch typ {
	case domain.OpenNextBar, domain.CloseThisBar, domain.CloseNextBar:
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrConfiguration, typ)
	}

	d, err := r.Asset(nickname).Resolve()
	if err != nil {
		return fmt.Errorf("%w: allocate %s: %w", domain.ErrConfiguration, nickname, err)
	}
	if len(d.Bars) == 0 {
		return fmt.Errorf("%w: allocate %s: no data", domain.ErrConfiguration, nickname)
	}

	order := &domain.Order{Symbol: nickname, Weight: weight, Type: typ, CreatedAt: r.SimDate()}
	if err := r.risk.CheckOrder(r.ctx, order); err != nil {
		return err
	}
	if r.state == StateWarmup {
		r.log.Debug("allocation during warmup discarded", "asset", nickname, "weight", weight)
		return nil
	}
	_, err = r.broker.SubmitOrder(r.ctx, order)
	return err
}
