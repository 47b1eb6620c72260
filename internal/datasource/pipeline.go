package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"simtrader/internal/calendar"
	"simtrader/internal/domain"
)

// Pipeline resolves asset nicknames to calendar-aligned assets:
//
//	SYMBOL              default provider
//	provider:SYMBOL     explicit provider, e.g. fmp:MSFT or pq:alpaca/SPY
//	splice:A,B,...      price-continuous splice of the listed nicknames
//	join:A,B,...        the same without rescaling
type Pipeline struct {
	env       Env
	def       string
	providers map[string]Provider
	order     []string
	group     singleflight.Group
}

// NewPipeline creates a pipeline over providers. def names the provider
// used for nicknames without a prefix.
func NewPipeline(env Env, def string, providers ...Provider) *Pipeline {
	p := &Pipeline{env: env, def: def, providers: make(map[string]Provider, len(providers))}
	for _, pr := range providers {
		p.providers[pr.Name()] = pr
		p.order = append(p.order, pr.Name())
	}
	return p
}

// Provider returns the registered provider called name.
func (p *Pipeline) Provider(name string) (Provider, bool) {
	pr, ok := p.providers[name]
	return pr, ok
}

func (p *Pipeline) resolve(nickname string) (Provider, string, error) {
	name, symbol, ok := strings.Cut(nickname, ":")
	if !ok {
		name, symbol = p.def, nickname
	}
	pr, found := p.providers[name]
	if !found || symbol == "" {
		return nil, "", fmt.Errorf("%w: cannot resolve asset %q", domain.ErrConfiguration, nickname)
	}
	if strings.HasPrefix(symbol, "$") {
		return nil, "", fmt.Errorf("%w: %q names an index universe, not an asset", domain.ErrConfiguration, nickname)
	}
	return pr, symbol, nil
}

// Resolve splits a single-provider nickname into the provider name and
// the provider symbol.
func (p *Pipeline) Resolve(nickname string) (provider, symbol string, err error) {
	pr, symbol, err := p.resolve(nickname)
	if err != nil {
		return "", "", err
	}
	return pr.Name(), symbol, nil
}

// History loads the full adjusted history of a single-provider nickname
// without calendar alignment. A failed meta lookup falls back to the
// symbol as its own description.
func (p *Pipeline) History(ctx context.Context, nickname string) (*domain.Asset, error) {
	pr, symbol, err := p.resolve(nickname)
	if err != nil {
		return nil, err
	}
	bars, err := Load(ctx, p.env, pr.Bars(symbol))
	if err != nil {
		return nil, err
	}
	meta, err := Load(ctx, p.env, pr.Meta(symbol))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.env.log().Warn("meta unavailable", "asset", nickname, "error", err)
		meta = domain.Meta{Ticker: symbol, Description: symbol}
	}
	return &domain.Asset{Nickname: nickname, Meta: meta, Bars: bars}, nil
}

// LoadAsset loads nickname and resamples it onto cal. Concurrent loads of
// the same nickname over the same calendar share one result, which callers
// must not modify.
func (p *Pipeline) LoadAsset(ctx context.Context, nickname string, cal *calendar.TradingCalendar) (*domain.Asset, error) {
	key := fmt.Sprintf("%s|%s|%s", nickname,
		cal.First().Format(domain.DateLayout), cal.Last().Format(domain.DateLayout))
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.loadAsset(ctx, nickname, cal)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Asset), nil
}

func (p *Pipeline) loadAsset(ctx context.Context, nickname string, cal *calendar.TradingCalendar) (*domain.Asset, error) {
	mode, list, _ := strings.Cut(nickname, ":")
	if mode == "splice" || mode == "join" {
		parts := strings.Split(list, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] == "" {
				return nil, fmt.Errorf("%w: empty part in %q", domain.ErrConfiguration, nickname)
			}
		}
		log := p.env.log().With("asset", nickname)
		a, err := splice(ctx, log, cal, parts, mode == "splice", func(ctx context.Context, nick string) (*domain.Asset, error) {
			return p.LoadAsset(ctx, nick, cal)
		})
		if err != nil {
			return nil, err
		}
		return &domain.Asset{Nickname: nickname, Meta: a.Meta, Bars: a.Bars}, nil
	}

	a, err := p.History(ctx, nickname)
	if err != nil {
		return nil, err
	}
	a.Bars = cal.Resample(a.Bars)
	return a, nil
}

// LoadAssets loads nicknames concurrently. The first error cancels the
// remaining loads.
func (p *Pipeline) LoadAssets(ctx context.Context, nicknames []string, cal *calendar.TradingCalendar) (map[string]*domain.Asset, error) {
	out := make([]*domain.Asset, len(nicknames))
	g, ctx := errgroup.WithContext(ctx)
	for i, nick := range nicknames {
		g.Go(func() error {
			a, err := p.LoadAsset(ctx, nick, cal)
			out[i] = a
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	m := make(map[string]*domain.Asset, len(nicknames))
	for i, nick := range nicknames {
		m[nick] = out[i]
	}
	return m, nil
}

// Universe loads the membership of index from the first provider that
// knows index membership. An unavailable change history is logged and left
// empty; the current list is required.
func (p *Pipeline) Universe(ctx context.Context, index string) (*Universe, error) {
	for _, name := range p.order {
		up, ok := p.providers[name].(UniverseProvider)
		if !ok {
			continue
		}
		current, err := Load(ctx, p.env, up.Constituents(index))
		if err != nil {
			return nil, fmt.Errorf("universe %s: %w", index, err)
		}
		changes, err := Load(ctx, p.env, up.Changes(index))
		if err != nil {
			if !errors.Is(err, domain.ErrDataUnavailable) {
				return nil, fmt.Errorf("universe %s: %w", index, err)
			}
			p.env.log().Warn("universe change history unavailable", "universe", index, "error", err)
		}
		return &Universe{ID: index, provider: name, current: current, changes: changes}, nil
	}
	return nil, fmt.Errorf("%w: no provider serves universe %q", domain.ErrConfiguration, index)
}
