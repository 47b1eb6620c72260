// Package app assembles the data pipeline, calendars and stores described
// by a config.Config. Both command-line programs share it.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"simtrader/internal/calendar"
	"simtrader/internal/config"
	"simtrader/internal/datasource"
	"simtrader/internal/engine"
	"simtrader/internal/metrics"
	"simtrader/internal/store"
	"simtrader/internal/util"
)

// Deps are the long-lived components built from a config.
type Deps struct {
	Docs     *store.FileCache
	Bars     *store.ParquetStore
	Pipeline *datasource.Pipeline
	Calendar calendar.Source
}

// Build wires providers over the shared document cache. m may be nil.
func Build(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *Deps {
	docs := store.NewFileCache(cfg.Storage.CacheDir, cfg.Cache.MaxAge)
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	env := datasource.Env{Docs: docs, Metrics: m, Log: log}
	return &Deps{
		Docs:     docs,
		Bars:     bars,
		Pipeline: datasource.NewPipeline(env, cfg.Providers.Default, Providers(cfg, bars)...),
		Calendar: Calendar(cfg),
	}
}

// HTTPOptions derives the transport settings shared by HTTP providers.
// The rate limiter is shared too, so the limit applies across providers.
func HTTPOptions(p config.Providers, proxy string, limiter *util.RateLimiter) datasource.HTTPOptions {
	return datasource.HTTPOptions{
		Timeout:     p.Timeout,
		Proxy:       proxy,
		MaxAttempts: p.MaxAttempts,
		RetryDelay:  p.RetryDelay,
		Limiter:     limiter,
	}
}

// Providers returns every configured provider. Alpaca is only registered
// when credentials are present.
func Providers(cfg *config.Config, bars store.BarStore) []datasource.Provider {
	p := cfg.Providers
	limiter := util.NewRateLimiter(p.RateLimitPerMin)

	out := []datasource.Provider{
		datasource.NewFMP(p.FMP.APIKey, p.FMP.BaseURL, HTTPOptions(p, "", limiter)),
		datasource.NewYahoo(p.Yahoo.BaseURL, HTTPOptions(p, p.Yahoo.Proxy, limiter)),
		datasource.NewLocal(bars, p.Default),
	}
	if p.Alpaca.APIKey != "" {
		out = append(out, datasource.NewAlpaca(datasource.AlpacaOptions{
			APIKey:    p.Alpaca.APIKey,
			APISecret: p.Alpaca.APISecret,
			BaseURL:   p.Alpaca.BaseURL,
			DataURL:   p.Alpaca.DataURL,
			Feed:      p.Alpaca.Feed,
		}))
	}
	return out
}

// Calendar returns the trading-day source named by simulation.calendar.
func Calendar(cfg *config.Config) calendar.Source {
	if cfg.Simulation.Calendar == "alpaca" {
		a := cfg.Providers.Alpaca
		return calendar.NewAlpacaSource(a.APIKey, a.APISecret, a.BaseURL)
	}
	return calendar.NYSE{}
}

// EngineConfig converts the simulation section into an engine.Config.
// Non-empty start or end override the configured dates.
func EngineConfig(sim config.Simulation, start, end string) (engine.Config, error) {
	if start != "" {
		sim.StartDate = start
	}
	if end != "" {
		sim.EndDate = end
	}
	s, err := sim.Start()
	if err != nil {
		return engine.Config{}, fmt.Errorf("start date: %w", err)
	}
	e, err := sim.End()
	if err != nil {
		return engine.Config{}, fmt.Errorf("end date: %w", err)
	}
	if e.IsZero() {
		e = calendar.Day(time.Now())
	}
	cfg := engine.Config{
		Start:       s,
		End:         e,
		WarmupDays:  sim.WarmupDays,
		InitialCash: sim.InitialCash,
		Friction:    sim.Friction,
		MaxWeight:   sim.MaxWeight,
	}
	return cfg, cfg.Validate()
}
