package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"simtrader/internal/app"
	"simtrader/internal/config"
	"simtrader/internal/gather"
	"simtrader/internal/metrics"
	"simtrader/internal/util"
)

func main() {
	once := flag.Bool("once", false, "run a single warm pass and exit")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	flag.Parse()

	cfgPath := "config/simtrader.yaml"
	if p := os.Getenv("SIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	var start time.Time
	if cfg.Warm.StartDate != "" {
		// Validated by config.Load.
		start, _ = time.Parse("2006-01-02", cfg.Warm.StartDate)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	deps := app.Build(cfg, logger, metrics.New(reg))

	var g gather.Gatherer = gather.NewWarmer(deps.Pipeline, deps.Bars, gather.WarmerConfig{
		DataDir:    cfg.Storage.DataDir,
		Symbols:    cfg.Warm.Symbols,
		Universes:  cfg.Warm.Universes,
		MaxWorkers: cfg.Warm.MaxWorkers,
		Start:      start,
	}, logger)

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: metricsMux(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	if *once {
		if err := g.Run(ctx); err != nil {
			log.Fatalf("%s failed: %v", g.Name(), err)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Warm.Schedule, func() { runPass(ctx, g, logger) }); err != nil {
		log.Fatalf("invalid warm.schedule %q: %v", cfg.Warm.Schedule, err)
	}
	c.Start()
	logger.Info("warmer scheduled", "schedule", cfg.Warm.Schedule)

	<-ctx.Done()
	// Wait for a running pass to observe the cancellation.
	<-c.Stop().Done()
	logger.Info("warmer stopped")
}

func runPass(ctx context.Context, g gather.Gatherer, logger *slog.Logger) {
	t0 := time.Now()
	if err := g.Run(ctx); err != nil {
		logger.Error("warm pass failed", "error", err, "elapsed", time.Since(t0))
		return
	}
	logger.Info("warm pass finished", "elapsed", time.Since(t0))
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
