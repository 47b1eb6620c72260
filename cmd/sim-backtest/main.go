package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"

	"simtrader/internal/app"
	"simtrader/internal/config"
	"simtrader/internal/engine"
	"simtrader/internal/metrics"
	"simtrader/internal/store"
	"simtrader/internal/strategy"
	"simtrader/internal/strategy/builtins"
	"simtrader/internal/util"
)

// defaultAsset is traded by the builtin strategies when -asset is not set.
const defaultAsset = "SPY"

func main() {
	name := flag.String("strategy", "ema-cross", "strategy to run")
	asset := flag.String("asset", defaultAsset, "asset nickname traded by the builtin strategies")
	fast := flag.Int("fast", 50, "fast EMA period")
	slow := flag.Int("slow", 200, "slow EMA period")
	start := flag.String("start", "", "first trading date (YYYY-MM-DD), overrides simulation.start_date")
	end := flag.String("end", "", "last trading date (YYYY-MM-DD), overrides simulation.end_date")
	list := flag.Bool("list", false, "list registered strategies and exit")
	quiet := flag.Bool("quiet", false, "disable the progress bar")
	flag.Parse()

	registry := strategy.NewRegistry()
	builtins.Register(registry, *asset, *fast, *slow)
	if *list {
		for _, n := range registry.List() {
			fmt.Println(n)
		}
		return
	}

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

	ecfg, err := app.EngineConfig(cfg.Simulation, *start, *end)
	if err != nil {
		log.Fatalf("invalid simulation settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	deps := app.Build(cfg, logger, m)

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer runs.Close()

	bt := strategy.NewBacktester(deps.Pipeline, deps.Calendar, runs, registry, logger)

	opts := []engine.Option{engine.WithMetrics(m)}
	if !*quiet {
		var bar *progressbar.ProgressBar
		opts = append(opts, engine.WithStepHook(func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription(*name),
					progressbar.OptionSetElapsedTime(true),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionShowCount(),
				)
			}
			_ = bar.Set(done)
			if done == total {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
		}))
	}

	res, err := bt.Run(ctx, *name, ecfg, opts...)
	if err != nil {
		logger.Error("backtest failed", "strategy", *name, "error", err)
		os.Exit(1)
	}

	fmt.Printf("run          %s\n", res.RunID)
	fmt.Printf("strategy     %s\n", res.Strategy)
	fmt.Printf("period       %s .. %s\n", ecfg.Start.Format("2006-01-02"), ecfg.End.Format("2006-01-02"))
	fmt.Printf("final NAV    %.2f\n", res.FinalNAV)
	fmt.Printf("return       %.2f%%\n", res.TotalReturn*100)
	fmt.Printf("sharpe       %.2f\n", res.SharpeRatio)
	fmt.Printf("max drawdown %.2f%%\n", res.MaxDrawdown*100)
	fmt.Printf("trades       %d\n", res.TotalTrades)
}
