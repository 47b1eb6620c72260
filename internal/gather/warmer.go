package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"simtrader/internal/datasource"
	"simtrader/internal/domain"
	"simtrader/internal/store"
	"simtrader/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*Warmer)(nil)

// WarmerConfig selects what a Warmer fetches.
type WarmerConfig struct {
	DataDir    string
	Symbols    []string // single-provider nicknames, e.g. fmp:SPY
	Universes  []string // index ids whose current members are warmed too
	MaxWorkers int
	Start      time.Time // bars before Start are not written to Parquet
}

// Stats summarizes one warm pass.
type Stats struct {
	Skipped bool // the day was already complete
	Symbols int
	Warmed  int
	Empty   int
	Bars    int
}

// Warmer loads every configured symbol through the pipeline, which fills
// the document cache, and writes the adjusted bars to the bar store under
// the provider's name.
type Warmer struct {
	pipeline *datasource.Pipeline
	bars     store.BarStore
	cfg      WarmerConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewWarmer creates a Warmer.
func NewWarmer(p *datasource.Pipeline, bars store.BarStore, cfg WarmerConfig, log *slog.Logger) *Warmer {
	if log == nil {
		log = util.Discard()
	}
	return &Warmer{
		pipeline: p,
		bars:     bars,
		cfg:      cfg,
		log:      log.With("gatherer", "warm"),
		now:      time.Now,
	}
}

func (w *Warmer) Name() string { return "warm" }

func (w *Warmer) Run(ctx context.Context) error {
	_, err := w.Warm(ctx)
	return err
}

type warmJob struct {
	nickname string
	source   string
}

// Warm performs one pass. Symbols without data are remembered for the rest
// of the day; a day that already completed is skipped.
func (w *Warmer) Warm(ctx context.Context) (Stats, error) {
	day := w.now().UTC().Format(domain.DateLayout)

	tracker, err := newProgressTracker(filepath.Join(w.cfg.DataDir, ".warm"))
	if err != nil {
		return Stats{}, err
	}
	defer tracker.Close()

	done, err := tracker.Begin(day)
	if err != nil {
		return Stats{}, err
	}
	if done {
		w.log.Info("already completed", "day", day)
		return Stats{Skipped: true}, nil
	}

	nicknames := append([]string(nil), w.cfg.Symbols...)
	for _, idx := range w.cfg.Universes {
		members, err := w.snapshotUniverse(ctx, idx, day)
		if err != nil {
			return Stats{}, err
		}
		nicknames = append(nicknames, members...)
	}

	var (
		jobs    []warmJob
		seen    = make(map[string]bool)
		writers = make(map[string]*universeWriter)
	)
	for _, nick := range nicknames {
		if seen[nick] || tracker.IsTriedEmpty(nick) {
			continue
		}
		seen[nick] = true
		source, _, err := w.pipeline.Resolve(nick)
		if err != nil {
			return Stats{}, err
		}
		if source == "pq" {
			continue
		}
		if writers[source] == nil {
			writers[source] = newUniverseWriter(filepath.Join(w.cfg.DataDir, source, "universe"))
		}
		jobs = append(jobs, warmJob{nickname: nick, source: source})
	}

	w.log.Info("starting warm pass", "day", day, "symbols", len(jobs), "workers", w.cfg.MaxWorkers)

	var warmed, empty, nbars atomic.Int64
	runStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.cfg.MaxWorkers, 1))
	for _, job := range jobs {
		g.Go(func() error {
			a, err := w.pipeline.History(gctx, job.nickname)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if errors.Is(err, domain.ErrConfiguration) {
					return err
				}
				w.log.Warn("no data", "symbol", job.nickname, "error", err)
				empty.Add(1)
				return tracker.MarkEmpty(job.nickname)
			}

			bars := a.Bars
			for len(bars) > 0 && bars[0].Timestamp.Before(w.cfg.Start) {
				bars = bars[1:]
			}
			if len(bars) == 0 {
				empty.Add(1)
				return tracker.MarkEmpty(job.nickname)
			}
			if err := w.bars.WriteBars(gctx, job.source, bars); err != nil {
				return fmt.Errorf("writing %s: %w", job.nickname, err)
			}
			writers[job.source].AddBars(bars)
			warmed.Add(1)
			nbars.Add(int64(len(bars)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	for _, uw := range writers {
		if err := uw.Flush(); err != nil {
			return Stats{}, err
		}
		if err := uw.Finalize(); err != nil {
			return Stats{}, err
		}
	}
	if err := tracker.Complete(); err != nil {
		return Stats{}, fmt.Errorf("marking completed: %w", err)
	}

	st := Stats{
		Symbols: len(jobs),
		Warmed:  int(warmed.Load()),
		Empty:   int(empty.Load()),
		Bars:    int(nbars.Load()),
	}
	w.log.Info("warm pass complete", "warmed", st.Warmed, "empty", st.Empty,
		"bars", st.Bars, "elapsed", time.Since(runStart).Round(time.Millisecond))
	return st, nil
}

// snapshotUniverse records today's members of idx under
// <DataDir>/universe/<idx>/<day>.txt and returns them. An unavailable
// universe is logged and skipped.
func (w *Warmer) snapshotUniverse(ctx context.Context, idx, day string) ([]string, error) {
	u, err := w.pipeline.Universe(ctx, idx)
	if err != nil {
		if errors.Is(err, domain.ErrDataUnavailable) {
			w.log.Warn("universe unavailable", "universe", idx, "error", err)
			return nil, nil
		}
		return nil, err
	}
	members := u.Constituents(w.now())

	uw := newUniverseWriter(filepath.Join(w.cfg.DataDir, "universe", strings.TrimPrefix(idx, "$")))
	uw.Add(day, members...)
	if err := uw.Flush(); err != nil {
		return nil, err
	}
	if err := uw.Finalize(); err != nil {
		return nil, err
	}
	return members, nil
}
