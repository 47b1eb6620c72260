// Package datasource turns provider documents into canonical, adjusted and
// calendar-aligned assets. Every provider request goes through the same
// three stages: fetch, validate, extract. Validated raw payloads are kept
// in a durable document cache shared across runs and processes.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"simtrader/internal/domain"
	"simtrader/internal/metrics"
	"simtrader/internal/store"
	"simtrader/internal/util"
)

// Loader describes one provider request.
type Loader[T any] struct {
	// Key identifies the request in the document cache.
	Key store.Key
	// NoCache bypasses the document cache, for local sources.
	NoCache bool

	// Fetch retrieves the raw payload.
	Fetch func(ctx context.Context) ([]byte, error)
	// Validate rejects empty, truncated or structurally wrong payloads.
	Validate func(raw []byte) error
	// Extract turns a validated payload into T.
	Extract func(raw []byte) (T, error)
}

// Env carries the shared services a load runs against. Every field is
// optional.
type Env struct {
	Docs    store.DocumentCache
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func (e Env) log() *slog.Logger {
	if e.Log == nil {
		return util.Discard()
	}
	return e.Log
}

// Load runs l against env:
//
//  1. a cached payload that validates and extracts is returned without
//     touching the network;
//  2. otherwise the payload is fetched, validated and extracted;
//  3. only payloads that passed both checks are written back to the cache.
//
// Fetch, validation and extraction failures are reported as
// ErrDataUnavailable. Fetch errors carrying ErrConfiguration and extraction
// errors carrying ErrDataIntegrity are returned as such.
func Load[T any](ctx context.Context, env Env, l Loader[T]) (T, error) {
	var zero T
	provider := l.Key.Provider
	log := env.log().With("component", "datasource", "key", l.Key.String())

	useCache := !l.NoCache && env.Docs != nil
	if useCache {
		doc, ok, err := env.Docs.Get(ctx, l.Key)
		if err != nil {
			log.Warn("document cache read failed", "error", err)
		}
		if ok {
			if err := l.Validate(doc.Payload); err == nil {
				if v, err := l.Extract(doc.Payload); err == nil {
					env.Metrics.CacheHit(provider)
					log.Debug("document cache hit", "fetched_at", doc.FetchedAt)
					return v, nil
				}
			}
			log.Info("cached document rejected, refetching")
		}
		env.Metrics.CacheMiss(provider)
	}

	start := time.Now()
	raw, err := l.Fetch(ctx)
	env.Metrics.ObserveFetch(provider, time.Since(start))
	if err != nil {
		env.Metrics.FetchFailed(provider, "fetch")
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if errors.Is(err, domain.ErrConfiguration) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, l.Key, err)
	}

	if err := l.Validate(raw); err != nil {
		env.Metrics.FetchFailed(provider, "validate")
		log.Warn("provider document rejected", "error", err, "bytes", len(raw))
		return zero, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, l.Key, err)
	}

	v, err := l.Extract(raw)
	if err != nil {
		env.Metrics.FetchFailed(provider, "extract")
		if errors.Is(err, domain.ErrDataIntegrity) {
			return zero, fmt.Errorf("%s: %w", l.Key, err)
		}
		return zero, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, l.Key, err)
	}

	if useCache {
		if err := env.Docs.Put(ctx, l.Key, raw); err != nil {
			log.Warn("document cache write failed", "error", err)
		}
	}
	return v, nil
}
