// Package store defines storage interfaces and their on-disk implementations:
// the durable provider document cache, the Parquet bar store and the SQLite
// run store.
package store

import (
	"context"
	"time"

	"simtrader/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars, namespaced by source
// (the provider the bars came from).
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, source string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and source within [start, end].
	ReadBars(ctx context.Context, source, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available for the source.
	ListSymbols(ctx context.Context, source string) ([]string, error)
}

// Key identifies one provider request: the provider, the symbol and a
// signature of the request parameters.
type Key struct {
	Provider  string
	Symbol    string
	Signature string
}

func (k Key) String() string {
	return k.Provider + ":" + k.Symbol + "#" + k.Signature
}

// Document is a cached raw provider payload.
type Document struct {
	Payload   []byte
	FetchedAt time.Time
}

// DocumentCache is the durable, process-shared cache of validated raw
// provider payloads.
type DocumentCache interface {
	// Get returns the document stored under k. ok is false when there is no
	// usable entry.
	Get(ctx context.Context, k Key) (doc Document, ok bool, err error)

	// Put stores payload under k, replacing any previous entry atomically.
	Put(ctx context.Context, k Key, payload []byte) error
}

// RunRecord summarizes one completed simulation run.
type RunRecord struct {
	ID          string
	Strategy    string
	CreatedAt   time.Time
	StartDate   time.Time
	EndDate     time.Time
	InitialCash float64
	FinalNAV    float64
	TotalReturn float64
	Sharpe      float64
	MaxDrawdown float64
	Trades      int
}

// RunStore persists simulation results.
type RunStore interface {
	// SaveRun stores the run summary together with its equity curve and
	// fills.
	SaveRun(ctx context.Context, run RunRecord, equity []domain.EquityPoint, fills []domain.Fill) error

	// GetRun retrieves a run summary by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns the runs of a strategy, newest first.
	ListRuns(ctx context.Context, strategy string) ([]RunRecord, error)

	// Equity returns the stored equity curve of a run.
	Equity(ctx context.Context, id string) ([]domain.EquityPoint, error)
}
