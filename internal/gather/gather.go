// Package gather pre-fetches provider data outside of simulation runs. The
// Warmer fills the durable document cache, mirrors adjusted bars into the
// Parquet store and records index membership snapshots, so later runs and
// the offline "pq" provider find everything locally.
package gather

import "context"

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass.
	Run(ctx context.Context) error
}
