// Package strategy defines the Strategy interface, a Registry of strategy
// factories and the Backtester that runs a strategy through the engine and
// scores the result.
package strategy

import (
	"context"
	"sort"

	"simtrader/internal/engine"
)

// Strategy is the interface that all trading strategies must implement. A
// Strategy value holds the state of one run and is not reused.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init registers the assets and indicators the strategy reads. Assets
	// requested here are loaded before the first bar.
	Init(ctx context.Context, r *engine.Run) error

	// OnBar is called once per simulated date.
	OnBar(ctx context.Context, r *engine.Run) error
}

// Factory creates a fresh Strategy for one run.
type Factory func() Strategy

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory, keyed by the Name() of the strategies it makes.
func (r *Registry) Register(f Factory) {
	r.factories[f().Name()] = f
}

// Get creates a new instance of the named strategy. The second return value
// indicates whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
