package series

import "simtrader/internal/cache"

// Buffered is a series produced bar by bar from its own previous value, such
// as a custom smoothing filter evaluated inside the strategy callback. Values
// exist only for dates the simulation has visited.
type Buffered struct {
	host  Host
	id    string
	steps *cache.Steps
	err   error
	init  float64
	step  func(prev float64) float64
}

// NewBuffered returns the buffered series registered under id. step receives
// the previous output (init on the first bar) and returns the current one.
func NewBuffered(host Host, id string, init float64, step func(prev float64) float64) *Buffered {
	steps, err := cache.Stepwise(host.Cache(), id)
	return &Buffered{host: host, id: id, steps: steps, err: err, init: init, step: step}
}

// ID returns the identity of the series.
func (b *Buffered) ID() string { return b.id }

// At evaluates the current bar if needed and returns the value at offset.
// Offsets clamp to the visited range.
func (b *Buffered) At(offset int) (float64, error) {
	if b.err != nil {
		return 0, b.err
	}
	now := b.host.SimDate()
	b.steps.At(now, b.init, b.step)
	i := b.steps.Index(now)
	return b.steps.Value(clamp(i+offset, b.steps.Len())), nil
}
