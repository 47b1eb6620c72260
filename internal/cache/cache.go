// Package cache implements the run-scoped memoization engine behind series
// and indicators. Every derived computation is registered under a structural
// identity string and evaluated at most once per run.
package cache

import (
	"fmt"
	"strings"
	"sync"

	"simtrader/internal/domain"
)

// Cache maps computation identities to their memoized results. It is scoped
// to a single simulation run and dropped with it.
type Cache struct {
	mu      sync.Mutex
	entries map[string]any
	evals   map[string]int
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]any),
		evals:   make(map[string]int),
	}
}

// Memo returns the Future registered under id, creating it from fn on first
// use. fn runs at most once, on the first Get of the returned Future.
// Reusing id for a different result type yields a Future holding an
// ErrConfiguration.
func Memo[T any](c *Cache, id string, fn func() (T, error)) *Future[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		if f, ok := e.(*Future[T]); ok {
			return f
		}
		return mismatch[T](id)
	}

	f := Lazy(func() (T, error) {
		c.mu.Lock()
		c.evals[id]++
		c.mu.Unlock()
		return fn()
	})
	c.entries[id] = f
	return f
}

// Put registers an already started Future under id unless one exists, and
// returns the registered Future. Like Memo, an id registered for another
// result type yields a Future holding an ErrConfiguration and leaves the
// existing entry in place.
func Put[T any](c *Cache, id string, f *Future[T]) *Future[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		if existing, ok := e.(*Future[T]); ok {
			return existing
		}
		return mismatch[T](id)
	}
	c.entries[id] = f
	return f
}

func mismatch[T any](id string) *Future[T] {
	var zero T
	return Resolved(zero, fmt.Errorf("%w: cache id %q reused for %T", domain.ErrConfiguration, id, zero))
}

// Evaluations reports how many times the function registered under id ran.
func (c *Cache) Evaluations(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evals[id]
}

// Len returns the number of registered entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ID builds a structural identity "<source>.<op>(<p1>,<p2>,...)". Because the
// source is itself an identity, nested computations compose naturally.
func ID(source, op string, params ...any) string {
	var b strings.Builder
	b.WriteString(source)
	b.WriteByte('.')
	b.WriteString(op)
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprint(&b, p)
	}
	b.WriteByte(')')
	return b.String()
}
