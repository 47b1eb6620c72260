package cache

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps the value recovered from a Future function that panicked.
var ErrPanic = errors.New("future panicked")

// Future is a value resolved exactly once. Get blocks until the value is
// available; concurrent callers share the single evaluation.
type Future[T any] struct {
	once sync.Once
	fn   func() (T, error)
	val  T
	err  error
}

// Lazy returns a Future whose function runs on the first call to Get.
func Lazy[T any](fn func() (T, error)) *Future[T] {
	return &Future[T]{fn: fn}
}

// Go returns a Future whose function starts running immediately in its own
// goroutine.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := Lazy(fn)
	go f.resolve()
	return f
}

// Resolved returns a Future that already holds v and err.
func Resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{val: v, err: err}
	f.once.Do(func() {})
	return f
}

// Get blocks until the Future is resolved and returns its value.
func (f *Future[T]) Get() (T, error) {
	f.resolve()
	return f.val, f.err
}

func (f *Future[T]) resolve() {
	f.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.val, f.err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
			}
			f.fn = nil
		}()
		f.val, f.err = f.fn()
	})
}
