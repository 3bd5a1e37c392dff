// Package race runs a call against a timer and reports whichever settles
// first.
package race

import (
	"context"
	"sync/atomic"
	"time"
)

// Result is what a call produced.
type Result[T any] struct {
	Value T
	Err   error
}

// Outcome is the result of First. When TimedOut is true, Value and Err are
// zero and the call may still be running in the background.
type Outcome[T any] struct {
	Result[T]
	TimedOut bool
}

// LateFunc receives the result of a call that lost the race, once it settles.
type LateFunc[T any] func(Result[T])

// First runs fn and arms a timer of length budget. Whichever settles first
// claims a single-assignment flag and becomes the outcome; the other side can
// no longer affect it. If fn loses and onLate is not nil, onLate is invoked
// from fn's goroutine with the eventual result.
//
// fn is not cancelled when it loses. Cancelling ctx also claims the flag,
// with ctx.Err() as the outcome's error.
func First[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error), onLate LateFunc[T]) Outcome[T] {
	var claimed atomic.Bool
	won := make(chan Outcome[T], 1)

	go func() {
		v, err := fn(ctx)
		r := Result[T]{Value: v, Err: err}
		if claimed.CompareAndSwap(false, true) {
			won <- Outcome[T]{Result: r}
			return
		}
		if onLate != nil {
			onLate(r)
		}
	}()

	timer := time.AfterFunc(budget, func() {
		if claimed.CompareAndSwap(false, true) {
			won <- Outcome[T]{TimedOut: true}
		}
	})
	defer timer.Stop()

	select {
	case o := <-won:
		return o
	case <-ctx.Done():
		if claimed.CompareAndSwap(false, true) {
			return Outcome[T]{Result: Result[T]{Err: ctx.Err()}}
		}
		return <-won
	}
}
