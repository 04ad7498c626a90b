// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package handoff provides a single-slot, last-value-wins handoff between
// one producer goroutine and its consumers.
package handoff

import (
	"context"
	"sync"
)

// Signal holds at most one pending value. A new value replaces any value
// that was not taken yet. The zero value is not usable, use New.
type Signal[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	// ready has room for one token and holds one while a value is pending.
	ready chan struct{}
}

// New returns an empty Signal.
func New[T any]() *Signal[T] {
	return &Signal[T]{ready: make(chan struct{}, 1)}
}

// Signal stores v, overwriting any pending value, and wakes a waiter.
// It never blocks.
func (s *Signal[T]) Signal(v T) {
	s.mu.Lock()
	s.value = v
	s.set = true
	s.mu.Unlock()
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Wait blocks until a value is pending, then returns it and empties the
// slot. It returns ctx.Err() if ctx is done first.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok := s.TryTake(); ok {
			return v, nil
		}
		select {
		case <-s.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryTake returns the pending value, if any, without blocking.
func (s *Signal[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.value, s.set
	if ok {
		var zero T
		s.value, s.set = zero, false
	}
	return v, ok
}

// Pending reports whether a value is waiting to be taken.
func (s *Signal[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}
