// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package client

import (
	"sync"
	"sync/atomic"
)

// observable holds a state value and notifies observers of every change.
type observable[S any] struct {
	mu        sync.Mutex
	state     S
	observers map[uint64]func(S)
	nextID    uint64
	inFlight  atomic.Int32
}

// begin marks a call in flight and returns the function that ends it.
func (o *observable[S]) begin() func() {
	o.inFlight.Add(1)
	return func() { o.inFlight.Add(-1) }
}

// fetching reports whether any call is in flight.
func (o *observable[S]) fetching() bool {
	return o.inFlight.Load() > 0
}

func (o *observable[S]) get() S {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// set stores s and calls each observer outside the lock.
func (o *observable[S]) set(s S) {
	o.mu.Lock()
	o.state = s
	fns := make([]func(S), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// observe registers fn and returns the function that removes it.
func (o *observable[S]) observe(fn func(S)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.observers == nil {
		o.observers = make(map[uint64]func(S))
	}
	id := o.nextID
	o.nextID++
	o.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.observers, id)
		})
	}
}
