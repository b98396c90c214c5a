// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import "context"

// Loop runs posted events one at a time on a single goroutine. Every
// engine entry point is called from Run, so the engine needs no locks.
type Loop struct {
	events chan func()
	done   chan struct{}
}

// NewLoop creates a Loop whose queue holds capacity events.
func NewLoop(capacity int) *Loop {
	return &Loop{
		events: make(chan func(), capacity),
		done:   make(chan struct{}),
	}
}

// Post queues an event without blocking. It returns false when the
// queue is full or Run has returned; the event is then dropped. Events
// may post further events, since Post never waits on the goroutine
// that drains the queue.
func (l *Loop) Post(event func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- event:
		return true
	default:
		return false
	}
}

// Run executes events until ctx is cancelled, then returns ctx.Err().
// Events still queued are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-l.events:
			event()
		}
	}
}
