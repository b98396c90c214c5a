// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/rship-exec/lib/testutil"
)

func TestLoopRunsEventsInOrder(t *testing.T) {
	loop := NewLoop(16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	var order []int
	finished := make(chan struct{})
	for i := range 10 {
		loop.Post(func() { order = append(order, i) })
	}
	loop.Post(func() { close(finished) })
	testutil.RequireClosed(t, finished, 5*time.Second, "events did not run")

	if !slices.Equal(order, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Errorf("order = %v", order)
	}

	cancel()
	err := testutil.RequireReceive(t, done, 5*time.Second, "Run did not return")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if loop.Post(func() {}) {
		t.Error("Post after Run returned reported success")
	}
}

func TestPostFromEventDoesNotBlockOnFullQueue(t *testing.T) {
	loop := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	results := make(chan []bool, 1)
	loop.Post(func() {
		first := loop.Post(func() {})
		second := loop.Post(func() {})
		results <- []bool{first, second}
	})

	got := testutil.RequireReceive(t, results, 5*time.Second, "event blocked posting to its own queue")
	if !slices.Equal(got, []bool{true, false}) {
		t.Errorf("posts = %v, want the second dropped", got)
	}
}
