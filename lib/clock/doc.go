// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Engine components stamp every published entity (target lastUpdated,
// status lastUpdated, command createdAt) and drive their periodic tick
// and reconnect backoff through a Clock rather than the time package.
// Production wiring passes Real(); tests pass Fake() and move time
// explicitly with Advance, which makes timestamps in encoded messages
// deterministic and lets tick-driven code run without sleeping.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	ticker := c.NewTicker(10 * time.Second)
//	c.Advance(10 * time.Second) // ticker.C now holds one tick
package clock
