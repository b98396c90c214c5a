// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so that tests of
// goroutine-driven components (the socket transport, the event loop,
// the link client) never hang when an expected event does not arrive.
// These are the only places in the test suite that wait on wall-clock
// time.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
