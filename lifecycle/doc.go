// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle drives the sync engine through connection
// changes.
//
// [Machine] moves between four states:
//
//	Uninitialized --identity--> Ready --connected--> Connected
//	Connected --resync--> Syncing --done--> Connected
//	any --disconnected--> Ready (identity known) or Uninitialized
//
// Nothing is published before the first identity result. Each
// resync pass publishes the instance and the target tree before it
// queries the server for this service's targets, so the server never
// sees the service online with its targets missing.
//
// Socket events, identity results, ticks and media callbacks all
// arrive on different goroutines. They are posted to a [Loop], which
// runs them one at a time; the Machine, the sync client and the relay
// are only ever touched from the loop.
package lifecycle
