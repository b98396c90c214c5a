// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncclient keeps the orchestration server's catalog in step
// with the targets the host exposes, and dispatches the commands and
// query responses the server sends back.
//
// A [Client] owns everything the protocol needs to remember between
// messages:
//
//   - the action handler table, keyed by action id, that inbound
//     ExecTargetAction commands dispatch through
//   - the emitter table, keyed by change key, that host change
//     notifications pulse through
//   - the outstanding query table, keyed by tx, bounded so that
//     superseded queries age out
//   - the sent-status cache, so an unchanged TargetStatus is sent once
//   - the local target set from the last rebuild, and the set of ids
//     the server has reported for this service
//
// Outbound publishing is fire-and-forget: a failed send is logged and
// counted, never returned to the host. Status sends that fail do not
// update the cache, so the next pass retries them.
//
// A Client is not safe for concurrent use. Drive it from a single
// goroutine; the lifecycle package's event loop does this.
package syncclient
