// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Rship-exec publishes a host's controllable targets to an rship
// orchestration server and answers its commands.
//
// The host catalog comes from the host section of the configuration
// file. On startup the process:
//  1. Loads and validates the configuration (--config or
//     RSHIP_EXEC_CONFIG).
//  2. Opens the persistent target id store.
//  3. Starts the metrics listener when metrics.address is set.
//  4. Dials the server and runs the lifecycle loop: identity ticks,
//     socket events and media callbacks are all posted to one
//     goroutine that owns the sync client, the relay and the state
//     machine.
//
// On SIGINT or SIGTERM the loop stops, the instance is published as
// Stopping with every target Offline, local peer connections close
// and the socket is torn down.
package main
