// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package statichost is a host whose components and parameters come
// from the host section of the configuration file. It backs the
// rship-exec binary when no application is embedding the executor,
// and gives operators a way to publish a fixed target layout, with
// optional video tracks fed by [Host.WriteSample].
//
// Parameter styles map to value shapes: Float and Int carry one
// channel per configured component name (or a single "value"), the
// vector styles carry their axis names, color styles carry unit
// ranged channels, Menu and StrMenu enumerate their entries and Pulse
// reports a fresh token each time it fires.
package statichost
