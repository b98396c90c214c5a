// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lifecycle"
	"github.com/bureau-foundation/rship-exec/transport"
)

// socketEvents forwards socket callbacks onto the loop. machine is
// set once after construction, before the socket starts.
type socketEvents struct {
	post    func(func()) bool
	machine *lifecycle.Machine
	logger  *slog.Logger
}

func (e *socketEvents) OnConnected() {
	e.post(e.machine.HandleConnected)
}

func (e *socketEvents) OnDisconnected(err error) {
	if err != nil {
		e.logger.Warn("server connection lost", "error", err)
	}
	e.post(e.machine.HandleDisconnected)
}

func (e *socketEvents) OnText(text []byte) {
	e.post(func() { e.machine.HandleText(text) })
}

func (e *socketEvents) OnHeartbeat() {
	e.post(e.machine.HandleHeartbeat)
}

// mediaEvents returns callbacks that post peer connection events to
// the loop, where the relay turns them into commands. relay is read
// when an event fires, so it may be assigned after the callbacks are
// built.
func mediaEvents(post func(func()) bool, relay **transport.Relay) transport.MediaCallbacks {
	return transport.MediaCallbacks{
		OnAnswer: func(localID, sdp string) {
			post(func() { (*relay).HandleLocalAnswer(localID, sdp) })
		},
		OnCandidate: func(localID string, candidate catalog.IceCandidate) {
			post(func() { (*relay).HandleLocalCandidate(localID, candidate) })
		},
		OnClosed: func(localID string) {
			post(func() { (*relay).HandleLocalClosed(localID) })
		},
	}
}
