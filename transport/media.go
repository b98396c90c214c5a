// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

var (
	// ErrNotConnected is returned when a frame is sent while the
	// socket is down.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrUnknownConnection is returned for an operation naming a local
	// connection that does not exist.
	ErrUnknownConnection = errors.New("transport: unknown local connection")
)

// MediaTransport manages local peer connections, each identified by
// an opaque local id. Answers and gathered candidates are reported
// asynchronously through [MediaCallbacks].
type MediaTransport interface {
	// Open creates a new local connection and returns its id.
	Open() (string, error)
	// AttachTrack adds a media track to a connection. Call before
	// AcceptOffer so the answer includes it.
	AttachTrack(localID string, track webrtc.TrackLocal) error
	// AddRemoteCandidate applies one of the remote peer's candidates.
	AddRemoteCandidate(localID string, candidate catalog.IceCandidate) error
	// AcceptOffer applies the remote offer and starts answering. The
	// answer SDP arrives through MediaCallbacks.OnAnswer.
	AcceptOffer(localID string, sdp string) error
	// Close tears down a connection. Closing an unknown or already
	// closed connection is a no-op.
	Close(localID string) error
	// Connections returns the ids of all open connections.
	Connections() []string
}

// MediaCallbacks receive asynchronous events from a MediaTransport.
// They may be called from any goroutine.
type MediaCallbacks struct {
	OnAnswer    func(localID, sdp string)
	OnCandidate func(localID string, candidate catalog.IceCandidate)
	OnClosed    func(localID string)
}
