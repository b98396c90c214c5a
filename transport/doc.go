// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries the engine's traffic: the WebSocket to
// the rship server and the WebRTC media connections that serve
// streams to remote viewers.
//
// [Socket] is a reconnecting gorilla/websocket client. It delivers
// text frames, surfaces pongs as heartbeats, and returns
// [ErrNotConnected] from SendText while down rather than queueing.
//
// [Relay] is the signaling relay. It subscribes to WebRTCConnection
// records, opens one local connection per remote viewer whose stream
// is served here, applies the viewer's offer and candidates, and
// sends the local answer and candidates back as SetAnswer and
// AddAnswerCandidate commands. A query response with sequence 0 is a
// fresh snapshot and closes every existing connection first.
//
// [PeerMedia] implements [MediaTransport] on pion/webrtc with trickle
// ICE. Candidates that arrive before the offer are held until the
// remote description is set.
package transport
