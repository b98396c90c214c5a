// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// StreamTypeWebRTC is the only stream transport the engine serves.
const StreamTypeWebRTC = "webrtc"

// Stream is a named media source that remote peers can request.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (Stream) ItemType() string { return "Stream" }

// streamDomainKey is the BLAKE3 key for stream id derivation: the
// ASCII domain name zero-padded to 32 bytes.
var streamDomainKey = [32]byte{
	'r', 's', 'h', 'i', 'p', '.', 'e', 'x', 'e', 'c', '.', 's', 't', 'r', 'e', 'a',
	'm', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// StreamID derives the stream id for a target served by an instance.
// The same target on two instances yields two distinct streams. The
// result is 32 hex characters.
func StreamID(targetID, instanceID string) string {
	hasher, err := blake3.NewKeyed(streamDomainKey[:])
	if err != nil {
		panic("blake3.NewKeyed with 32-byte key failed: " + err.Error())
	}
	hasher.Write([]byte(targetID))
	// The separator keeps ("ab","c") and ("a","bc") apart.
	hasher.Write([]byte{0})
	hasher.Write([]byte(instanceID))
	return hex.EncodeToString(hasher.Sum(nil)[:16])
}

// NewStream builds the stream record for a target's media source.
func NewStream(targetID, instanceID, name string) Stream {
	return Stream{
		ID:   StreamID(targetID, instanceID),
		Name: name,
		Type: StreamTypeWebRTC,
	}
}

// IceCandidate is one trickled ICE candidate.
type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// WebRTCConnection is the server's record of one remote peer's request
// for a stream. The remote side writes SDPOffer and OfferCandidates;
// the engine answers through [SetAnswer] and [AddAnswerCandidate].
// Candidate lists are ordered and only ever appended to.
type WebRTCConnection struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	StreamID         string         `json:"streamId"`
	SDPOffer         string         `json:"sdpOffer,omitempty"`
	SDPAnswer        string         `json:"sdpAnswer,omitempty"`
	OfferCandidates  []IceCandidate `json:"offerCandidates"`
	AnswerCandidates []IceCandidate `json:"answerCandidates"`
}

func (WebRTCConnection) ItemType() string { return "WebRTCConnection" }
