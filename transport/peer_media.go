// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

// Compile-time interface check.
var _ MediaTransport = (*PeerMedia)(nil)

// PeerMedia is the pion implementation of [MediaTransport]. Each local
// connection is one PeerConnection answering a remote offer with
// trickle ICE: the answer is reported as soon as it is set, and each
// gathered candidate is reported as it appears.
type PeerMedia struct {
	api       *webrtc.API
	iceConfig ICEConfig
	callbacks MediaCallbacks
	logger    *slog.Logger

	mu    sync.Mutex
	peers map[string]*localPeer
}

// localPeer is one local PeerConnection. Protected by PeerMedia.mu.
type localPeer struct {
	connection *webrtc.PeerConnection
	// pending holds remote candidates that arrived before the offer.
	pending []webrtc.ICECandidateInit
	// closed is set once OnClosed has been reported.
	closed bool
}

// NewPeerMedia creates a PeerMedia. Callbacks with nil fields are
// skipped.
func NewPeerMedia(iceConfig ICEConfig, callbacks MediaCallbacks, logger *slog.Logger) (*PeerMedia, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(iceConfig.IncludeLoopback)

	return &PeerMedia{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		iceConfig: iceConfig,
		callbacks: callbacks,
		logger:    logger,
		peers:     make(map[string]*localPeer),
	}, nil
}

// Open creates a PeerConnection with the current ICE config.
func (m *PeerMedia) Open() (string, error) {
	connection, err := m.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: m.iceConfig.Servers,
	})
	if err != nil {
		return "", fmt.Errorf("creating PeerConnection: %w", err)
	}

	localID := uuid.NewString()
	peer := &localPeer{connection: connection}

	connection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if candidate == nil || m.callbacks.OnCandidate == nil {
			return
		}
		m.callbacks.OnCandidate(localID, candidateFromInit(candidate.ToJSON()))
	})

	connection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Debug("peer connection state change",
			"local_id", localID,
			"state", state.String(),
		)
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.reportClosed(localID, peer)
		}
	})

	m.mu.Lock()
	m.peers[localID] = peer
	m.mu.Unlock()

	m.logger.Info("local peer connection opened", "local_id", localID)
	return localID, nil
}

func (m *PeerMedia) lookup(localID string) (*localPeer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	peer, ok := m.peers[localID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, localID)
	}
	return peer, nil
}

// AttachTrack adds a send-only track and drains its RTCP so pion's
// interceptors keep running.
func (m *PeerMedia) AttachTrack(localID string, track webrtc.TrackLocal) error {
	peer, err := m.lookup(localID)
	if err != nil {
		return err
	}
	sender, err := peer.connection.AddTrack(track)
	if err != nil {
		return fmt.Errorf("adding track %s: %w", track.ID(), err)
	}
	go func() {
		buffer := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buffer); err != nil {
				return
			}
		}
	}()
	return nil
}

// AddRemoteCandidate applies a candidate, or queues it until the
// offer has been applied.
func (m *PeerMedia) AddRemoteCandidate(localID string, candidate catalog.IceCandidate) error {
	m.mu.Lock()
	peer, ok := m.peers[localID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, localID)
	}
	init := initFromCandidate(candidate)
	if peer.connection.RemoteDescription() == nil {
		peer.pending = append(peer.pending, init)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := peer.connection.AddICECandidate(init); err != nil {
		return fmt.Errorf("adding remote candidate: %w", err)
	}
	return nil
}

// AcceptOffer sets the remote offer, creates and sets the local
// answer, flushes queued candidates, and reports the answer.
func (m *PeerMedia) AcceptOffer(localID string, sdp string) error {
	peer, err := m.lookup(localID)
	if err != nil {
		return err
	}
	connection := peer.connection

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := connection.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := connection.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	if err := connection.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	m.mu.Lock()
	pending := peer.pending
	peer.pending = nil
	m.mu.Unlock()

	var errs []error
	for _, candidate := range pending {
		if err := connection.AddICECandidate(candidate); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		m.logger.Warn("queued remote candidates rejected",
			"local_id", localID,
			"error", errors.Join(errs...),
		)
	}

	if m.callbacks.OnAnswer != nil {
		m.callbacks.OnAnswer(localID, connection.LocalDescription().SDP)
	}
	return nil
}

// Close closes and forgets a connection.
func (m *PeerMedia) Close(localID string) error {
	m.mu.Lock()
	peer, ok := m.peers[localID]
	delete(m.peers, localID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := peer.connection.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", localID, err)
	}
	return nil
}

// CloseAll closes every connection.
func (m *PeerMedia) CloseAll() {
	for _, localID := range m.Connections() {
		if err := m.Close(localID); err != nil {
			m.logger.Warn("closing local peer connection failed", "local_id", localID, "error", err)
		}
	}
}

// Connections returns the ids of all open connections, sorted.
func (m *PeerMedia) Connections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for localID := range m.peers {
		ids = append(ids, localID)
	}
	slices.Sort(ids)
	return ids
}

// reportClosed forgets a connection that pion closed or failed and
// reports it once.
func (m *PeerMedia) reportClosed(localID string, peer *localPeer) {
	m.mu.Lock()
	if peer.closed {
		m.mu.Unlock()
		return
	}
	peer.closed = true
	if current, ok := m.peers[localID]; ok && current == peer {
		delete(m.peers, localID)
	}
	m.mu.Unlock()

	if m.callbacks.OnClosed != nil {
		m.callbacks.OnClosed(localID)
	}
}

func candidateFromInit(init webrtc.ICECandidateInit) catalog.IceCandidate {
	candidate := catalog.IceCandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		candidate.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		candidate.SDPMLineIndex = *init.SDPMLineIndex
	}
	return candidate
}

func initFromCandidate(candidate catalog.IceCandidate) webrtc.ICECandidateInit {
	mid := candidate.SDPMid
	index := candidate.SDPMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}
