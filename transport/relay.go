// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/myko"
)

// CommandSender is the relay's outbound path: commands answering
// remote peers, and the connections query.
type CommandSender interface {
	SendCommand(command myko.Command) error
	RegisterQuery(query myko.Query, itemType string, handler myko.QueryHandler) error
}

// RelayConfig holds configuration for creating a Relay.
type RelayConfig struct {
	// Media opens and drives local connections. Required.
	Media MediaTransport
	// Commands carries SetAnswer and AddAnswerCandidate upstream.
	// Required.
	Commands CommandSender
	// Clock stamps outbound commands. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Relay maps remote WebRTCConnection records onto local media
// connections. Like the sync client it is not safe for concurrent
// use: every method must run on the engine's event loop, and media
// callbacks must be posted there before reaching HandleLocalAnswer,
// HandleLocalCandidate or HandleLocalClosed.
type Relay struct {
	media    MediaTransport
	commands CommandSender
	clock    clock.Clock
	logger   *slog.Logger

	// sources maps stream id to the track served for it.
	sources map[string]webrtc.TrackLocal

	remoteToLocal map[string]string
	localToRemote map[string]string
	// streamOf maps remote id to the stream it requested.
	streamOf map[string]string
	// applied counts offer candidates already applied per remote id.
	applied map[string]int
	// answered holds remote ids whose offer has been accepted.
	answered map[string]struct{}
}

// NewRelay creates a Relay.
func NewRelay(config RelayConfig) (*Relay, error) {
	if config.Media == nil {
		return nil, fmt.Errorf("transport: relay Media is required")
	}
	if config.Commands == nil {
		return nil, fmt.Errorf("transport: relay Commands is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		media:         config.Media,
		commands:      config.Commands,
		clock:         clk,
		logger:        logger,
		sources:       make(map[string]webrtc.TrackLocal),
		remoteToLocal: make(map[string]string),
		localToRemote: make(map[string]string),
		streamOf:      make(map[string]string),
		applied:       make(map[string]int),
		answered:      make(map[string]struct{}),
	}, nil
}

// Start subscribes to every WebRTCConnection record. Call again after
// each reconnect: the new subscription's first response has sequence
// 0 and resets the relay.
func (r *Relay) Start() error {
	query := catalog.NewGetWebRTCConnections()
	if err := r.commands.RegisterQuery(query, catalog.WebRTCConnection{}.ItemType(), r.HandleQueryResponse); err != nil {
		return fmt.Errorf("subscribing to connections: %w", err)
	}
	return nil
}

// RegisterSource makes a track available under a stream id.
func (r *Relay) RegisterSource(streamID string, track webrtc.TrackLocal) {
	r.sources[streamID] = track
}

// UnregisterSource withdraws a stream and closes every connection
// serving it.
func (r *Relay) UnregisterSource(streamID string) {
	delete(r.sources, streamID)
	for remoteID, stream := range r.streamOf {
		if stream == streamID {
			r.closeRemote(remoteID)
		}
	}
}

// HandleQueryResponse applies one response to the connections query.
// A response with sequence 0 is a fresh snapshot: every existing
// local connection is closed first. Deletes are applied before
// upserts.
func (r *Relay) HandleQueryResponse(response myko.QueryResponse) {
	if response.Sequence == 0 {
		r.CloseAll()
	}

	for _, remoteID := range response.Deletes {
		r.closeRemote(remoteID)
	}

	for _, wrapped := range response.Upserts {
		var connection catalog.WebRTCConnection
		if err := wrapped.Decode(&connection); err != nil {
			r.logger.Warn("skipping malformed connection record", "error", err)
			continue
		}
		if connection.ID == "" {
			r.logger.Warn("skipping connection record without id")
			continue
		}
		r.applyUpsert(connection)
	}
}

func (r *Relay) applyUpsert(connection catalog.WebRTCConnection) {
	remoteID := connection.ID
	track, ok := r.sources[connection.StreamID]
	if !ok {
		r.logger.Debug("connection requests a stream not served here",
			"remote_id", remoteID,
			"stream_id", connection.StreamID,
		)
		return
	}

	localID, ok := r.remoteToLocal[remoteID]
	if !ok {
		var err error
		localID, err = r.open(remoteID, connection.StreamID, track)
		if err != nil {
			r.logger.Warn("opening local connection failed",
				"remote_id", remoteID,
				"error", err,
			)
			return
		}
	}

	// Candidate lists only grow, so everything past the applied count
	// is new.
	candidates := connection.OfferCandidates
	for index := r.applied[remoteID]; index < len(candidates); index++ {
		if err := r.media.AddRemoteCandidate(localID, candidates[index]); err != nil {
			r.logger.Warn("applying remote candidate failed",
				"remote_id", remoteID,
				"local_id", localID,
				"error", err,
			)
		}
	}
	if len(candidates) > r.applied[remoteID] {
		r.applied[remoteID] = len(candidates)
	}

	if connection.SDPOffer == "" || connection.SDPAnswer != "" {
		return
	}
	if _, done := r.answered[remoteID]; done {
		return
	}
	if err := r.media.AcceptOffer(localID, connection.SDPOffer); err != nil {
		r.logger.Warn("accepting offer failed",
			"remote_id", remoteID,
			"local_id", localID,
			"error", err,
		)
		return
	}
	r.answered[remoteID] = struct{}{}
}

func (r *Relay) open(remoteID, streamID string, track webrtc.TrackLocal) (string, error) {
	localID, err := r.media.Open()
	if err != nil {
		return "", err
	}
	if track != nil {
		if err := r.media.AttachTrack(localID, track); err != nil {
			if closeErr := r.media.Close(localID); closeErr != nil {
				r.logger.Debug("closing half-open connection failed", "local_id", localID, "error", closeErr)
			}
			return "", err
		}
	}
	r.remoteToLocal[remoteID] = localID
	r.localToRemote[localID] = remoteID
	r.streamOf[remoteID] = streamID
	r.logger.Info("serving stream to remote peer",
		"remote_id", remoteID,
		"local_id", localID,
		"stream_id", streamID,
	)
	return localID, nil
}

// HandleLocalAnswer sends a local answer upstream as SetAnswer.
func (r *Relay) HandleLocalAnswer(localID, sdp string) {
	remoteID, ok := r.localToRemote[localID]
	if !ok {
		r.logger.Debug("answer for unknown local connection", "local_id", localID)
		return
	}
	command := catalog.SetAnswer{
		CommandBase: myko.NewCommandBase(clock.Timestamp(r.clock.Now())),
		ID:          remoteID,
		SDPAnswer:   sdp,
	}
	if err := r.commands.SendCommand(command); err != nil {
		r.logger.Warn("sending answer failed", "remote_id", remoteID, "error", err)
	}
}

// HandleLocalCandidate sends a gathered candidate upstream as
// AddAnswerCandidate.
func (r *Relay) HandleLocalCandidate(localID string, candidate catalog.IceCandidate) {
	remoteID, ok := r.localToRemote[localID]
	if !ok {
		r.logger.Debug("candidate for unknown local connection", "local_id", localID)
		return
	}
	command := catalog.AddAnswerCandidate{
		CommandBase: myko.NewCommandBase(clock.Timestamp(r.clock.Now())),
		ID:          remoteID,
		Candidate:   candidate,
	}
	if err := r.commands.SendCommand(command); err != nil {
		r.logger.Warn("sending answer candidate failed", "remote_id", remoteID, "error", err)
	}
}

// HandleLocalClosed forgets a connection the media layer closed.
func (r *Relay) HandleLocalClosed(localID string) {
	remoteID, ok := r.localToRemote[localID]
	if !ok {
		return
	}
	r.closeRemote(remoteID)
}

// CloseAll closes every local connection and clears all mappings.
// Registered sources are kept.
func (r *Relay) CloseAll() {
	for _, remoteID := range r.Remotes() {
		r.closeRemote(remoteID)
	}
	clear(r.remoteToLocal)
	clear(r.localToRemote)
	clear(r.streamOf)
	clear(r.applied)
	clear(r.answered)
}

func (r *Relay) closeRemote(remoteID string) {
	localID, ok := r.remoteToLocal[remoteID]
	delete(r.remoteToLocal, remoteID)
	delete(r.streamOf, remoteID)
	delete(r.applied, remoteID)
	delete(r.answered, remoteID)
	if !ok {
		return
	}
	delete(r.localToRemote, localID)
	if err := r.media.Close(localID); err != nil {
		r.logger.Warn("closing local connection failed",
			"remote_id", remoteID,
			"local_id", localID,
			"error", err,
		)
		return
	}
	r.logger.Info("closed local connection", "remote_id", remoteID, "local_id", localID)
}

// LocalFor returns the local connection serving a remote peer.
func (r *Relay) LocalFor(remoteID string) (string, bool) {
	localID, ok := r.remoteToLocal[remoteID]
	return localID, ok
}

// Remotes returns the remote ids with a local connection, sorted.
func (r *Relay) Remotes() []string {
	ids := make([]string, 0, len(r.remoteToLocal))
	for remoteID := range r.remoteToLocal {
		ids = append(ids, remoteID)
	}
	slices.Sort(ids)
	return ids
}
