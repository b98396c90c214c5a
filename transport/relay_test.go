// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/myko"
)

// fakeMedia records every MediaTransport call.
type fakeMedia struct {
	next       int
	open       map[string]bool
	attached   map[string]webrtc.TrackLocal
	candidates map[string][]catalog.IceCandidate
	offers     map[string][]string
	closed     []string
	openErr    error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		open:       make(map[string]bool),
		attached:   make(map[string]webrtc.TrackLocal),
		candidates: make(map[string][]catalog.IceCandidate),
		offers:     make(map[string][]string),
	}
}

func (m *fakeMedia) Open() (string, error) {
	if m.openErr != nil {
		return "", m.openErr
	}
	m.next++
	localID := fmt.Sprintf("local-%d", m.next)
	m.open[localID] = true
	return localID, nil
}

func (m *fakeMedia) AttachTrack(localID string, track webrtc.TrackLocal) error {
	if !m.open[localID] {
		return ErrUnknownConnection
	}
	m.attached[localID] = track
	return nil
}

func (m *fakeMedia) AddRemoteCandidate(localID string, candidate catalog.IceCandidate) error {
	if !m.open[localID] {
		return ErrUnknownConnection
	}
	m.candidates[localID] = append(m.candidates[localID], candidate)
	return nil
}

func (m *fakeMedia) AcceptOffer(localID string, sdp string) error {
	if !m.open[localID] {
		return ErrUnknownConnection
	}
	m.offers[localID] = append(m.offers[localID], sdp)
	return nil
}

func (m *fakeMedia) Close(localID string) error {
	if m.open[localID] {
		delete(m.open, localID)
		m.closed = append(m.closed, localID)
	}
	return nil
}

func (m *fakeMedia) Connections() []string {
	var ids []string
	for id := range m.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// fakeCommands records commands and query registrations.
type fakeCommands struct {
	commands []myko.Command
	queries  []myko.Query
	handlers []myko.QueryHandler
	types    []string
}

func (f *fakeCommands) SendCommand(command myko.Command) error {
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeCommands) RegisterQuery(query myko.Query, itemType string, handler myko.QueryHandler) error {
	f.queries = append(f.queries, query)
	f.types = append(f.types, itemType)
	f.handlers = append(f.handlers, handler)
	return nil
}

func newTestRelay(t *testing.T) (*Relay, *fakeMedia, *fakeCommands) {
	t.Helper()
	media := newFakeMedia()
	commands := &fakeCommands{}
	relay, err := NewRelay(RelayConfig{
		Media:    media,
		Commands: commands,
		Clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return relay, media, commands
}

func wrapConnection(t *testing.T, connection catalog.WebRTCConnection) myko.WrappedItem {
	t.Helper()
	data, err := json.Marshal(connection)
	if err != nil {
		t.Fatalf("marshal connection: %v", err)
	}
	return myko.WrappedItem{ItemType: connection.ItemType(), Item: data}
}

func TestRelayStartSubscribesToConnections(t *testing.T) {
	relay, _, commands := newTestRelay(t)
	if err := relay.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(commands.queries) != 1 {
		t.Fatalf("registered %d queries, want 1", len(commands.queries))
	}
	if commands.queries[0].QueryID() != catalog.QueryGetWebRTCConnections {
		t.Errorf("query id = %q", commands.queries[0].QueryID())
	}
	if commands.types[0] != "WebRTCConnection" {
		t.Errorf("item type = %q", commands.types[0])
	}
}

func TestRelayFullResyncTearsDown(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)
	relay.RegisterSource("stream-b", nil)

	relay.HandleQueryResponse(myko.QueryResponse{
		TX:       "tx",
		Sequence: 0,
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-old", StreamID: "stream-a"}),
		},
	})
	oldLocal, ok := relay.LocalFor("remote-old")
	if !ok {
		t.Fatal("no local connection for remote-old")
	}

	relay.HandleQueryResponse(myko.QueryResponse{
		TX:       "tx",
		Sequence: 0,
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-new", StreamID: "stream-b"}),
		},
	})

	if !slices.Equal(media.closed, []string{oldLocal}) {
		t.Errorf("closed = %v, want [%s]", media.closed, oldLocal)
	}
	if got := media.Connections(); len(got) != 1 {
		t.Fatalf("open connections = %v, want exactly one", got)
	}
	if _, ok := relay.LocalFor("remote-old"); ok {
		t.Error("remote-old still mapped after snapshot")
	}
	if !slices.Equal(relay.Remotes(), []string{"remote-new"}) {
		t.Errorf("Remotes = %v, want [remote-new]", relay.Remotes())
	}
}

func TestRelayIncrementalKeepsConnections(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)

	relay.HandleQueryResponse(myko.QueryResponse{
		Sequence: 0,
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-1", StreamID: "stream-a"}),
		},
	})
	relay.HandleQueryResponse(myko.QueryResponse{
		Sequence: 1,
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-2", StreamID: "stream-a"}),
		},
	})

	if len(media.closed) != 0 {
		t.Errorf("closed = %v, want none", media.closed)
	}
	if !slices.Equal(relay.Remotes(), []string{"remote-1", "remote-2"}) {
		t.Errorf("Remotes = %v", relay.Remotes())
	}
}

func TestRelaySkipsUnknownStream(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-1", StreamID: "elsewhere", SDPOffer: "v=0"}),
		},
	})
	if len(media.Connections()) != 0 {
		t.Errorf("opened %v for a stream not served here", media.Connections())
	}
}

func TestRelayBindsTrackAndAnswersOnce(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "stream-a")
	if err != nil {
		t.Fatalf("NewTrackLocalStaticSample: %v", err)
	}
	relay.RegisterSource("stream-a", track)

	connection := catalog.WebRTCConnection{
		ID:       "remote-1",
		StreamID: "stream-a",
		SDPOffer: "v=0 offer",
		OfferCandidates: []catalog.IceCandidate{
			{Candidate: "candidate:1", SDPMid: "0"},
		},
		AnswerCandidates: []catalog.IceCandidate{
			{Candidate: "candidate:answer"},
		},
	}
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{wrapConnection(t, connection)},
	})

	localID, ok := relay.LocalFor("remote-1")
	if !ok {
		t.Fatal("remote-1 not mapped")
	}
	if media.attached[localID] != track {
		t.Error("track not attached to the local connection")
	}
	if got := media.offers[localID]; !slices.Equal(got, []string{"v=0 offer"}) {
		t.Errorf("offers = %v", got)
	}

	// The server echoes the record with one more offer candidate.
	connection.OfferCandidates = append(connection.OfferCandidates,
		catalog.IceCandidate{Candidate: "candidate:2", SDPMid: "0"})
	relay.HandleQueryResponse(myko.QueryResponse{
		Sequence: 1,
		Upserts:  []myko.WrappedItem{wrapConnection(t, connection)},
	})

	if got := len(media.offers[localID]); got != 1 {
		t.Errorf("offer accepted %d times, want 1", got)
	}
	var applied []string
	for _, candidate := range media.candidates[localID] {
		applied = append(applied, candidate.Candidate)
	}
	if !slices.Equal(applied, []string{"candidate:1", "candidate:2"}) {
		t.Errorf("applied candidates = %v, want offer candidates once each", applied)
	}
}

func TestRelayDoesNotAnswerAnsweredRecord(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{
				ID: "remote-1", StreamID: "stream-a", SDPOffer: "offer", SDPAnswer: "answer",
			}),
		},
	})
	localID, _ := relay.LocalFor("remote-1")
	if len(media.offers[localID]) != 0 {
		t.Error("accepted an offer that already has an answer")
	}
}

func TestRelayDeleteClosesConnection(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-1", StreamID: "stream-a"}),
		},
	})
	localID, _ := relay.LocalFor("remote-1")

	relay.HandleQueryResponse(myko.QueryResponse{Sequence: 1, Deletes: []string{"remote-1", "never-seen"}})

	if !slices.Equal(media.closed, []string{localID}) {
		t.Errorf("closed = %v, want [%s]", media.closed, localID)
	}
	if len(relay.Remotes()) != 0 {
		t.Errorf("Remotes = %v after delete", relay.Remotes())
	}
}

func TestRelayLocalEventsTranslateToRemote(t *testing.T) {
	relay, media, commands := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-1", StreamID: "stream-a", SDPOffer: "offer"}),
		},
	})
	localID, _ := relay.LocalFor("remote-1")

	relay.HandleLocalAnswer(localID, "answer-sdp")
	relay.HandleLocalCandidate(localID, catalog.IceCandidate{Candidate: "candidate:local", SDPMLineIndex: 0})
	relay.HandleLocalAnswer("unknown-local", "ignored")

	if len(commands.commands) != 2 {
		t.Fatalf("sent %d commands, want 2", len(commands.commands))
	}
	answer, ok := commands.commands[0].(catalog.SetAnswer)
	if !ok {
		t.Fatalf("first command is %T, want SetAnswer", commands.commands[0])
	}
	if answer.ID != "remote-1" || answer.SDPAnswer != "answer-sdp" {
		t.Errorf("SetAnswer = %+v", answer)
	}
	if answer.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("createdAt = %q", answer.CreatedAt)
	}
	if answer.TX == "" {
		t.Error("SetAnswer has no tx")
	}
	candidate, ok := commands.commands[1].(catalog.AddAnswerCandidate)
	if !ok {
		t.Fatalf("second command is %T, want AddAnswerCandidate", commands.commands[1])
	}
	if candidate.ID != "remote-1" || candidate.Candidate.Candidate != "candidate:local" {
		t.Errorf("AddAnswerCandidate = %+v", candidate)
	}

	relay.HandleLocalClosed(localID)
	relay.HandleLocalClosed(localID)
	if _, ok := relay.LocalFor("remote-1"); ok {
		t.Error("remote-1 still mapped after local close")
	}
	if !slices.Equal(media.closed, []string{localID}) {
		t.Errorf("closed = %v, want one close", media.closed)
	}
}

func TestRelayUnregisterSourceClosesItsConnections(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	relay.RegisterSource("stream-a", nil)
	relay.RegisterSource("stream-b", nil)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-a", StreamID: "stream-a"}),
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-b", StreamID: "stream-b"}),
		},
	})

	relay.UnregisterSource("stream-a")

	if !slices.Equal(relay.Remotes(), []string{"remote-b"}) {
		t.Errorf("Remotes = %v, want [remote-b]", relay.Remotes())
	}
	if len(media.closed) != 1 {
		t.Errorf("closed = %v, want one", media.closed)
	}
}

func TestRelayOpenFailureIsSkipped(t *testing.T) {
	relay, media, _ := newTestRelay(t)
	media.openErr = fmt.Errorf("no interfaces")
	relay.RegisterSource("stream-a", nil)
	relay.HandleQueryResponse(myko.QueryResponse{
		Upserts: []myko.WrappedItem{
			wrapConnection(t, catalog.WebRTCConnection{ID: "remote-1", StreamID: "stream-a", SDPOffer: "offer"}),
			{ItemType: "WebRTCConnection", Item: json.RawMessage(`"not an object"`)},
		},
	})
	if len(relay.Remotes()) != 0 {
		t.Errorf("Remotes = %v, want none", relay.Remotes())
	}
}
