// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/lib/rshiplink"
	"github.com/bureau-foundation/rship-exec/lib/targettree"
	"github.com/bureau-foundation/rship-exec/syncclient"
)

// State is the connection lifecycle state.
type State int

const (
	// StateUninitialized: no machine identity yet. Nothing is
	// published.
	StateUninitialized State = iota
	// StateReady: identity known, socket down.
	StateReady
	// StateConnected: identity known, socket up.
	StateConnected
	// StateSyncing: a resync pass is publishing local state.
	StateSyncing
)

var allStates = []State{StateUninitialized, StateReady, StateConnected, StateSyncing}

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	case StateSyncing:
		return "syncing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Connection is the socket as seen by the state machine.
type Connection interface {
	// Reconnect asks for a prompt redial. It must not block.
	Reconnect()
	// SetURL points the socket at a new server.
	SetURL(url string)
}

// IdentitySource resolves the machine id and server URL
// asynchronously.
type IdentitySource interface {
	RequestIdentity(ctx context.Context, deliver func(rshiplink.Identity))
}

// Host supplies the current target forest. Roots is called on every
// resync pass and must return freshly built nodes.
type Host interface {
	Roots() []targettree.Node
}

// MediaRelay is the signaling relay as seen by the state machine.
type MediaRelay interface {
	Start() error
	RegisterSource(streamID string, track webrtc.TrackLocal)
	UnregisterSource(streamID string)
	CloseAll()
}

// streamer is implemented by nodes that serve a video track.
type streamer interface {
	Stream(instanceID string) (catalog.Stream, webrtc.TrackLocal, bool)
}

// Config holds configuration for creating a Machine.
type Config struct {
	// Client is the sync engine. Required.
	Client *syncclient.Client
	// Connection is the socket. Required.
	Connection Connection
	// Host supplies targets. Required.
	Host Host
	// Identity resolves machine id and server URL. If nil, every Tick
	// applies the fallback identity.
	Identity IdentitySource
	// Relay serves streams. Optional.
	Relay MediaRelay
	// Post queues work onto the loop that drives this Machine.
	// Required when Identity is set.
	Post func(func()) bool

	ServiceID       string
	ServiceTypeCode string
	Color           string

	// FallbackMachineID is used when the link service cannot supply
	// one. Required.
	FallbackMachineID string
	// Hostname and MachineAddress describe this host in the Machine
	// record published under the fallback identity.
	Hostname       string
	MachineAddress string

	// Address is the server address in use before the link service
	// reports one.
	Address Address

	// Clock stamps heartbeats. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Registerer receives the state gauge. If nil, a private registry
	// is used.
	Registerer prometheus.Registerer
}

// Machine is the connection lifecycle state machine. It owns the
// sync client's resync passes and is not safe for concurrent use:
// every method must run on the same [Loop].
type Machine struct {
	client     *syncclient.Client
	connection Connection
	host       Host
	identity   IdentitySource
	relay      MediaRelay
	post       func(func()) bool
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics

	serviceID       string
	serviceTypeCode string
	color           string
	fallbackID      string
	hostname        string
	machineAddress  string

	state         State
	machineID     string
	usedFallback  bool
	address       Address
	transportUp   bool
	relayStarted  bool
	lastHeartbeat time.Time
	streams       map[string]struct{}
}

// New creates a Machine in StateUninitialized.
func New(config Config) (*Machine, error) {
	var errs []error
	if config.Client == nil {
		errs = append(errs, errors.New("client is required"))
	}
	if config.Connection == nil {
		errs = append(errs, errors.New("connection is required"))
	}
	if config.Host == nil {
		errs = append(errs, errors.New("host is required"))
	}
	if config.Identity != nil && config.Post == nil {
		errs = append(errs, errors.New("post is required with an identity source"))
	}
	if config.ServiceID == "" {
		errs = append(errs, errors.New("service id is required"))
	}
	if config.FallbackMachineID == "" {
		errs = append(errs, errors.New("fallback machine id is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("lifecycle: %w", errors.Join(errs...))
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registerer := config.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	machine := &Machine{
		client:          config.Client,
		connection:      config.Connection,
		host:            config.Host,
		identity:        config.Identity,
		relay:           config.Relay,
		post:            config.Post,
		clock:           clk,
		logger:          logger,
		metrics:         newMetrics(registerer),
		serviceID:       config.ServiceID,
		serviceTypeCode: config.ServiceTypeCode,
		color:           config.Color,
		fallbackID:      config.FallbackMachineID,
		hostname:        config.Hostname,
		machineAddress:  config.MachineAddress,
		address:         config.Address,
		streams:         make(map[string]struct{}),
	}
	machine.metrics.setState(StateUninitialized)
	return machine, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// MachineID returns the machine id in use, or "" before the first
// identity result.
func (m *Machine) MachineID() string { return m.machineID }

// Address returns the server address in use.
func (m *Machine) Address() Address { return m.address }

// LastHeartbeat returns when the last pong arrived.
func (m *Machine) LastHeartbeat() time.Time { return m.lastHeartbeat }

// InstanceID returns this instance's id, or "" before the first
// identity result.
func (m *Machine) InstanceID() string {
	if m.machineID == "" {
		return ""
	}
	return catalog.InstanceID(m.machineID, m.serviceID)
}

func (m *Machine) setState(state State) {
	if state == m.state {
		return
	}
	m.logger.Debug("lifecycle state change", "from", m.state.String(), "to", state.String())
	m.state = state
	m.metrics.setState(state)
}

// settledState is the state the machine rests in when not syncing.
func (m *Machine) settledState() State {
	switch {
	case m.machineID == "":
		return StateUninitialized
	case m.transportUp:
		return StateConnected
	default:
		return StateReady
	}
}

// Tick re-requests identity. Called periodically regardless of
// connection state, so an address change on the link service is
// noticed without a reconnect.
func (m *Machine) Tick(ctx context.Context) {
	if m.identity == nil {
		m.HandleIdentity(rshiplink.Identity{
			MachineIDErr: errors.New("no identity source"),
			ServerURLErr: errors.New("no identity source"),
		})
		return
	}
	m.identity.RequestIdentity(ctx, func(identity rshiplink.Identity) {
		m.post(func() { m.HandleIdentity(identity) })
	})
}

// HandleIdentity applies an identity result. A missing machine id is
// replaced by the fallback id; a missing or malformed server URL
// keeps the address in use. A result identical to the one already
// applied changes nothing.
func (m *Machine) HandleIdentity(identity rshiplink.Identity) {
	machineID := strings.TrimSpace(identity.MachineID)
	usedFallback := false
	if identity.MachineIDErr != nil || machineID == "" {
		machineID = m.fallbackID
		usedFallback = true
	}

	address := m.address
	addressChanged := false
	if identity.ServerURLErr == nil {
		var err error
		address, addressChanged, err = NormalizeAddress(identity.ServerURL, m.address)
		if err != nil {
			m.logger.Warn("ignoring malformed server URL", "url", identity.ServerURL, "error", err)
		}
	}

	first := m.machineID == ""
	idChanged := machineID != m.machineID
	if !first && !idChanged && !addressChanged {
		return
	}

	source := "link"
	if usedFallback {
		source = "fallback"
	}
	m.metrics.identityIDs.WithLabelValues(source).Inc()
	m.logger.Info("identity applied",
		"machine_id", machineID,
		"source", source,
		"server", address.URL(),
	)

	m.machineID = machineID
	m.usedFallback = usedFallback
	m.address = address
	m.setState(m.settledState())

	if idChanged && !first {
		// Statuses already sent belong to the previous instance.
		m.client.ResetSentStatuses()
	}

	if addressChanged {
		// The socket drops and redials; HandleConnected resyncs.
		m.connection.SetURL(address.URL())
		return
	}
	m.Refresh()
}

// HandleConnected records that the socket is up and resyncs.
func (m *Machine) HandleConnected() {
	m.transportUp = true
	m.relayStarted = false
	if m.machineID == "" {
		m.logger.Info("connected before identity resolved, waiting")
		return
	}
	m.setState(StateConnected)
	m.Refresh()
}

// HandleDisconnected records that the socket is down. The sent-status
// cache is cleared since the server may not have kept what it was
// sent.
func (m *Machine) HandleDisconnected() {
	m.transportUp = false
	m.relayStarted = false
	m.client.ResetSentStatuses()
	m.setState(m.settledState())
}

// HandleHeartbeat records a pong. A pong while the machine believes
// the socket is down means the socket recovered without reporting a
// connect, so it resyncs.
func (m *Machine) HandleHeartbeat() {
	m.lastHeartbeat = m.clock.Now()
	if m.state != StateReady {
		return
	}
	m.logger.Info("heartbeat while marked disconnected, resyncing")
	m.transportUp = true
	m.setState(StateConnected)
	m.Refresh()
}

// HandleText passes an inbound frame to the sync client. Frames that
// arrive before identity is known are dropped.
func (m *Machine) HandleText(text []byte) {
	if m.state == StateUninitialized {
		return
	}
	m.client.HandleText(text)
}

// Refresh runs a resync pass: publish the instance and the target
// tree, then, if connected, query the server's view of this
// service's targets. Local state always goes out before the query.
// When disconnected the query is skipped and a reconnect requested.
func (m *Machine) Refresh() {
	if m.state == StateUninitialized {
		return
	}
	m.metrics.refreshes.Inc()

	if !m.transportUp {
		m.publishLocal()
		m.connection.Reconnect()
		return
	}

	m.setState(StateSyncing)
	m.publishLocal()
	if err := m.client.QueryRemoteTargets(m.serviceID, m.InstanceID()); err != nil {
		m.logger.Warn("querying remote targets failed", "error", err)
	}
	if m.relay != nil && !m.relayStarted {
		if err := m.relay.Start(); err != nil {
			m.logger.Warn("subscribing to connections failed", "error", err)
		} else {
			m.relayStarted = true
		}
	}
	m.setState(m.settledState())
}

func (m *Machine) instance(status catalog.InstanceStatus) catalog.Instance {
	return catalog.Instance{
		ID:              m.InstanceID(),
		Name:            m.serviceID,
		ServiceID:       m.serviceID,
		ServiceTypeCode: m.serviceTypeCode,
		Status:          status,
		MachineID:       m.machineID,
		Color:           m.color,
	}
}

func (m *Machine) publishLocal() {
	instanceID := m.InstanceID()
	m.client.PublishInstance(m.instance(catalog.InstanceAvailable))
	if m.usedFallback {
		m.client.PublishMachine(catalog.NewMachine(m.machineID, m.hostname, m.machineAddress))
	}

	roots := m.host.Roots()
	m.client.PublishTargetTree(roots, instanceID)
	m.syncStreams(roots, instanceID)
}

// syncStreams publishes a Stream for every node with a track and
// hands the track to the relay. Streams from the previous pass that
// are gone are withdrawn.
func (m *Machine) syncStreams(roots []targettree.Node, instanceID string) {
	current := make(map[string]struct{})
	for _, root := range roots {
		for _, node := range root.CollectChildren() {
			source, ok := node.(streamer)
			if !ok {
				continue
			}
			stream, track, ok := source.Stream(instanceID)
			if !ok {
				continue
			}
			current[stream.ID] = struct{}{}
			m.client.PublishStream(stream)
			if m.relay != nil {
				m.relay.RegisterSource(stream.ID, track)
			}
		}
	}
	for streamID := range m.streams {
		if _, ok := current[streamID]; !ok && m.relay != nil {
			m.relay.UnregisterSource(streamID)
		}
	}
	m.streams = current
}

// Shutdown announces that the instance is stopping, marks every
// local target Offline and closes all media connections.
func (m *Machine) Shutdown() {
	if m.machineID != "" {
		m.client.PublishInstance(m.instance(catalog.InstanceStopping))
		m.client.MarkAllOffline(m.InstanceID())
	}
	if m.relay != nil {
		m.relay.CloseAll()
	}
	m.logger.Info("lifecycle shut down", "state", m.state.String())
}
