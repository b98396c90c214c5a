// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncclient

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/myko"
	"github.com/bureau-foundation/rship-exec/transport"
)

// DefaultQueryCapacity bounds the outstanding query table when
// Config.QueryCapacity is zero.
const DefaultQueryCapacity = 256

// Sender writes one text frame to the server.
type Sender interface {
	SendText(text []byte) error
}

// Config holds configuration for creating a Client.
type Config struct {
	// Sender carries outbound frames. Required.
	Sender Sender
	// Clock stamps status records. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Registerer receives the client's metrics. If nil, they are
	// registered on a private registry.
	Registerer prometheus.Registerer
	// QueryCapacity bounds the outstanding query table.
	QueryCapacity int
}

type boundHandler struct {
	action catalog.BoundAction
	// schema is nil when the action has no schema or it failed to
	// compile.
	schema *gojsonschema.Schema
}

// Client is the sync protocol engine.
type Client struct {
	sender  Sender
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics

	handlers map[string]boundHandler
	emitters map[string]catalog.BoundEmitter
	queries  *lru.Cache[string, myko.QueryHandler]

	sentStatuses map[string]catalog.Status
	localTargets map[string]struct{}
	remoteKnown  map[string]struct{}
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.Sender == nil {
		return nil, fmt.Errorf("syncclient: Sender is required")
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

	capacity := config.QueryCapacity
	if capacity <= 0 {
		capacity = DefaultQueryCapacity
	}
	queries, err := lru.New[string, myko.QueryHandler](capacity)
	if err != nil {
		return nil, fmt.Errorf("syncclient: creating query table: %w", err)
	}

	return &Client{
		sender:       config.Sender,
		clock:        clk,
		logger:       logger,
		metrics:      newMetrics(registerer),
		handlers:     make(map[string]boundHandler),
		emitters:     make(map[string]catalog.BoundEmitter),
		queries:      queries,
		sentStatuses: make(map[string]catalog.Status),
		localTargets: make(map[string]struct{}),
		remoteKnown:  make(map[string]struct{}),
	}, nil
}

// set publishes one entity and reports whether the frame was written.
func (c *Client) set(item myko.Item) bool {
	text, err := myko.EncodeEvent(myko.ChangeSet, item)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonEncode).Inc()
		c.logger.Error("encoding event failed", "item_type", item.ItemType(), "error", err)
		return false
	}
	return c.send(text, item.ItemType())
}

func (c *Client) send(text []byte, kind string) bool {
	if err := c.sender.SendText(text); err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			c.metrics.dropped.WithLabelValues(reasonNotConnected).Inc()
			c.logger.Debug("not connected, message dropped", "kind", kind)
		} else {
			c.metrics.dropped.WithLabelValues(reasonSendFailed).Inc()
			c.logger.Warn("send failed, message dropped", "kind", kind, "error", err)
		}
		return false
	}
	c.metrics.sent.WithLabelValues(kind).Inc()
	return true
}

// PublishInstance sends the instance record.
func (c *Client) PublishInstance(instance catalog.Instance) {
	c.set(instance)
}

// PublishMachine sends the machine record.
func (c *Client) PublishMachine(machine catalog.Machine) {
	c.set(machine)
}

// PublishStream sends a stream record.
func (c *Client) PublishStream(stream catalog.Stream) {
	c.set(stream)
}

// SendCommand sends a command to the server.
func (c *Client) SendCommand(command myko.Command) error {
	text, err := myko.EncodeCommand(command)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonEncode).Inc()
		return err
	}
	if !c.send(text, command.CommandID()) {
		return fmt.Errorf("syncclient: command %s not sent", command.CommandID())
	}
	return nil
}

// RegisterQuery remembers handler under the query's tx and sends the
// query. Every response carrying that tx is passed to handler until
// the entry ages out of the bounded table.
func (c *Client) RegisterQuery(query myko.Query, itemType string, handler myko.QueryHandler) error {
	text, err := myko.EncodeQuery(query, itemType)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonEncode).Inc()
		return err
	}
	c.queries.Add(query.Tx(), handler)
	if !c.send(text, query.QueryID()) {
		return fmt.Errorf("syncclient: query %s not sent", query.QueryID())
	}
	return nil
}

// ResetSentStatuses forgets every sent status, so the next publish
// pass resends them. Called when the connection drops, since the
// server may have restarted.
func (c *Client) ResetSentStatuses() {
	clear(c.sentStatuses)
}

// LocalTargets returns the target ids from the last rebuild, sorted.
func (c *Client) LocalTargets() []string {
	return sortedKeys(c.localTargets)
}

// RemoteKnown returns the ids the server has reported for this
// service, sorted.
func (c *Client) RemoteKnown() []string {
	return sortedKeys(c.remoteKnown)
}

// HasHandler reports whether an action id is in the dispatch table.
func (c *Client) HasHandler(actionID string) bool {
	_, ok := c.handlers[actionID]
	return ok
}

// HasEmitter reports whether a change key is in the emitter table.
func (c *Client) HasEmitter(changeKey string) bool {
	_, ok := c.emitters[changeKey]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
