// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncclient

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/myko"
)

// HandleText processes one inbound text frame. Malformed frames and
// frames nobody handles are logged and dropped.
func (c *Client) HandleText(text []byte) {
	message, err := myko.Decode(text)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonMalformed).Inc()
		c.logger.Warn("dropping malformed frame", "error", err, "size", len(text))
		return
	}

	switch message.Event {
	case myko.EventTypeCommand:
		c.DispatchCommand(message.Data)
	case myko.EventTypeQueryResponse:
		c.DispatchQueryResponse(message.Data)
	default:
		c.logger.Debug("ignoring frame", "event", message.Event, "error", myko.ErrUnknownEvent)
	}
}

// DispatchCommand runs the handler for an inbound ExecTargetAction.
// Commands for unknown actions are dropped: the action's node may have
// gone away since the server saw it. A handler returning
// catalog.ErrHandlerGone is removed from the table.
func (c *Client) DispatchCommand(data json.RawMessage) {
	inbound, err := myko.DecodeCommand(data)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonMalformed).Inc()
		c.logger.Warn("dropping malformed command", "error", err)
		return
	}
	if inbound.CommandID != catalog.CommandExecTargetAction {
		c.metrics.dropped.WithLabelValues(reasonUnknown).Inc()
		c.logger.Warn("dropping unknown command", "command_id", inbound.CommandID)
		return
	}

	var command catalog.ExecTargetAction
	if err := json.Unmarshal(inbound.Command, &command); err != nil {
		c.metrics.dropped.WithLabelValues(reasonMalformed).Inc()
		c.logger.Warn("dropping malformed action command", "error", err)
		return
	}

	actionID := command.Action.ID
	bound, ok := c.handlers[actionID]
	if !ok || bound.action.Handler == nil {
		c.metrics.dropped.WithLabelValues(reasonNoHandler).Inc()
		c.logger.Warn("no handler for action", "action_id", actionID)
		return
	}

	if bound.schema != nil {
		if problem := validate(bound.schema, command.Data); problem != "" {
			c.metrics.commands.WithLabelValues(resultInvalid).Inc()
			c.logger.Warn("action payload does not match schema",
				"action_id", actionID,
				"problem", problem,
			)
			return
		}
	}

	err = bound.action.Handler(bound.action.Action, command.Data)
	switch {
	case errors.Is(err, catalog.ErrHandlerGone):
		delete(c.handlers, actionID)
		c.metrics.commands.WithLabelValues(resultGone).Inc()
		c.logger.Info("removed handler for vanished target", "action_id", actionID)
	case err != nil:
		c.metrics.commands.WithLabelValues(resultError).Inc()
		c.logger.Warn("action handler failed", "action_id", actionID, "error", err)
	default:
		c.metrics.commands.WithLabelValues(resultOK).Inc()
	}
}

// validate returns a description of why data does not satisfy schema,
// or "" when it does.
func validate(schema *gojsonschema.Schema, data json.RawMessage) string {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err.Error()
	}
	if result.Valid() {
		return ""
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, problem := range result.Errors() {
		problems = append(problems, problem.String())
	}
	return strings.Join(problems, "; ")
}

// DispatchQueryResponse passes a response to the handler registered
// for its tx. Responses with no registered handler are dropped
// silently: the query was superseded or aged out.
func (c *Client) DispatchQueryResponse(data json.RawMessage) {
	response, err := myko.DecodeQueryResponse(data)
	if err != nil {
		c.metrics.dropped.WithLabelValues(reasonMalformed).Inc()
		c.logger.Warn("dropping malformed query response", "error", err)
		return
	}
	handler, ok := c.queries.Get(response.TX)
	if !ok {
		c.metrics.dropped.WithLabelValues(reasonNoQuery).Inc()
		c.logger.Debug("no query for response", "tx", response.TX)
		return
	}
	handler(response)
}

// PulseEmitter publishes the current value of the emitter observing
// changeKey. Unknown keys and handlers with nothing to report are
// no-ops. value is passed through to the emitter's handler.
func (c *Client) PulseEmitter(changeKey string, value any) {
	emitter, ok := c.emitters[changeKey]
	if !ok || emitter.Handler == nil {
		c.logger.Debug("no emitter for change key", "change_key", changeKey)
		return
	}

	data, err := emitter.Handler(value)
	if errors.Is(err, catalog.ErrHandlerGone) {
		delete(c.emitters, changeKey)
		c.logger.Info("removed emitter for vanished target", "emitter_id", emitter.ID)
		return
	}
	if err != nil {
		c.logger.Warn("emitter handler failed", "emitter_id", emitter.ID, "error", err)
		return
	}
	if data == nil {
		return
	}

	c.set(catalog.Pulse{
		ID:        emitter.ID,
		Name:      "Pulse",
		EmitterID: emitter.ID,
		Data:      data,
		Hash:      uuid.NewString(),
	})
}
