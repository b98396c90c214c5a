// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package myko

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingEvent is returned for a frame without an "event"
	// discriminant.
	ErrMissingEvent = errors.New("myko: frame has no event discriminant")

	// ErrUnknownEvent is returned by consumers for a discriminant they
	// do not handle.
	ErrUnknownEvent = errors.New("myko: unknown event")

	// ErrMissingTx is returned for a query or query response without a
	// correlation token.
	ErrMissingTx = errors.New("myko: missing tx")

	// ErrMissingCommandID is returned for a command frame without a
	// commandId.
	ErrMissingCommandID = errors.New("myko: command has no commandId")
)

// Message is a decoded inbound frame. Data is left raw until the
// discriminant has selected a payload type.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundCommand is the payload of an inbound ws:m:command frame.
type InboundCommand struct {
	CommandID string          `json:"commandId"`
	Command   json.RawMessage `json:"command"`
}

// WrappedItem is one upsert in a query response.
type WrappedItem struct {
	ItemType string          `json:"itemType"`
	Item     json.RawMessage `json:"item"`
}

// ID returns the "id" field of the wrapped item, or "" when the item
// has none or is not an object.
func (w WrappedItem) ID() string {
	var identity struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Item, &identity); err != nil {
		return ""
	}
	return identity.ID
}

// Decode unmarshals the wrapped item into v.
func (w WrappedItem) Decode(v any) error {
	if err := json.Unmarshal(w.Item, v); err != nil {
		return fmt.Errorf("myko: decoding %s item: %w", w.ItemType, err)
	}
	return nil
}

// QueryResponse is the payload of a ws:m:query-response frame. A
// Sequence of 0 marks a fresh snapshot; later sequences are
// incremental updates to the same query.
type QueryResponse struct {
	TX       string        `json:"tx"`
	Upserts  []WrappedItem `json:"upserts"`
	Deletes  []string      `json:"deletes"`
	Sequence int           `json:"sequence"`
}

// QueryHandler receives every response to one query.
type QueryHandler func(response QueryResponse)

// Decode parses an inbound text frame.
func Decode(text []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(text, &message); err != nil {
		return Message{}, fmt.Errorf("myko: decoding frame: %w", err)
	}
	if message.Event == "" {
		return Message{}, ErrMissingEvent
	}
	return message, nil
}

// DecodeCommand parses the data of a ws:m:command frame.
func DecodeCommand(data json.RawMessage) (InboundCommand, error) {
	var command InboundCommand
	if err := json.Unmarshal(data, &command); err != nil {
		return InboundCommand{}, fmt.Errorf("myko: decoding command: %w", err)
	}
	if command.CommandID == "" {
		return InboundCommand{}, ErrMissingCommandID
	}
	return command, nil
}

// DecodeQueryResponse parses the data of a ws:m:query-response frame.
func DecodeQueryResponse(data json.RawMessage) (QueryResponse, error) {
	var response QueryResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return QueryResponse{}, fmt.Errorf("myko: decoding query response: %w", err)
	}
	if response.TX == "" {
		return QueryResponse{}, ErrMissingTx
	}
	return response, nil
}
