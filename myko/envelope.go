// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package myko

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event discriminants carried in the "event" field of every frame.
const (
	EventTypeEvent         = "ws:m:event"
	EventTypeQuery         = "ws:m:query"
	EventTypeCommand       = "ws:m:command"
	EventTypeQueryResponse = "ws:m:query-response"
)

// ChangeType is the kind of change an event applies to an entity.
type ChangeType string

const (
	ChangeSet    ChangeType = "SET"
	ChangeDelete ChangeType = "DEL"
)

// Item is an entity that can be published in an event. ItemType names
// the server-side collection, e.g. "Target" or "TargetStatus".
type Item interface {
	ItemType() string
}

// Query is a request for a set of entities. The server streams
// query-response frames carrying the same Tx back.
type Query interface {
	QueryID() string
	Tx() string
}

// Command is an instruction sent to the server.
type Command interface {
	CommandID() string
}

// QueryBase carries the correlation token of a query. Embed it in
// concrete query types.
type QueryBase struct {
	TX string `json:"tx"`
}

// NewQueryBase returns a QueryBase with a fresh token.
func NewQueryBase() QueryBase {
	return QueryBase{TX: NewTx()}
}

// Tx returns the correlation token.
func (q QueryBase) Tx() string { return q.TX }

// CommandBase carries the correlation token and creation time of a
// command. Embed it in concrete command types.
type CommandBase struct {
	TX        string `json:"tx"`
	CreatedAt string `json:"createdAt"`
}

// NewCommandBase returns a CommandBase with a fresh token.
func NewCommandBase(createdAt string) CommandBase {
	return CommandBase{TX: NewTx(), CreatedAt: createdAt}
}

// NewTx returns a fresh random correlation token.
func NewTx() string {
	return uuid.NewString()
}

// envelope is the outer shape of every outbound frame.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EventData is the payload of a ws:m:event frame.
type EventData struct {
	ChangeType ChangeType `json:"changeType"`
	Item       Item       `json:"item"`
	ItemType   string     `json:"itemType"`
}

// QueryData is the payload of a ws:m:query frame.
type QueryData struct {
	QueryID       string `json:"queryId"`
	QueryItemType string `json:"queryItemType"`
	Query         Query  `json:"query"`
}

// CommandData is the payload of an outbound ws:m:command frame.
type CommandData struct {
	CommandID string  `json:"commandId"`
	Command   Command `json:"command"`
}

// EncodeEvent encodes an entity change as a ws:m:event frame.
func EncodeEvent(change ChangeType, item Item) ([]byte, error) {
	if item == nil {
		return nil, fmt.Errorf("myko: encoding %s event: nil item", change)
	}
	data, err := json.Marshal(envelope{
		Event: EventTypeEvent,
		Data: EventData{
			ChangeType: change,
			Item:       item,
			ItemType:   item.ItemType(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("myko: encoding %s %s event: %w", change, item.ItemType(), err)
	}
	return data, nil
}

// EncodeQuery encodes a query for entities of itemType as a ws:m:query
// frame.
func EncodeQuery(query Query, itemType string) ([]byte, error) {
	if query.Tx() == "" {
		return nil, fmt.Errorf("myko: encoding query %s: %w", query.QueryID(), ErrMissingTx)
	}
	data, err := json.Marshal(envelope{
		Event: EventTypeQuery,
		Data: QueryData{
			QueryID:       query.QueryID(),
			QueryItemType: itemType,
			Query:         query,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("myko: encoding query %s: %w", query.QueryID(), err)
	}
	return data, nil
}

// EncodeCommand encodes a command as a ws:m:command frame.
func EncodeCommand(command Command) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Event: EventTypeCommand,
		Data: CommandData{
			CommandID: command.CommandID(),
			Command:   command,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("myko: encoding command %s: %w", command.CommandID(), err)
	}
	return data, nil
}
