// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"

	"github.com/bureau-foundation/rship-exec/myko"
)

// Command ids.
const (
	CommandExecTargetAction   = "ExecTargetAction"
	CommandSetAnswer          = "SetAnswer"
	CommandAddAnswerCandidate = "AddAnswerCandidate"
)

// Query ids.
const (
	QueryGetTargetsByServiceID = "GetTargetsByServiceId"
	QueryGetWebRTCConnections  = "GetWebRTCConnections"
)

// ExecTargetAction is the inbound command asking the engine to run an
// action. Only Action.ID is used for dispatch; Data is passed to the
// handler undecoded.
type ExecTargetAction struct {
	myko.CommandBase
	Action struct {
		ID string `json:"id"`
	} `json:"action"`
	Data json.RawMessage `json:"data"`
}

func (ExecTargetAction) CommandID() string { return CommandExecTargetAction }

// SetAnswer publishes the local SDP answer for a remote connection.
type SetAnswer struct {
	myko.CommandBase
	ID        string `json:"id"`
	SDPAnswer string `json:"sdpAnswer"`
}

func (SetAnswer) CommandID() string { return CommandSetAnswer }

// AddAnswerCandidate appends a locally gathered ICE candidate to a
// remote connection.
type AddAnswerCandidate struct {
	myko.CommandBase
	ID        string       `json:"id"`
	Candidate IceCandidate `json:"candidate"`
}

func (AddAnswerCandidate) CommandID() string { return CommandAddAnswerCandidate }

// GetTargetsByServiceID asks for every target the server holds for a
// service, including targets left over from earlier runs.
type GetTargetsByServiceID struct {
	myko.QueryBase
	ServiceID string `json:"serviceId"`
}

func (GetTargetsByServiceID) QueryID() string { return QueryGetTargetsByServiceID }

// NewGetTargetsByServiceID returns the query with a fresh token.
func NewGetTargetsByServiceID(serviceID string) GetTargetsByServiceID {
	return GetTargetsByServiceID{QueryBase: myko.NewQueryBase(), ServiceID: serviceID}
}

// GetWebRTCConnections subscribes to every WebRTCConnection record.
type GetWebRTCConnections struct {
	myko.QueryBase
}

func (GetWebRTCConnections) QueryID() string { return QueryGetWebRTCConnections }

// NewGetWebRTCConnections returns the query with a fresh token.
func NewGetWebRTCConnections() GetWebRTCConnections {
	return GetWebRTCConnections{QueryBase: myko.NewQueryBase()}
}
