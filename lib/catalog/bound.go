// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"errors"
)

// ErrHandlerGone is returned by an action handler whose backing host
// value no longer exists. The dispatcher removes the handler from its
// table instead of treating the call as a failure.
var ErrHandlerGone = errors.New("catalog: handler target no longer exists")

// ActionHandler runs an action with the raw command payload.
type ActionHandler func(action Action, data json.RawMessage) error

// EmitterHandler returns the data to pulse for an emitter. changed is
// the value the host reported with the change notification, or nil
// when the engine itself asks for a resend. A nil result means there
// is nothing to pulse.
type EmitterHandler func(changed any) (any, error)

// BoundAction pairs an Action with the handler that serves it.
type BoundAction struct {
	Action
	Handler ActionHandler `json:"-"`
}

// BoundEmitter pairs an Emitter with the handler that produces its
// data and the change key the host uses to report changes to the
// underlying value.
type BoundEmitter struct {
	Emitter
	ChangeKey string         `json:"-"`
	Handler   EmitterHandler `json:"-"`
}
