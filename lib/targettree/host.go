// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/clock"
)

// Component is a controllable host object.
type Component interface {
	// Path is the host's stable address for the component. It keys
	// the component's stored id and prefixes its change keys.
	Path() string
	Name() string
	// Kind classifies the component; it becomes the base target's
	// category.
	Kind() string
	Pages() []Page
}

// Toggler is implemented by components that can be switched on and
// off as a whole.
type Toggler interface {
	SetEnabled(enabled bool) error
}

// BulkCompleter is implemented by components that want a notification
// after a bulk_set has applied all its values.
type BulkCompleter interface {
	BulkComplete() error
}

// MediaSource is implemented by components that can serve a live
// video track.
type MediaSource interface {
	MediaTrack() webrtc.TrackLocal
}

// Page is a named group of parameters on a component.
type Page interface {
	Name() string
	Parameters() []Parameter
}

// Parameter is one host value.
type Parameter interface {
	Name() string
	Label() string
	// Style is the host's shape name for the value, e.g. "Float" or
	// "RGB". It becomes the leaf target's category.
	Style() string
	// SchemaProperties returns the JSON schema "properties" object
	// describing the value, or nil when the value cannot be set
	// remotely.
	SchemaProperties() map[string]any
	// Value returns the current value in the shape SchemaProperties
	// describes.
	Value() (any, error)
	// Set applies a value. It returns catalog.ErrHandlerGone when the
	// parameter no longer exists on the host.
	Set(data map[string]any) error
}

// IDStore persists base target ids across restarts.
type IDStore interface {
	Get(key string) (string, bool)
	Put(key, id string) error
}

// Pulser pushes an emitter's current value. The sync client
// implements it.
type Pulser interface {
	PulseEmitter(changeKey string, value any)
}

// Env carries what every node needs to describe itself.
type Env struct {
	ServiceID string
	Store     IDStore
	Pulser    Pulser
	Clock     clock.Clock
	Logger    *slog.Logger
}

func (env Env) now() string {
	return clock.Timestamp(env.Clock.Now())
}

// ChangeKey returns the change key for a parameter on a component.
func ChangeKey(componentPath, parameterName string) string {
	return componentPath + "." + parameterName
}

func objectSchema(properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}
