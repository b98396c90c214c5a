// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

// BaseTarget is the root target for one component.
type BaseTarget struct {
	env       Env
	component Component
	id        string
	pages     []*GroupTarget
}

// NewBaseTarget builds the subtree for a component. The id is read
// from env.Store under the component's path; a fresh one is generated
// and stored when none exists.
func NewBaseTarget(env Env, component Component) *BaseTarget {
	base := &BaseTarget{env: env, component: component}
	id, ok := env.Store.Get(component.Path())
	if !ok || id == "" {
		id = base.storeNewID()
	}
	base.id = id
	base.buildPages()
	return base
}

func (b *BaseTarget) storeNewID() string {
	id := uuid.NewString()
	if err := b.env.Store.Put(b.component.Path(), id); err != nil {
		b.env.Logger.Warn("storing target id failed",
			"path", b.component.Path(),
			"error", err,
		)
	}
	return id
}

func (b *BaseTarget) buildPages() {
	b.pages = b.pages[:0]
	for _, page := range b.component.Pages() {
		b.pages = append(b.pages, newGroupTarget(b.env, b.component, page, b.id))
	}
}

// Component returns the host component the target describes.
func (b *BaseTarget) Component() Component { return b.component }

func (b *BaseTarget) ID() string { return b.id }

func (b *BaseTarget) Target() catalog.Target {
	return catalog.Target{
		ID:            b.id,
		Name:          b.component.Name(),
		ParentTargets: []string{},
		ServiceID:     b.env.ServiceID,
		Category:      b.component.Kind(),
		FgColor:       catalog.DefaultForeground,
		BgColor:       catalog.DefaultBackground,
		LastUpdated:   b.env.now(),
		RootLevel:     true,
	}
}

func (b *BaseTarget) Actions() []catalog.BoundAction {
	actions := []catalog.BoundAction{b.bulkSetAction()}
	if toggler, ok := b.component.(Toggler); ok {
		actions = append(actions,
			b.toggleAction("enable", "Enable", toggler, true),
			b.toggleAction("disable", "Disable", toggler, false),
		)
	}
	return actions
}

func (b *BaseTarget) Emitters() []catalog.BoundEmitter { return nil }

func (b *BaseTarget) Children() []Node {
	children := make([]Node, len(b.pages))
	for i, page := range b.pages {
		children[i] = page
	}
	return children
}

func (b *BaseTarget) CollectChildren() []Node { return collect(b) }

// RegenerateID replaces the stored id and rebuilds every page and
// leaf under the new id.
func (b *BaseTarget) RegenerateID() string {
	b.id = b.storeNewID()
	b.buildPages()
	return b.id
}

// Stream returns the stream record and track for a component that is
// a [MediaSource]. ok is false for any other component.
func (b *BaseTarget) Stream(instanceID string) (stream catalog.Stream, track webrtc.TrackLocal, ok bool) {
	source, isSource := b.component.(MediaSource)
	if !isSource {
		return catalog.Stream{}, nil, false
	}
	track = source.MediaTrack()
	if track == nil {
		return catalog.Stream{}, nil, false
	}
	return catalog.NewStream(b.id, instanceID, b.component.Path()), track, true
}

func (b *BaseTarget) leaves() []*LeafTarget {
	var leaves []*LeafTarget
	for _, page := range b.pages {
		leaves = append(leaves, page.leaves...)
	}
	return leaves
}

func (b *BaseTarget) bulkSetAction() catalog.BoundAction {
	properties := make(map[string]any)
	for _, leaf := range b.leaves() {
		if schema := leaf.parameter.SchemaProperties(); schema != nil {
			properties[leaf.parameter.Name()] = objectSchema(schema)
		}
	}
	return catalog.BoundAction{
		Action: catalog.Action{
			ID:        b.id + ":bulk_set",
			Name:      "Bulk Set",
			TargetID:  b.id,
			ServiceID: b.env.ServiceID,
			Schema:    objectSchema(properties),
		},
		Handler: b.handleBulkSet,
	}
}

// handleBulkSet applies every present value to the parameter of the
// same name. Parameters that have disappeared are skipped; other
// failures are collected and returned after all values are applied.
func (b *BaseTarget) handleBulkSet(_ catalog.Action, data json.RawMessage) error {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding bulk set payload: %w", err)
	}
	var errs []error
	for _, leaf := range b.leaves() {
		raw, present := values[leaf.parameter.Name()]
		if !present || string(raw) == "null" {
			continue
		}
		var value map[string]any
		if err := json.Unmarshal(raw, &value); err != nil {
			errs = append(errs, fmt.Errorf("parameter %s: %w", leaf.parameter.Name(), err))
			continue
		}
		err := leaf.parameter.Set(value)
		if errors.Is(err, catalog.ErrHandlerGone) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("parameter %s: %w", leaf.parameter.Name(), err))
		}
	}
	if completer, ok := b.component.(BulkCompleter); ok {
		if err := completer.BulkComplete(); err != nil {
			errs = append(errs, fmt.Errorf("bulk complete: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (b *BaseTarget) toggleAction(suffix, name string, toggler Toggler, enabled bool) catalog.BoundAction {
	return catalog.BoundAction{
		Action: catalog.Action{
			ID:        b.id + ":" + suffix,
			Name:      name,
			TargetID:  b.id,
			ServiceID: b.env.ServiceID,
		},
		Handler: func(catalog.Action, json.RawMessage) error {
			return toggler.SetEnabled(enabled)
		},
	}
}
