// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

// LeafTarget is one parameter of a component.
type LeafTarget struct {
	env       Env
	component Component
	parameter Parameter
	parentID  string
	id        string
}

func newLeafTarget(env Env, component Component, parameter Parameter, baseID, parentID string) *LeafTarget {
	return &LeafTarget{
		env:       env,
		component: component,
		parameter: parameter,
		parentID:  parentID,
		id:        baseID + ":" + parameter.Name(),
	}
}

func (l *LeafTarget) ID() string { return l.id }

// ChangeKey returns the key the host uses to report changes to the
// parameter.
func (l *LeafTarget) ChangeKey() string {
	return ChangeKey(l.component.Path(), l.parameter.Name())
}

func (l *LeafTarget) Target() catalog.Target {
	return catalog.Target{
		ID:            l.id,
		Name:          l.parameter.Name(),
		ParentTargets: []string{l.parentID},
		ServiceID:     l.env.ServiceID,
		Category:      l.parameter.Style(),
		FgColor:       catalog.DefaultForeground,
		BgColor:       catalog.DefaultBackground,
		LastUpdated:   l.env.now(),
	}
}

func (l *LeafTarget) Actions() []catalog.BoundAction {
	var actions []catalog.BoundAction
	if schema := l.parameter.SchemaProperties(); schema != nil {
		actions = append(actions, catalog.BoundAction{
			Action: catalog.Action{
				ID:        l.id + ":set",
				Name:      "Set " + l.parameter.Label(),
				TargetID:  l.id,
				ServiceID: l.env.ServiceID,
				Schema:    objectSchema(schema),
			},
			Handler: l.handleSet,
		})
	}
	actions = append(actions, catalog.BoundAction{
		Action: catalog.Action{
			ID:        l.id + ":resend",
			Name:      "Resend " + l.parameter.Label(),
			TargetID:  l.id,
			ServiceID: l.env.ServiceID,
		},
		Handler: l.handleResend,
	})
	return actions
}

func (l *LeafTarget) handleSet(_ catalog.Action, data json.RawMessage) error {
	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("decoding set payload for %s: %w", l.id, err)
	}
	return l.parameter.Set(value)
}

func (l *LeafTarget) handleResend(catalog.Action, json.RawMessage) error {
	if l.env.Pulser != nil {
		l.env.Pulser.PulseEmitter(l.ChangeKey(), nil)
	}
	return nil
}

func (l *LeafTarget) Emitters() []catalog.BoundEmitter {
	return []catalog.BoundEmitter{{
		Emitter: catalog.Emitter{
			ID:        l.id + ":updated",
			Name:      l.parameter.Label() + " Updated",
			TargetID:  l.id,
			ServiceID: l.env.ServiceID,
			Schema:    objectSchema(l.parameter.SchemaProperties()),
		},
		ChangeKey: l.ChangeKey(),
		Handler: func(any) (any, error) {
			return l.parameter.Value()
		},
	}}
}

func (l *LeafTarget) Children() []Node { return nil }

func (l *LeafTarget) CollectChildren() []Node { return []Node{l} }

func (l *LeafTarget) RegenerateID() string {
	l.id = l.id + ":" + uuid.NewString()
	return l.id
}
