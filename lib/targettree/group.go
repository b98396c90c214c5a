// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"github.com/google/uuid"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

// GroupTarget is one page of a component. It carries no actions or
// emitters of its own; those belong to its leaves.
type GroupTarget struct {
	env       Env
	component Component
	page      Page
	baseID    string
	id        string
	leaves    []*LeafTarget
}

func newGroupTarget(env Env, component Component, page Page, baseID string) *GroupTarget {
	group := &GroupTarget{
		env:       env,
		component: component,
		page:      page,
		baseID:    baseID,
		id:        baseID + ":" + page.Name(),
	}
	group.buildLeaves()
	return group
}

func (g *GroupTarget) buildLeaves() {
	g.leaves = g.leaves[:0]
	for _, parameter := range g.page.Parameters() {
		g.leaves = append(g.leaves, newLeafTarget(g.env, g.component, parameter, g.baseID, g.id))
	}
}

func (g *GroupTarget) ID() string { return g.id }

func (g *GroupTarget) Target() catalog.Target {
	return catalog.Target{
		ID:            g.id,
		Name:          g.page.Name(),
		ParentTargets: []string{g.baseID},
		ServiceID:     g.env.ServiceID,
		Category:      "Page",
		FgColor:       catalog.DefaultForeground,
		BgColor:       catalog.DefaultBackground,
		LastUpdated:   g.env.now(),
	}
}

func (g *GroupTarget) Actions() []catalog.BoundAction { return nil }

func (g *GroupTarget) Emitters() []catalog.BoundEmitter { return nil }

func (g *GroupTarget) Children() []Node {
	children := make([]Node, len(g.leaves))
	for i, leaf := range g.leaves {
		children[i] = leaf
	}
	return children
}

func (g *GroupTarget) CollectChildren() []Node { return collect(g) }

// RegenerateID gives the page a random id and re-parents its leaves.
// Leaf ids derive from the base target, not the page, so they keep
// theirs.
func (g *GroupTarget) RegenerateID() string {
	g.id = g.baseID + ":" + uuid.NewString()
	g.buildLeaves()
	return g.id
}
