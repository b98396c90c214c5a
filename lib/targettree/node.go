// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package targettree

import (
	"log/slog"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
)

// Node is one target in the tree.
type Node interface {
	ID() string
	Target() catalog.Target
	Actions() []catalog.BoundAction
	Emitters() []catalog.BoundEmitter
	// Children returns the direct children.
	Children() []Node
	// CollectChildren returns the node followed by all its
	// descendants, depth-first.
	CollectChildren() []Node
	// RegenerateID assigns a fresh id to the node, rebuilding any
	// children whose ids derive from it, and returns the new id.
	RegenerateID() string
}

func collect(node Node) []Node {
	nodes := []Node{node}
	for _, child := range node.Children() {
		nodes = append(nodes, child.CollectChildren()...)
	}
	return nodes
}

// Flatten returns every node of the forest, depth-first in root
// order. A node whose id was already produced earlier in the same
// pass gets a fresh id before its children are visited, and the
// change is logged at warn level.
func Flatten(roots []Node, logger *slog.Logger) []Node {
	seen := make(map[string]bool)
	var nodes []Node
	var visit func(Node)
	visit = func(node Node) {
		id := node.ID()
		if seen[id] {
			newID := node.RegenerateID()
			logger.Warn("duplicate target id, regenerated",
				"old_id", id,
				"new_id", newID,
			)
			id = newID
		}
		seen[id] = true
		nodes = append(nodes, node)
		for _, child := range node.Children() {
			visit(child)
		}
	}
	for _, root := range roots {
		visit(root)
	}
	return nodes
}
