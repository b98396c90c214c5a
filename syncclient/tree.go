// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syncclient

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/bureau-foundation/rship-exec/lib/catalog"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/lib/targettree"
	"github.com/bureau-foundation/rship-exec/myko"
)

// PublishTargetTree flattens the forest, publishes every target with
// its actions and emitters, and replaces the handler and emitter
// tables with the ones this pass produced. A target reported Online
// earlier keeps its cached status and is not resent. Targets from the
// previous pass that are missing from this one are marked Offline.
func (c *Client) PublishTargetTree(roots []targettree.Node, instanceID string) {
	nodes := targettree.Flatten(roots, c.logger)

	handlers := make(map[string]boundHandler)
	emitters := make(map[string]catalog.BoundEmitter)
	local := make(map[string]struct{}, len(nodes))

	for _, node := range nodes {
		target := node.Target()
		local[target.ID] = struct{}{}
		c.set(target)

		for _, action := range node.Actions() {
			handlers[action.ID] = boundHandler{
				action: action,
				schema: c.compileSchema(action.Action),
			}
			// Only the wire half leaves the process.
			c.set(action.Action)
		}

		for _, emitter := range node.Emitters() {
			emitters[emitter.ChangeKey] = emitter
			c.set(emitter.Emitter)
		}

		c.setStatus(target.ID, instanceID, catalog.StatusOnline)
	}

	var removed []string
	for id := range c.localTargets {
		if _, ok := local[id]; !ok {
			removed = append(removed, id)
		}
	}

	c.handlers = handlers
	c.emitters = emitters
	c.localTargets = local

	if len(removed) > 0 {
		c.logger.Info("targets removed since last pass", "count", len(removed))
		c.MarkOffline(removed, instanceID)
	}
}

// MarkOffline publishes an Offline status for each id whose cached
// status is not already Offline.
func (c *Client) MarkOffline(ids []string, instanceID string) {
	for _, id := range ids {
		c.setStatus(id, instanceID, catalog.StatusOffline)
	}
}

// MarkAllOffline marks every target from the last rebuild Offline.
func (c *Client) MarkAllOffline(instanceID string) {
	c.MarkOffline(c.LocalTargets(), instanceID)
}

// ReconcileRemote folds one query response for this service's targets
// into the remote-known set. Any upserted id that is not a local
// target is a leftover from an earlier run and is marked Offline.
// Only the ids in this response are considered; ids known from
// earlier responses are left alone.
func (c *Client) ReconcileRemote(upserts []myko.WrappedItem, deletes []string, instanceID string) {
	for _, id := range deletes {
		delete(c.remoteKnown, id)
	}

	var stale []string
	for _, upsert := range upserts {
		id := upsert.ID()
		if id == "" {
			continue
		}
		c.remoteKnown[id] = struct{}{}
		if _, local := c.localTargets[id]; !local {
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		c.logger.Debug("remote targets not served locally", "count", len(stale))
		c.MarkOffline(stale, instanceID)
	}
}

// QueryRemoteTargets asks the server for every target it holds for
// serviceID and reconciles each response against the local set.
func (c *Client) QueryRemoteTargets(serviceID, instanceID string) error {
	query := catalog.NewGetTargetsByServiceID(serviceID)
	return c.RegisterQuery(query, catalog.Target{}.ItemType(), func(response myko.QueryResponse) {
		c.ReconcileRemote(response.Upserts, response.Deletes, instanceID)
	})
}

// setStatus sends a status unless the cache already holds it. The
// cache is updated only when the frame was written.
func (c *Client) setStatus(targetID, instanceID string, status catalog.Status) {
	if cached, ok := c.sentStatuses[targetID]; ok && cached == status {
		c.metrics.suppressed.Inc()
		return
	}
	record := catalog.NewTargetStatus(targetID, instanceID, status, clock.Timestamp(c.clock.Now()))
	if c.set(record) {
		c.sentStatuses[targetID] = status
	}
}

func (c *Client) compileSchema(action catalog.Action) *gojsonschema.Schema {
	if action.Schema == nil {
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(action.Schema))
	if err != nil {
		c.logger.Debug("action schema not compilable, payloads will not be validated",
			"action_id", action.ID,
			"error", err,
		)
		return nil
	}
	return schema
}
