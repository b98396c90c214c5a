// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog defines the entities the engine publishes to the
// orchestration server and the commands and queries it exchanges
// with it.
//
// Every entity has an {id, name} identity pair. The id is the durable
// sync key: it must be stable across restarts and reconnections. The
// ItemType method of each entity names its server-side collection and
// is what [myko.EncodeEvent] writes into the "itemType" field.
//
// Entities here are the wire representation only. Actions and
// emitters also have a runtime representation, [BoundAction] and
// [BoundEmitter], which pair the wire entity with the local callback
// that serves it. Only the embedded wire entity is ever serialized.
package catalog
