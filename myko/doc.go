// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package myko implements the JSON message protocol spoken with the
// orchestration server over the engine's WebSocket.
//
// Every frame is a JSON object with an "event" discriminant and a
// "data" payload. The engine sends three kinds:
//
//   - ws:m:event    entity publish: {changeType, item, itemType}
//   - ws:m:query    {queryId, queryItemType, query: {tx, ...fields}}
//   - ws:m:command  {commandId, command: {tx, createdAt, ...fields}}
//
// and receives two:
//
//   - ws:m:command         the same shape, dispatched by commandId
//   - ws:m:query-response  {tx, upserts: [{itemType, item}], deletes, sequence}
//
// The field names are the compatibility surface with the server and
// must not change. Outbound encoding is done by [EncodeEvent],
// [EncodeQuery] and [EncodeCommand]; inbound frames go through
// [Decode] and then [DecodeCommand] or [DecodeQueryResponse] depending
// on the discriminant.
//
// Queries and commands carry a "tx" correlation token. Concrete query
// and command types embed [QueryBase] or [CommandBase] so the token and
// creation time serialize alongside their own fields.
package myko
