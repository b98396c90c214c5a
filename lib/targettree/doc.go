// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package targettree adapts a host's controllable components into the
// target hierarchy published to the orchestration server.
//
// A host exposes [Component] values, each with named [Page] groups of
// [Parameter] values. The tree has three node kinds, all satisfying
// [Node]:
//
//   - [BaseTarget]: one per component, root level, with a durable id
//     kept in an [IDStore] under the component's path. Actions:
//     bulk_set, plus enable/disable when the component is a [Toggler].
//   - [GroupTarget]: one per page, id "<base>:<page>". Structural only.
//   - [LeafTarget]: one per parameter, id "<base>:<parameter>", parent
//     the page. Actions: set (when the parameter has a schema) and
//     resend. Emitter: updated, keyed by the change key
//     "<component path>.<parameter>".
//
// [Flatten] walks a forest depth-first, regenerating the id of any
// node whose id was already seen in the same pass.
package targettree
