// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for local state files.
//
// The engine has two serialization boundaries. Everything that crosses
// the socket to the server is JSON, because the server's message
// shapes are fixed (see package myko). Everything the engine keeps on
// local disk, such as the stored target identifiers in lib/idstore, is
// CBOR encoded with Core Deterministic Encoding (RFC 8949 §4.2): the
// same logical data always produces identical bytes, so unchanged
// snapshots can be detected and skipped.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
