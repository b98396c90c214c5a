// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides small network I/O helpers shared by the
// socket transport and the link client.
//
// Response helpers (ReadText, ErrorBody) bound every body read at
// MaxResponseSize. The link service answers with a single short line
// (a machine id or a URL); anything larger is a misbehaving server.
//
// IsExpectedCloseError classifies errors produced by normal socket
// teardown so the transport can log them at debug level instead of as
// failures.
package netutil

import (
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize bounds response body reads from local HTTP
// collaborators.
const MaxResponseSize int64 = 64 << 10

// ReadText reads a response body up to MaxResponseSize bytes and
// returns it with surrounding whitespace and quotes removed. The link
// service may answer with a bare value or a JSON string literal.
func ReadText(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, `"`)
	text = strings.TrimSuffix(text, `"`)
	return text, nil
}

// ErrorBody reads an HTTP error response body for diagnostic messages.
// Read errors are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return strings.TrimSpace(string(data))
}
