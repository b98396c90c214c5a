// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is used when a server URL names no port.
const DefaultPort = 5155

// ErrNoAddress is returned for an empty server URL.
var ErrNoAddress = errors.New("lifecycle: no server address")

// Address is a normalized server location. Any path on the source URL
// is discarded.
type Address struct {
	Scheme string
	Host   string
	Port   int
}

// URL returns the WebSocket URL for the address.
func (a Address) URL() string {
	return a.Scheme + "://" + net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == Address{} }

// ParseServerAddress parses "scheme://host[:port][/path]".
func ParseServerAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, ErrNoAddress
	}
	if !strings.Contains(raw, "://") {
		return Address{}, fmt.Errorf("lifecycle: server address %q has no scheme", raw)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("lifecycle: parsing server address: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return Address{}, fmt.Errorf("lifecycle: server address %q has no host", raw)
	}

	port := DefaultPort
	if text := parsed.Port(); text != "" {
		port, err = strconv.Atoi(text)
		if err != nil || port <= 0 || port > 65535 {
			return Address{}, fmt.Errorf("lifecycle: server address %q has invalid port %q", raw, text)
		}
	}

	return Address{Scheme: parsed.Scheme, Host: host, Port: port}, nil
}

// NormalizeAddress resolves a server URL reported by the link service
// against the address in use. Empty input keeps previous and reports
// no change. A malformed URL also keeps previous and returns the parse
// error.
func NormalizeAddress(raw string, previous Address) (next Address, changed bool, err error) {
	if strings.TrimSpace(raw) == "" {
		return previous, false, nil
	}
	parsed, err := ParseServerAddress(raw)
	if err != nil {
		return previous, false, err
	}
	return parsed, parsed != previous, nil
}
