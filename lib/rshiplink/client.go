// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rshiplink is a client for the local link service, which
// tells the engine which machine it runs on and where the
// orchestration server is.
//
// The service exposes two GET endpoints returning a single text
// value each: the machine id and the server URL. The two are fetched
// independently; either may fail without affecting the other.
package rshiplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/rship-exec/lib/netutil"
)

// ErrEmptyValue is returned when an endpoint answers with an empty
// body.
var ErrEmptyValue = errors.New("rshiplink: empty response")

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the link service base URL (e.g. "http://localhost:5155").
	BaseURL string
	// MachineIDPath is the path of the machine id endpoint.
	MachineIDPath string
	// ServerURLPath is the path of the server URL endpoint.
	ServerURLPath string
	// Timeout bounds each request. Zero means no per-request bound
	// beyond the caller's context.
	Timeout time.Duration
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client fetches identity from the link service.
type Client struct {
	baseURL       string
	machineIDPath string
	serverURLPath string
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// Identity is the result of one fetch. Each half carries its own
// error; a failed half has an empty value.
type Identity struct {
	MachineID    string
	MachineIDErr error
	ServerURL    string
	ServerURLErr error
}

// NewClient creates a link service client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("rshiplink: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("rshiplink: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		machineIDPath: config.MachineIDPath,
		serverURLPath: config.ServerURLPath,
		timeout:       config.Timeout,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// Fetch requests both values. It never returns an error itself; check
// the per-half errors on the result.
func (c *Client) Fetch(ctx context.Context) Identity {
	var identity Identity
	identity.MachineID, identity.MachineIDErr = c.get(ctx, c.machineIDPath)
	identity.ServerURL, identity.ServerURLErr = c.get(ctx, c.serverURLPath)
	return identity
}

// RequestIdentity fetches in the background and hands the result to
// deliver. It returns immediately.
func (c *Client) RequestIdentity(ctx context.Context, deliver func(Identity)) {
	go func() {
		identity := c.Fetch(ctx)
		if identity.MachineIDErr != nil {
			c.logger.Debug("machine id request failed", "error", identity.MachineIDErr)
		}
		if identity.ServerURLErr != nil {
			c.logger.Debug("server url request failed", "error", identity.ServerURLErr)
		}
		deliver(identity)
	}()
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("rshiplink: building request for %s: %w", path, err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("rshiplink: GET %s: %w", path, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rshiplink: GET %s: status %d: %s",
			path, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	value, err := netutil.ReadText(response.Body)
	if err != nil {
		return "", fmt.Errorf("rshiplink: GET %s: %w", path, err)
	}
	if value == "" {
		return "", fmt.Errorf("rshiplink: GET %s: %w", path, ErrEmptyValue)
	}
	return value, nil
}
