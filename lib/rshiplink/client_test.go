// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rshiplink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bureau-foundation/rship-exec/lib/testutil"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		BaseURL:       server.URL + "/",
		MachineIDPath: "/machine-id",
		ServerURLPath: "/rship-url",
		Timeout:       time.Second,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/machine-id", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "\"machine-42\"\n")
	})
	mux.HandleFunc("/rship-url", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ws://show-server:5155/")
	})
	client := newTestClient(t, mux)

	identity := client.Fetch(context.Background())
	if identity.MachineIDErr != nil || identity.MachineID != "machine-42" {
		t.Errorf("machine id = %q, %v", identity.MachineID, identity.MachineIDErr)
	}
	if identity.ServerURLErr != nil || identity.ServerURL != "ws://show-server:5155/" {
		t.Errorf("server url = %q, %v", identity.ServerURL, identity.ServerURLErr)
	}
}

func TestFetchHalvesFailIndependently(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/machine-id", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no machine registered", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/rship-url", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ws://show-server")
	})
	client := newTestClient(t, mux)

	identity := client.Fetch(context.Background())
	if identity.MachineIDErr == nil || identity.MachineID != "" {
		t.Errorf("machine id = %q, %v; want failure", identity.MachineID, identity.MachineIDErr)
	}
	if identity.ServerURL != "ws://show-server" {
		t.Errorf("server url = %q, %v", identity.ServerURL, identity.ServerURLErr)
	}
}

func TestFetchEmptyValue(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "  \n")
	}))

	identity := client.Fetch(context.Background())
	if !errors.Is(identity.MachineIDErr, ErrEmptyValue) {
		t.Errorf("MachineIDErr = %v, want ErrEmptyValue", identity.MachineIDErr)
	}
	if !errors.Is(identity.ServerURLErr, ErrEmptyValue) {
		t.Errorf("ServerURLErr = %v, want ErrEmptyValue", identity.ServerURLErr)
	}
}

func TestRequestIdentityDelivers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	}))

	results := make(chan Identity, 1)
	client.RequestIdentity(context.Background(), func(identity Identity) {
		results <- identity
	})

	identity := testutil.RequireReceive(t, results, 5*time.Second, "waiting for identity")
	if identity.MachineID != "/machine-id" || identity.ServerURL != "/rship-url" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("NewClient without BaseURL succeeded")
	}
}
