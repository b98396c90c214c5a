// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/lib/netutil"
)

const (
	// maxFrameSize bounds one inbound frame. Query snapshots for a
	// large project are the biggest frames the server sends.
	maxFrameSize = 16 << 20

	writeWait = 10 * time.Second

	defaultPingInterval     = 15 * time.Second
	defaultReconnectBackoff = 2 * time.Second
)

// SocketHandler receives socket events. Methods are called from the
// socket's own goroutines and must not block.
type SocketHandler interface {
	OnConnected()
	OnDisconnected(err error)
	OnText(text []byte)
	// OnHeartbeat is called for every pong from the server.
	OnHeartbeat()
}

// SocketConfig holds configuration for creating a Socket.
type SocketConfig struct {
	// URL is the server's WebSocket URL. Required.
	URL string
	// ReconnectBackoff is the wait between dial attempts.
	ReconnectBackoff time.Duration
	// PingInterval is the period between client pings. A connection
	// with no frame or pong for two intervals is dropped.
	PingInterval time.Duration
	// Dialer is used for connecting. If nil, websocket.DefaultDialer
	// is used.
	Dialer *websocket.Dialer
	// Clock times reconnect backoff. If nil, the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Handler receives events. Required.
	Handler SocketHandler
}

// Socket is a reconnecting WebSocket client carrying text frames.
type Socket struct {
	handler          SocketHandler
	dialer           *websocket.Dialer
	clock            clock.Clock
	logger           *slog.Logger
	reconnectBackoff time.Duration
	pingInterval     time.Duration

	// wake interrupts the reconnect backoff.
	wake chan struct{}

	mu   sync.Mutex
	url  string
	conn *websocket.Conn

	// writeMu serializes data frames. Control frames do not need it.
	writeMu sync.Mutex
}

// NewSocket creates a Socket. Call Run to start connecting.
func NewSocket(config SocketConfig) (*Socket, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("transport: socket URL is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("transport: socket Handler is required")
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := config.ReconnectBackoff
	if backoff <= 0 {
		backoff = defaultReconnectBackoff
	}
	ping := config.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	return &Socket{
		handler:          config.Handler,
		dialer:           dialer,
		clock:            clk,
		logger:           logger,
		reconnectBackoff: backoff,
		pingInterval:     ping,
		wake:             make(chan struct{}, 1),
		url:              config.URL,
	}, nil
}

// Run connects and reconnects until ctx is cancelled. It returns
// ctx.Err().
func (s *Socket) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		url := s.URL()
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Info("connecting to server failed", "url", url, "error", err)
		} else {
			s.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-s.clock.After(s.reconnectBackoff):
		}
	}
}

func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("connected to server", "url", conn.RemoteAddr().String())
	s.handler.OnConnected()

	done := make(chan struct{})
	go s.pingLoop(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	err := s.readLoop(conn)
	close(done)

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()

	if netutil.IsExpectedCloseError(err) || ctx.Err() != nil {
		s.logger.Info("disconnected from server")
	} else {
		s.logger.Warn("connection to server lost", "error", err)
	}
	s.handler.OnDisconnected(err)
}

func (s *Socket) readLoop(conn *websocket.Conn) error {
	pongWait := 2 * s.pingInterval
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handler.OnHeartbeat()
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			s.logger.Debug("ignoring non-text frame", "type", messageType)
			continue
		}
		s.handler.OnText(data)
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// SendText writes one text frame. It returns ErrNotConnected while
// the socket is down.
func (s *Socket) SendText(text []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, text); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Connected reports whether a connection is up.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Reconnect cuts the reconnect backoff short. It never blocks and
// does nothing while connected.
func (s *Socket) Reconnect() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// URL returns the current server URL.
func (s *Socket) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// SetURL changes the server URL. If it differs from the current one,
// the live connection is dropped and the next dial uses the new URL.
func (s *Socket) SetURL(url string) {
	s.mu.Lock()
	if url == s.url {
		s.mu.Unlock()
		return
	}
	s.url = url
	conn := s.conn
	s.mu.Unlock()

	s.logger.Info("server URL changed", "url", url)
	if conn != nil {
		conn.Close()
	}
	s.Reconnect()
}
