// ChainAuth - Blockchain-anchored authentication broker
// Copyright (C) 2025 ChainAuth
//
// This file is part of ChainAuth.
//
// ChainAuth is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ChainAuth is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ChainAuth. If not, see <https://www.gnu.org/licenses/>.

// Package websocket implements the broker's transport.Conn over gorilla's
// WebSocket library, with connection tracking and ping/pong liveness.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chainauth/broker/internal/logging"
	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/transport"
)

// Lifecycle is notified when a connection is accepted or drops. OnConnect
// receives the transport.Conn handle the broker can use to push
// unsolicited messages to this connection later (e.g. ACTIVATED,
// CONNECTION_FAILED); OnDisconnect is called exactly once per connection,
// whether the peer closed cleanly or the liveness ping timed out.
type Lifecycle interface {
	OnConnect(connID string, conn transport.Conn)
	OnDisconnect(connID string)
}

// Server upgrades HTTP requests to WebSocket connections and dispatches
// inbound envelopes to a transport.Handler, one goroutine per connection.
type Server struct {
	handler      transport.Handler
	lifecycle    Lifecycle
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewServer constructs a Server. pingInterval of 0 disables liveness pings.
func NewServer(handler transport.Handler, lifecycle Lifecycle, logger *logging.Logger, readTimeout, writeTimeout, pingInterval time.Duration) *Server {
	return &Server{
		handler:   handler,
		lifecycle: lifecycle,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		conns:        make(map[string]*conn),
	}
}

// Handler returns the http.Handler to mount at the broker's WebSocket path.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		c := &conn{
			id:           uuid.NewString(),
			ws:           ws,
			readTimeout:  s.readTimeout,
			writeTimeout: s.writeTimeout,
			alive:        true,
		}

		s.addConn(c)
		metrics.ConnectionsAccepted.Inc()
		metrics.ConnectionsActive.Inc()
		defer func() {
			s.removeConn(c.id)
			metrics.ConnectionsActive.Dec()
			_ = ws.Close()
			if s.lifecycle != nil {
				s.lifecycle.OnDisconnect(c.id)
			}
		}()

		if s.lifecycle != nil {
			s.lifecycle.OnConnect(c.id, c)
		}

		ws.SetPongHandler(func(string) error {
			c.mu.Lock()
			c.alive = true
			c.mu.Unlock()
			return nil
		})

		stopPing := make(chan struct{})
		if s.pingInterval > 0 {
			go s.pingLoop(c, stopPing)
		}
		defer close(stopPing)

		s.readLoop(r.Context(), c)
	})
}

func (s *Server) readLoop(ctx context.Context, c *conn) {
	for {
		env, err := c.Recv(ctx)
		if err != nil {
			return
		}
		metrics.MessageSize.WithLabelValues("inbound").Observe(float64(len(env.Payload)))

		resp, dispatchErr := s.handler(ctx, c.id, env)
		if resp != nil {
			if sendErr := c.Send(ctx, resp); sendErr != nil {
				return
			}
			if resp.Terminal {
				// A terminal response (AUTH_RESULT, AUTH_DECLINED) closes
				// this connection right after delivery, same as the
				// dispatchErr path below.
				return
			}
		}
		if dispatchErr != nil {
			s.logger.WithError(dispatchErr).Warn("dispatch error")
			return
		}
	}
}

func (s *Server) pingLoop(c *conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			wasAlive := c.alive
			c.alive = false
			c.mu.Unlock()

			if !wasAlive {
				metrics.PingTimeouts.Inc()
				_ = c.Close()
				return
			}
			if err := c.Ping(context.Background()); err != nil {
				return
			}
		}
	}
}

func (s *Server) addConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) removeConn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// SendTo pushes env to the connection identified by connID, if still open.
// Used by the broker to deliver unsolicited messages such as ACTIVATED or
// CONNECTION_FAILED to a peer connection.
func (s *Server) SendTo(ctx context.Context, connID string, env *transport.Envelope) error {
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket: connection %s not found", connID)
	}
	return c.Send(ctx, env)
}

// CloseConn force-closes a connection by ID; a no-op if already gone.
func (s *Server) CloseConn(connID string) {
	s.mu.RLock()
	c, ok := s.conns[connID]
	s.mu.RUnlock()
	if ok {
		_ = c.Close()
	}
}

// ConnectionCount returns the number of currently open connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
