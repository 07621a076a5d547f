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

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/transport"
)

// conn adapts a gorilla *websocket.Conn to transport.Conn. Writes are
// serialized with writeMu since the broker may push unsolicited envelopes
// (ACTIVATED, CONNECTION_FAILED) from a goroutine other than the one
// running this connection's read loop.
type conn struct {
	id           string
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu sync.Mutex
	mu      sync.Mutex
	alive   bool
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Recv(ctx context.Context) (*transport.Envelope, error) {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, err
	}
	var env transport.Envelope
	if err := c.ws.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *conn) Send(ctx context.Context, env *transport.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	metrics.MessageSize.WithLabelValues("outbound").Observe(float64(len(env.Payload)))
	return c.ws.WriteJSON(env)
}

func (c *conn) Ping(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
