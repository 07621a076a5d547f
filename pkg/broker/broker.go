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

package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainauth/broker/internal/logging"
	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/challenge"
	"github.com/chainauth/broker/pkg/session"
	"github.com/chainauth/broker/pkg/transport"
	"github.com/chainauth/broker/pkg/transport/websocket"
)

const (
	// WidgetPath is where widget connections upgrade to WebSocket.
	WidgetPath = "/widget"
	// AuthenticatorPath is where authenticator connections upgrade to WebSocket.
	AuthenticatorPath = "/authenticator"
	// MetricsPath exposes the broker's Prometheus registry.
	MetricsPath = "/metrics"
)

// Broker ties together the session registry, the challenge service, and a
// pair of WebSocket mounts, one per connection kind.
type Broker struct {
	opts       Options
	logger     *logging.Logger
	registry   *session.Registry
	challenges *challenge.Service
	dispatcher *dispatcher

	widgetServer        *websocket.Server
	authenticatorServer *websocket.Server

	mux *http.ServeMux
}

// authLifecycle and widgetLifecycle adapt dispatcher methods to the
// websocket.Lifecycle interface without exposing dispatcher itself.
type authLifecycle struct{ d *dispatcher }

func (l authLifecycle) OnConnect(connID string, conn transport.Conn) { l.d.onConnectAuthenticator(connID, conn) }
func (l authLifecycle) OnDisconnect(connID string)                   { l.d.onDisconnect(connID) }

type widgetLifecycle struct{ d *dispatcher }

func (l widgetLifecycle) OnConnect(connID string, conn transport.Conn) { l.d.onConnectWidget(connID, conn) }
func (l widgetLifecycle) OnDisconnect(connID string)                   { l.d.onDisconnect(connID) }

// New validates opts and wires a Broker ready to serve.
func New(opts Options, logger *logging.Logger) (*Broker, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewFromEnv("broker")
	}
	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	challenges := challenge.New(opts.Registry)

	// onReap needs the dispatcher, which needs the registry, so the registry
	// is built against a forward reference that is filled in immediately
	// after the dispatcher exists.
	var d *dispatcher
	registry := session.NewRegistry(opts.AuthWindow, func(rec *session.Record) {
		d.onReap(rec)
	})

	// SendTo/CloseConn need the two WebSocket servers, which need the
	// dispatcher as their Lifecycle/Handler; break that cycle the same way.
	pusher := &lazyPusher{}
	d = newDispatcher(opts, registry, challenges, logger, pusher)

	b := &Broker{
		opts:       opts,
		logger:     logger,
		registry:   registry,
		challenges: challenges,
		dispatcher: d,
	}

	b.widgetServer = websocket.NewServer(d.DispatchWidget, widgetLifecycle{d}, logger, 60*time.Second, 10*time.Second, opts.SocketPingTimeout)
	b.authenticatorServer = websocket.NewServer(d.DispatchAuthenticator, authLifecycle{d}, logger, 60*time.Second, 10*time.Second, opts.SocketPingTimeout)
	pusher.widget = b.widgetServer
	pusher.authenticator = b.authenticatorServer

	mux := http.NewServeMux()
	mux.Handle(WidgetPath, b.widgetServer.Handler())
	mux.Handle(AuthenticatorPath, b.authenticatorServer.Handler())
	mux.Handle(MetricsPath, metrics.Handler())
	b.mux = mux

	return b, nil
}

// lazyPusher fans SendTo/CloseConn out to whichever of the two WebSocket
// servers currently holds the target connection ID.
type lazyPusher struct {
	widget        *websocket.Server
	authenticator *websocket.Server
}

func (p *lazyPusher) SendTo(ctx context.Context, connID string, env *transport.Envelope) error {
	if err := p.widget.SendTo(ctx, connID, env); err == nil {
		return nil
	}
	return p.authenticator.SendTo(ctx, connID, env)
}

func (p *lazyPusher) CloseConn(connID string) {
	p.widget.CloseConn(connID)
	p.authenticator.CloseConn(connID)
}

// Handler returns the broker's full HTTP handler (widget mount, authenticator
// mount, and /metrics).
func (b *Broker) Handler() http.Handler { return b.mux }

// ListenAndServe binds the configured port and serves until ctx is canceled.
func (b *Broker) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", b.opts.Port)
	srv := &http.Server{
		Addr:      addr,
		Handler:   b.mux,
		TLSConfig: b.opts.TLS,
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.WithFields(nil).Infof("broker listening on %s", addr)
		var err error
		if b.opts.TLS != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		b.registry.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ConnectionCount returns the number of currently open widget plus
// authenticator connections.
func (b *Broker) ConnectionCount() int {
	return b.widgetServer.ConnectionCount() + b.authenticatorServer.ConnectionCount()
}
