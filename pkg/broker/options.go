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

// Package broker implements the session-pairing state machine: it
// dispatches protocol commands from widget and authenticator connections,
// drives the challenge/response exchange, and invokes the relying party's
// callbacks.
package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chainauth/broker/pkg/chain"
)

// SuccessInput carries everything OnSuccess needs to authorize the
// authenticated user and mint the widget's final token.
type SuccessInput struct {
	Alias            string
	UserID           string
	CurrentUserToken string
	Fields           string
}

// SuccessOutput is whatever the relying party wants handed back to the
// widget inside AUTH_RESULT.
type SuccessOutput struct {
	Token string
	Extra map[string]any
}

// Options configures a Broker. This is a closed set mirroring the
// reference implementation's construction parameters.
type Options struct {
	// Debug raises the logger to debug level.
	Debug bool

	// Port the WebSocket listener binds to. Defaults to 31313.
	Port int

	// ProjectID must be a valid UUID; it is embedded in every AUTH_INIT reply.
	ProjectID string

	// SecretCode is the base64-decoded AES key used to wrap SessionID into
	// the AUTH_INIT token. Must decode to 16, 24, or 32 bytes.
	SecretCode []byte

	// Fields is an opaque string echoed back inside CHALLENGE's fields.
	Fields string

	// TLS, if non-nil, wraps the listener in TLS.
	TLS *tls.Config

	// OnUserValidate is called when the widget's CHECK needs to resolve
	// arbitrary user data into a UserID. May be nil.
	OnUserValidate func(userData map[string]any) (string, error)

	// OnActivate is accepted for interface compatibility with the reference
	// broker but is never invoked by this flow.
	OnActivate func(ctx context.Context, alias string)

	// OnSuccess authorizes the authenticated user and mints the widget's
	// final token. Required.
	OnSuccess func(ctx context.Context, in SuccessInput) (SuccessOutput, error)

	// Registry resolves aliases to their registered public keys.
	Registry chain.Registry

	// AuthWindow bounds how long a session may remain unpaired/unauthorized
	// before it is reaped. Defaults to 2 minutes.
	AuthWindow time.Duration

	// SocketPingTimeout is the liveness ping interval. Defaults to 30s.
	SocketPingTimeout time.Duration
}

// ErrMissingOnSuccess is returned by New when OnSuccess is unset.
var ErrMissingOnSuccess = errors.New("broker: OnSuccess is required")

// ErrMissingRegistry is returned by New when Registry is unset.
var ErrMissingRegistry = errors.New("broker: Registry is required")

// ErrInvalidProjectID is returned by New when ProjectID is not a UUID.
var ErrInvalidProjectID = errors.New("broker: ProjectID must be a valid UUID")

// ErrInvalidSecretCode is returned by New when SecretCode is not a
// valid AES key length.
var ErrInvalidSecretCode = errors.New("broker: SecretCode must decode to 16, 24, or 32 bytes")

// withDefaults fills in zero-valued optional fields and validates the rest.
func (o Options) withDefaults() (Options, error) {
	if o.Port == 0 {
		o.Port = 31313
	}
	if o.AuthWindow == 0 {
		o.AuthWindow = 2 * time.Minute
	}
	if o.SocketPingTimeout == 0 {
		o.SocketPingTimeout = 30 * time.Second
	}

	if _, err := uuid.Parse(o.ProjectID); err != nil {
		return o, ErrInvalidProjectID
	}
	switch len(o.SecretCode) {
	case 16, 24, 32:
	default:
		return o, ErrInvalidSecretCode
	}
	if o.Registry == nil {
		return o, ErrMissingRegistry
	}
	if o.OnSuccess == nil {
		return o, ErrMissingOnSuccess
	}
	return o, nil
}
