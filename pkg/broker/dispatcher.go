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
	"encoding/json"
	"errors"
	"time"

	"github.com/chainauth/broker/internal/logging"
	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/chain"
	"github.com/chainauth/broker/pkg/challenge"
	"github.com/chainauth/broker/pkg/cryptoutil"
	"github.com/chainauth/broker/pkg/session"
	"github.com/chainauth/broker/pkg/transport"
)

// Pusher delivers unsolicited envelopes to a connection by ID, and can
// force-close one. *websocket.Server satisfies this.
type Pusher interface {
	SendTo(ctx context.Context, connID string, env *transport.Envelope) error
	CloseConn(connID string)
}

// dispatcher holds the pairing state machine described in the broker
// protocol: it is mounted twice by Broker, once per WebSocket path, and
// dispatches widget commands on one and authenticator commands on the other.
type dispatcher struct {
	opts       Options
	registry   *session.Registry
	challenges *challenge.Service
	logger     *logging.Logger
	pusher     Pusher
}

func newDispatcher(opts Options, registry *session.Registry, challenges *challenge.Service, logger *logging.Logger, pusher Pusher) *dispatcher {
	return &dispatcher{
		opts:       opts,
		registry:   registry,
		challenges: challenges,
		logger:     logger,
		pusher:     pusher,
	}
}

// onConnectAuthenticator creates the session record for a newly accepted
// authenticator connection and sends it AUTH_INIT immediately, over the
// same Conn it keeps open through HELLO/AUTH.
func (d *dispatcher) onConnectAuthenticator(connID string, conn transport.Conn) {
	rec := d.registry.Create(connID, session.KindAuthenticator)

	token, err := cryptoutil.AESEncrypt([]byte(rec.SessionID), d.opts.SecretCode)
	if err != nil {
		d.logger.WithError(err).WithField("client_id", connID).Error("failed to wrap session id for AUTH_INIT")
		d.pusher.CloseConn(connID)
		return
	}

	env, err := encodeEnvelope(cmdAuthInit, authInitPayload{ID: d.opts.ProjectID, Token: token})
	if err != nil {
		d.logger.WithError(err).Error("failed to encode AUTH_INIT")
		d.pusher.CloseConn(connID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Send(ctx, env); err != nil {
		d.logger.WithError(err).WithField("client_id", connID).Warn("failed to deliver AUTH_INIT")
	}
	rec.State = session.StateInited
}

// onConnectWidget creates the session record for a newly accepted widget
// connection. Widgets receive no greeting; they speak first, with CHECK.
func (d *dispatcher) onConnectWidget(connID string, _ transport.Conn) {
	d.registry.Create(connID, session.KindWidget)
}

// onDisconnect fans out CONNECTION_FAILED to any live peer and releases the
// session. Safe to call more than once for the same connID.
func (d *dispatcher) onDisconnect(connID string) {
	rec, ok := d.registry.ByClientID(connID)
	if !ok {
		return
	}
	d.registry.Remove(connID, "disconnect")
	d.notifyPeerOfFailure(rec, "peer disconnected")
}

// onReap is the registry's timeout callback: by the time it runs, rec has
// already been removed from the registry, so it carries its own snapshot of
// PeerID/State rather than relying on a fresh lookup.
func (d *dispatcher) onReap(rec *session.Record) {
	d.notifyPeerOfFailure(rec, "authorization window expired")
}

// notifyPeerOfFailure pushes CONNECTION_FAILED to rec's peer, if any is
// still live, then closes and releases that peer's own session: a dropped
// or reaped connection is terminal for both sides of a pairing, not just
// the one that disconnected or timed out.
func (d *dispatcher) notifyPeerOfFailure(rec *session.Record, reason string) {
	if rec.PeerID == "" || rec.State == session.StateDone {
		return
	}
	if _, ok := d.registry.ByClientID(rec.PeerID); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := encodeEnvelope(cmdConnectionFailed, errorPayload{Kind: string(ErrTransport), Message: reason})
	if err != nil {
		return
	}
	if err := d.pusher.SendTo(ctx, rec.PeerID, env); err != nil {
		d.logger.WithError(err).WithField("peer_id", rec.PeerID).Warn("failed to notify peer of disconnect")
	}
	// CONNECTION_FAILED is terminal for the peer too: close and release its
	// session rather than leaving it to its own reaper or ping timeout.
	d.registry.Remove(rec.PeerID, "peer_failed")
	d.pusher.CloseConn(rec.PeerID)
}

// DispatchAuthenticator handles one inbound envelope from an authenticator
// connection: CURRENT_USER_TOKEN, HELLO, AUTH, AUTH_DECLINED.
func (d *dispatcher) DispatchAuthenticator(ctx context.Context, connID string, env *transport.Envelope) (*transport.Envelope, error) {
	start := time.Now()
	resp, bErr := d.dispatchAuthenticator(ctx, connID, env)
	observeDispatch(env.Command, bErr, start)
	if bErr != nil {
		return errorEnvelope(bErr), toTransportError(bErr)
	}
	return resp, nil
}

func (d *dispatcher) dispatchAuthenticator(ctx context.Context, connID string, env *transport.Envelope) (*transport.Envelope, *Error) {
	rec, ok := d.registry.ByClientID(connID)
	if !ok {
		return nil, newError(ErrStateViolation, "unknown authenticator session", nil)
	}

	switch env.Command {
	case cmdCurrentUserToken:
		var p currentUserTokenPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newError(ErrBadInput, "malformed CURRENT_USER_TOKEN payload", err)
		}
		rec.CurrentUserToken = p.Token
		return nil, nil

	case cmdHello:
		return d.handleHello(ctx, rec)

	case CmdAuth:
		var p authPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newError(ErrBadInput, "malformed AUTH payload", err)
		}
		return d.handleAuth(ctx, connID, rec, p)

	case cmdAuthDeclined:
		return d.handleDeclined(ctx, rec), nil

	default:
		return nil, newError(ErrBadInput, "unexpected command on authenticator connection: "+env.Command, nil)
	}
}

func (d *dispatcher) handleHello(ctx context.Context, rec *session.Record) (*transport.Envelope, *Error) {
	if rec.PeerID == "" || rec.Alias == "" {
		return nil, newError(ErrStateViolation, "HELLO before pairing", nil)
	}

	chainCtx, cancel := context.WithTimeout(ctx, d.opts.AuthWindow)
	defer cancel()
	secret, challengeHex, signKey, err := d.challenges.CreateChallenge(chainCtx, rec.Alias)
	if err != nil {
		if errors.Is(err, chain.ErrUserNotFound) {
			return nil, newError(ErrUserNotFound, "user not found", err)
		}
		return nil, newError(ErrUpstreamFailure, "failed to build challenge", err)
	}

	rec.Secret = secret
	rec.PublicKeySign = signKey
	rec.State = session.StateChallenged

	env, encErr := encodeEnvelope(cmdChallenge, challengePayload{Challenge: challengeHex, Fields: d.opts.Fields})
	if encErr != nil {
		return nil, newError(ErrCryptoFailure, "failed to encode CHALLENGE", encErr)
	}
	return env, nil
}

func (d *dispatcher) handleAuth(ctx context.Context, connID string, rec *session.Record, p authPayload) (*transport.Envelope, *Error) {
	if rec.State != session.StateChallenged {
		return nil, newError(ErrStateViolation, "AUTH before HELLO", nil)
	}
	if p.Alias != rec.Alias {
		d.failBoth(ctx, rec, ErrPeerMismatch, "user alias do not match")
		return nil, newError(ErrPeerMismatch, "user alias do not match", nil)
	}
	if !challenge.CheckChallenge(rec.Secret, rec.PublicKeySign, p.ChallengeSigned) {
		d.failBoth(ctx, rec, ErrCryptoFailure, "access denied")
		return nil, newError(ErrCryptoFailure, "access denied", nil)
	}

	out, err := d.opts.OnSuccess(ctx, SuccessInput{
		Alias:            rec.Alias,
		UserID:           rec.UserID,
		CurrentUserToken: rec.CurrentUserToken,
		Fields:           d.opts.Fields,
	})
	if err != nil {
		d.failBoth(ctx, rec, ErrUpstreamFailure, "onSuccess failed")
		return nil, newError(ErrUpstreamFailure, "onSuccess failed", err)
	}

	rec.State = session.StateDone
	resultEnv, encErr := encodeEnvelope(cmdAuthResult, authResultPayload{Alias: rec.Alias, Token: out.Token, Extra: out.Extra})
	if encErr != nil {
		return nil, newError(ErrCryptoFailure, "failed to encode AUTH_RESULT", encErr)
	}
	// AUTH_RESULT is terminal on both sides of the pairing: the acting
	// connection closes once the server delivers this response, and the
	// widget peer is closed explicitly below.
	resultEnv.Terminal = true

	if peer, ok := d.registry.ByClientID(rec.PeerID); ok {
		peer.State = session.StateDone
		if sendErr := d.pusher.SendTo(ctx, rec.PeerID, resultEnv); sendErr != nil {
			d.logger.WithError(sendErr).WithField("peer_id", rec.PeerID).Warn("failed to deliver AUTH_RESULT to widget")
		}
		d.registry.Remove(rec.PeerID, "success")
		d.pusher.CloseConn(rec.PeerID)
	}
	d.registry.Remove(connID, "success")

	metrics.SessionPairDuration.Observe(time.Since(rec.CreatedAt).Seconds())
	return resultEnv, nil
}

// handleDeclined handles a voluntary AUTH_DECLINED from the authenticator:
// both sides are notified with the same AUTH_DECLINED envelope, the
// authenticator's copy riding back as this dispatch's direct response.
func (d *dispatcher) handleDeclined(ctx context.Context, rec *session.Record) *transport.Envelope {
	rec.State = session.StateDone
	env, err := encodeEnvelope(cmdAuthDeclined, errorPayload{Kind: string(ErrStateViolation), Message: "declined by authenticator"})
	if err != nil {
		return nil
	}
	env.Terminal = true
	d.notifyPeer(ctx, rec, env)
	d.registry.Remove(rec.ClientID, "declined")
	return env
}

// failBoth marks rec and its peer Done and pushes an ERROR envelope to the
// peer; the caller's own copy is delivered separately, as the direct
// dispatch response carrying the *Error that triggered this call.
func (d *dispatcher) failBoth(ctx context.Context, rec *session.Record, kind ErrKind, message string) {
	rec.State = session.StateDone
	env, err := encodeEnvelope(cmdError, errorPayload{Kind: string(kind), Message: message})
	if err != nil {
		return
	}
	d.notifyPeer(ctx, rec, env)
}

func (d *dispatcher) notifyPeer(ctx context.Context, rec *session.Record, env *transport.Envelope) {
	if rec.PeerID == "" {
		return
	}
	peer, ok := d.registry.ByClientID(rec.PeerID)
	if !ok {
		return
	}
	peer.State = session.StateDone
	_ = d.pusher.SendTo(ctx, rec.PeerID, env)
	// The pushed envelope is terminal for the peer (ERROR or AUTH_DECLINED):
	// close and release its session instead of leaving the transport open.
	d.registry.Remove(rec.PeerID, "peer_failed")
	d.pusher.CloseConn(rec.PeerID)
}

// DispatchWidget handles one inbound envelope from a widget connection:
// CHECK is the only command a widget ever sends.
func (d *dispatcher) DispatchWidget(ctx context.Context, connID string, env *transport.Envelope) (*transport.Envelope, error) {
	start := time.Now()
	resp, bErr := d.dispatchWidget(ctx, connID, env)
	observeDispatch(env.Command, bErr, start)
	if bErr != nil {
		return errorEnvelope(bErr), toTransportError(bErr)
	}
	return resp, nil
}

func (d *dispatcher) dispatchWidget(ctx context.Context, connID string, env *transport.Envelope) (*transport.Envelope, *Error) {
	if env.Command != CmdCheck {
		return nil, newError(ErrBadInput, "unexpected command on widget connection: "+env.Command, nil)
	}

	widget, ok := d.registry.ByClientID(connID)
	if !ok {
		return nil, newError(ErrStateViolation, "unknown widget session", nil)
	}
	if widget.Alias != "" {
		return nil, newError(ErrStateViolation, "CHECK on an already-aliased session", nil)
	}

	var p checkPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return nil, newError(ErrBadInput, "malformed CHECK payload", err)
	}
	if p.SessionID == "" || p.Alias == "" {
		return nil, newError(ErrBadInput, "CHECK requires session_id and alias", nil)
	}

	auth, ok := d.registry.BySessionID(p.SessionID)
	if !ok || auth.Kind != session.KindAuthenticator || auth.PeerID != "" {
		return nil, newError(ErrStateViolation, "CHECK session_id does not resolve to a pairable authenticator", nil)
	}

	if d.opts.OnUserValidate != nil {
		userID, err := d.opts.OnUserValidate(p.UserData)
		if err != nil {
			return nil, newError(ErrUserNotFound, "user not found", err)
		}
		widget.UserID = userID
	}

	activated, err := d.registry.Activate(widget.SessionID, p.Alias)
	if err != nil {
		return nil, newError(ErrStateViolation, "activate failed", err)
	}

	if _, err := d.registry.Pair(activated.ClientSessionID, auth); err != nil {
		return nil, newError(ErrStateViolation, "pair failed", err)
	}

	activatedEnv, encErr := encodeEnvelope(cmdActivated, struct{}{})
	if encErr != nil {
		return nil, newError(ErrCryptoFailure, "failed to encode ACTIVATED", encErr)
	}
	if sendErr := d.pusher.SendTo(ctx, auth.ClientID, activatedEnv); sendErr != nil {
		d.logger.WithError(sendErr).WithField("client_id", auth.ClientID).Warn("failed to deliver ACTIVATED")
	}

	readyEnv, encErr := encodeEnvelope(CmdReady, readyPayload{ClientSessionID: activated.ClientSessionID})
	if encErr != nil {
		return nil, newError(ErrCryptoFailure, "failed to encode READY", encErr)
	}
	return readyEnv, nil
}

func encodeEnvelope(command string, payload any) (*transport.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &transport.Envelope{Command: command, Payload: raw}, nil
}

func observeDispatch(command string, err *Error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
		metrics.DispatchErrors.WithLabelValues(string(err.Kind)).Inc()
	}
	metrics.DispatchTotal.WithLabelValues(command, status).Inc()
	metrics.DispatchDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

func toTransportError(err *Error) error {
	if err == nil {
		return nil
	}
	return err
}

// errorEnvelope renders err as the ERROR envelope the broker protocol sends
// to the connection that caused or surfaced a dispatch failure, right before
// that connection is closed.
func errorEnvelope(err *Error) *transport.Envelope {
	env, encErr := encodeEnvelope(cmdError, errorPayload{Kind: string(err.Kind), Message: err.Message})
	if encErr != nil {
		return nil
	}
	return env
}
