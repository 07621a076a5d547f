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

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainauth/broker/internal/metrics"
)

// ErrAlreadyAliased is returned when CHECK targets a widget session that
// already has an alias.
var ErrAlreadyAliased = fmt.Errorf("session: already aliased")

// ErrNotFound is returned by Activate and Pair when no suitable record
// matches; the By* lookups report a miss through their bool result instead.
var ErrNotFound = fmt.Errorf("session: not found")

// Registry indexes live Records by ClientID, SessionID, and
// ClientSessionID, and reaps any record whose authorization window elapses
// before it reaches StateDone.
type Registry struct {
	mu              sync.RWMutex
	byClientID      map[string]*Record
	bySessionID     map[string]*Record
	byClientSession map[string]*Record
	timers          map[string]*time.Timer

	authWindow time.Duration
	onReap     func(rec *Record)
}

// NewRegistry constructs a Registry. onReap, if non-nil, is invoked
// (outside the registry's lock) whenever a record is removed by its
// authorization-window timer, so the caller can fan out CONNECTION_FAILED
// to any peer.
func NewRegistry(authWindow time.Duration, onReap func(rec *Record)) *Registry {
	return &Registry{
		byClientID:      make(map[string]*Record),
		bySessionID:     make(map[string]*Record),
		byClientSession: make(map[string]*Record),
		timers:          make(map[string]*time.Timer),
		authWindow:      authWindow,
		onReap:          onReap,
	}
}

// Create allocates a new Record of the given kind for clientID (the
// transport-assigned connection ID), assigns it a SessionID, stores it, and
// schedules its authorization-window reaper.
func (r *Registry) Create(clientID string, kind Kind) *Record {
	rec := &Record{
		ClientID:  clientID,
		SessionID: uuid.NewString(),
		Kind:      kind,
		State:     StateNew,
		CreatedAt: time.Now(),
		Alive:     true,
	}

	r.mu.Lock()
	r.byClientID[rec.ClientID] = rec
	r.bySessionID[rec.SessionID] = rec
	r.timers[rec.ClientID] = time.AfterFunc(r.authWindow, func() { r.reap(rec.ClientID) })
	r.mu.Unlock()

	metrics.SessionsCreated.WithLabelValues(string(kind)).Inc()
	metrics.SessionsActive.Inc()
	return rec
}

func (r *Registry) reap(clientID string) {
	r.mu.Lock()
	rec, ok := r.byClientID[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(clientID)
	r.mu.Unlock()

	metrics.SessionsReaped.Inc()
	if r.onReap != nil {
		r.onReap(rec)
	}
}

// ByClientID looks up a Record by its ClientID.
func (r *Registry) ByClientID(clientID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byClientID[clientID]
	return rec, ok
}

// BySessionID looks up a Record by its broker-assigned SessionID.
func (r *Registry) BySessionID(sessionID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bySessionID[sessionID]
	return rec, ok
}

// ByClientSessionID looks up a Record by the ClientSessionID CHECK minted.
func (r *Registry) ByClientSessionID(clientSessionID string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byClientSession[clientSessionID]
	return rec, ok
}

// Activate sets alias on the widget record found by sessionID, mints its
// ClientSessionID, and indexes the record under it. Fails if sessionID does
// not resolve to a widget record in StateNew, or is already aliased.
func (r *Registry) Activate(sessionID, alias string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.bySessionID[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Alias != "" {
		return nil, ErrAlreadyAliased
	}
	if rec.Kind != KindWidget || rec.State != StateNew {
		return nil, ErrNotFound
	}

	rec.Alias = alias
	rec.ClientSessionID = uuid.NewString()
	rec.State = StateActivated
	r.byClientSession[rec.ClientSessionID] = rec
	return rec, nil
}

// Pair cross-links an authenticator record to the widget record addressed
// by clientSessionID: it copies the widget's alias onto auth and sets both
// PeerID fields symmetrically. This is the registry's one cross-session
// mutation and holds the exclusive lock for its entire body.
func (r *Registry) Pair(clientSessionID string, auth *Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	widget, ok := r.byClientSession[clientSessionID]
	if !ok {
		return nil, ErrNotFound
	}

	widget.PeerID = auth.ClientID
	auth.PeerID = widget.ClientID
	auth.Alias = widget.Alias
	widget.State = StatePaired
	auth.State = StatePaired
	return widget, nil
}

// Remove deletes a record and cancels its reaper timer. Idempotent.
func (r *Registry) Remove(clientID, reason string) {
	r.mu.Lock()
	existed := r.removeLocked(clientID)
	r.mu.Unlock()

	if existed {
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
	}
}

func (r *Registry) removeLocked(clientID string) bool {
	rec, ok := r.byClientID[clientID]
	if !ok {
		return false
	}
	delete(r.byClientID, clientID)
	delete(r.bySessionID, rec.SessionID)
	if rec.ClientSessionID != "" {
		delete(r.byClientSession, rec.ClientSessionID)
	}
	if t, ok := r.timers[clientID]; ok {
		t.Stop()
		delete(r.timers, clientID)
	}
	metrics.SessionsActive.Dec()
	return true
}

// Close stops every pending reaper timer and clears the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.timers {
		t.Stop()
	}
	r.byClientID = make(map[string]*Record)
	r.bySessionID = make(map[string]*Record)
	r.byClientSession = make(map[string]*Record)
	r.timers = make(map[string]*time.Timer)
}

// Count returns the number of currently live records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClientID)
}
