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

// Package session tracks one record per live broker connection and
// cross-links paired widget/authenticator records.
package session

import (
	"crypto/rsa"
	"time"
)

// Kind distinguishes which side of the pairing a Record belongs to.
type Kind string

const (
	KindWidget        Kind = "widget"
	KindAuthenticator Kind = "authenticator"
)

// State is the per-kind pairing state-machine position.
type State string

const (
	StateNew        State = "new"
	StateInited     State = "inited"     // authenticator only
	StateActivated  State = "activated"  // widget only
	StatePaired     State = "paired"
	StateChallenged State = "challenged" // authenticator only
	StateDone       State = "done"
)

// Record is the pairing metadata for one live connection. Fields are
// mutated by the dispatcher handling messages for this ClientID, or by
// Registry.Pair, which holds the registry's exclusive lock for its whole
// body; the peer's dispatcher additionally sets State to StateDone when it
// ends the pairing.
type Record struct {
	ClientID        string
	SessionID       string
	ClientSessionID string
	Alias           string
	UserID          string

	// CurrentUserToken is scoped to this session, not a process-wide slot:
	// each pairing flow's CURRENT_USER_TOKEN writes, and its AUTH reads, its own
	// copy, so two concurrent flows never cross-contaminate each other.
	CurrentUserToken string

	PeerID string

	// Secret and PublicKeySign are populated by HELLO on the authenticator
	// side and consumed by AUTH; both are nil outside that window.
	Secret        []byte
	PublicKeySign *rsa.PublicKey

	Kind      Kind
	State     State
	CreatedAt time.Time
	Alive     bool
}
