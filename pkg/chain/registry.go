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

// Package chain resolves a user alias to its registered public keys through
// a read-only blockchain call. Two concrete backends are provided, Ethereum
// and Solana, behind the same Registry interface.
package chain

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when the registry has no record for an alias.
var ErrUserNotFound = errors.New("chain: user not found")

// Registry resolves an alias to the two RSA-2048 moduli the authenticator
// registered: one for encryption, one for signing.
type Registry interface {
	// GetUserKeys returns the raw 256-byte moduli for alias's encryption
	// and signing keys, or ErrUserNotFound if alias has no record.
	GetUserKeys(ctx context.Context, alias string) (encModulus, signModulus []byte, err error)
}

// splitMixed splits a 512-byte mixed blob into its two 256-byte moduli.
// Both backends store the pair as one concatenated value to halve their
// round-trip count.
func splitMixed(mixed []byte) (encModulus, signModulus []byte, err error) {
	if len(mixed) != 512 {
		return nil, nil, ErrUserNotFound
	}
	return mixed[:256], mixed[256:], nil
}
