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

// Package challenge builds and verifies the RSA-wrapped secret the
// authenticator must prove possession of to complete a pairing.
package challenge

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/chain"
	"github.com/chainauth/broker/pkg/cryptoutil"
)

// secretLen is the size of the random challenge secret in bytes.
const secretLen = 128

// ErrMalformedReply is returned when an AUTH reply doesn't carry the
// "decryptedHex|signatureHex" shape CheckChallenge expects.
var ErrMalformedReply = errors.New("challenge: malformed reply")

// Service builds and checks challenges against a blockchain key registry,
// coalescing concurrent lookups for the same alias.
type Service struct {
	registry chain.Registry
	sf       singleflight.Group
}

// New constructs a Service backed by registry.
func New(registry chain.Registry) *Service {
	return &Service{registry: registry}
}

// resolvedKeys holds the two public keys a CreateChallenge call resolved for an alias.
type resolvedKeys struct {
	encKey  *rsa.PublicKey
	signKey *rsa.PublicKey
}

// resolveKeys fetches and parses both public keys for alias, coalescing
// concurrent calls for the same alias into a single registry lookup.
func (s *Service) resolveKeys(ctx context.Context, alias string) (*resolvedKeys, error) {
	v, err, shared := s.sf.Do(alias, func() (interface{}, error) {
		encMod, signMod, err := s.registry.GetUserKeys(ctx, alias)
		if err != nil {
			return nil, err
		}
		encKey, err := cryptoutil.RSAPublicFromModulus(encMod)
		if err != nil {
			return nil, fmt.Errorf("challenge: parse encryption key: %w", err)
		}
		signKey, err := cryptoutil.RSAPublicFromModulus(signMod)
		if err != nil {
			return nil, fmt.Errorf("challenge: parse signing key: %w", err)
		}
		return &resolvedKeys{encKey: encKey, signKey: signKey}, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.ChainCallsCoalesced.Inc()
	}
	return v.(*resolvedKeys), nil
}

// CreateChallenge resolves alias's public keys, draws a random secret, and
// returns the secret (kept by the caller, never sent to the client), its
// RSA encryption under the alias's encryption key as hex, and the alias's
// signing key (needed later by CheckChallenge).
func (s *Service) CreateChallenge(ctx context.Context, alias string) (secret []byte, challengeHex string, signKey *rsa.PublicKey, err error) {
	keys, err := s.resolveKeys(ctx, alias)
	if err != nil {
		return nil, "", nil, err
	}

	secret = make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", nil, fmt.Errorf("challenge: generate secret: %w", err)
	}

	encrypted, err := cryptoutil.RSAEncrypt(keys.encKey, secret)
	if err != nil {
		return nil, "", nil, fmt.Errorf("challenge: encrypt secret: %w", err)
	}

	return secret, hex.EncodeToString(encrypted), keys.signKey, nil
}

// CheckChallenge verifies an AUTH reply of the form "decryptedHex|signatureHex"
// against the secret this connection's CreateChallenge produced: the
// decrypted bytes must equal secret, and signature must be a valid RSA
// signature over secret under signKey. Never panics; returns false on any
// malformed or mismatched input.
func CheckChallenge(secret []byte, signKey *rsa.PublicKey, reply string) bool {
	parts := strings.SplitN(reply, "|", 2)
	if len(parts) != 2 {
		return false
	}

	decrypted, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	signature, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	if !hexEqual(decrypted, secret) {
		return false
	}
	return cryptoutil.RSAVerify(signKey, secret, signature)
}

func hexEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
