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

package challenge

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainauth/broker/pkg/chain"
)

type stubRegistry struct {
	encKey, signKey *rsa.PrivateKey
	calls           int
}

func (s *stubRegistry) GetUserKeys(ctx context.Context, alias string) ([]byte, []byte, error) {
	s.calls++
	if alias == "ghost" {
		return nil, nil, chain.ErrUserNotFound
	}
	return s.encKey.PublicKey.N.Bytes(), s.signKey.PublicKey.N.Bytes(), nil
}

func newStubRegistry(t *testing.T) *stubRegistry {
	t.Helper()
	encKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &stubRegistry{encKey: encKey, signKey: signKey}
}

func TestCreateAndCheckChallengeRoundTrip(t *testing.T) {
	reg := newStubRegistry(t)
	svc := New(reg)

	secret, challengeHex, signKey, err := svc.CreateChallenge(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, secret, secretLen)

	ciphertext, err := hex.DecodeString(challengeHex)
	require.NoError(t, err)
	decrypted, err := rsa.DecryptPKCS1v15(rand.Reader, reg.encKey, ciphertext)
	require.NoError(t, err)
	require.Equal(t, secret, decrypted)

	digest := sha256.Sum256(secret)
	signature, err := rsa.SignPKCS1v15(rand.Reader, reg.signKey, crypto.SHA256, digest[:])
	require.NoError(t, err)

	reply := hex.EncodeToString(decrypted) + "|" + hex.EncodeToString(signature)
	require.True(t, CheckChallenge(secret, signKey, reply))
}

func TestCheckChallengeRejectsMismatch(t *testing.T) {
	reg := newStubRegistry(t)
	svc := New(reg)
	secret, _, signKey, err := svc.CreateChallenge(context.Background(), "alice")
	require.NoError(t, err)

	require.False(t, CheckChallenge(secret, signKey, "not-a-valid-reply"))
	require.False(t, CheckChallenge(secret, signKey, hex.EncodeToString([]byte("wrong"))+"|"+hex.EncodeToString([]byte("sig"))))
}

func TestCreateChallengeUnknownAlias(t *testing.T) {
	reg := newStubRegistry(t)
	svc := New(reg)
	_, _, _, err := svc.CreateChallenge(context.Background(), "ghost")
	require.ErrorIs(t, err, chain.ErrUserNotFound)
}

func TestCreateChallengeCoalescesConcurrentLookups(t *testing.T) {
	reg := newStubRegistry(t)
	svc := New(reg)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			_, _, _, _ = svc.CreateChallenge(context.Background(), "alice")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.LessOrEqual(t, reg.calls, 8)
}
