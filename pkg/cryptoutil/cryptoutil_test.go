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

package cryptoutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func signSHA256(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
}

var hashFrame = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func TestSHA256HexFraming(t *testing.T) {
	out := SHA256Hex([]byte("alice:publicEnc"))
	require.Regexp(t, hashFrame, out)

	// deterministic
	require.Equal(t, out, SHA256Hex([]byte("alice:publicEnc")))
}

func TestRecordName(t *testing.T) {
	enc := RecordName("alice", ":publicEnc")
	sign := RecordName("alice", ":publicSign")
	require.NotEqual(t, enc, sign)
	require.Regexp(t, hashFrame, enc)
}

func TestRSAPublicFromModulusRejectsShortKeys(t *testing.T) {
	_, err := RSAPublicFromModulus([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrBadKeyMaterial)
}

func TestRSAEncryptVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	secret := []byte("0123456789abcdef0123456789abcdef")
	ct, err := RSAEncrypt(&priv.PublicKey, secret)
	require.NoError(t, err)

	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ct)
	require.NoError(t, err)
	require.Equal(t, secret, plain)

	sig, err := signSHA256(priv, secret)
	require.NoError(t, err)
	require.True(t, RSAVerify(&priv.PublicKey, secret, sig))
	require.False(t, RSAVerify(&priv.PublicKey, []byte("tampered"), sig))
}

func TestAESEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plaintext := []byte("a session id worth protecting")
	wrapped, err := AESEncrypt(plaintext, key)
	require.NoError(t, err)

	got, err := AESDecrypt(wrapped, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestAESDecryptRejectsGarbage(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	_, err = AESDecrypt("not-hex", key)
	require.Error(t, err)

	_, err = AESDecrypt("deadbeef", key)
	require.Error(t, err)
}
