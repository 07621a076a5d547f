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
	"errors"
	"math/big"
	"time"

	"github.com/chainauth/broker/internal/metrics"
)

// rsaPublicExponent is the fixed exponent used by every key the registry
// stores. It is never negotiated: both broker and authenticator assume 65537.
const rsaPublicExponent = 65537

// ErrBadKeyMaterial is returned when a modulus cannot form a 2048-bit RSA key.
var ErrBadKeyMaterial = errors.New("cryptoutil: key material is not a 2048-bit RSA modulus")

// RSAPublicFromModulus reconstructs an RSA-2048 public key from a raw,
// big-endian modulus as stored on-chain. The exponent is always 65537.
func RSAPublicFromModulus(n []byte) (*rsa.PublicKey, error) {
	if len(n) != 256 {
		return nil, ErrBadKeyMaterial
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: rsaPublicExponent,
	}, nil
}

// RSAEncrypt encrypts plaintext under pub using PKCS#1 v1.5 padding. This
// padding choice is a fixed protocol constant, not configurable: the
// authenticator's decrypt step must use the matching padding.
func RSAEncrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	start := time.Now()
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	metrics.CryptoOperationDuration.WithLabelValues("encrypt", "rsa").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		return nil, err
	}
	metrics.CryptoOperations.WithLabelValues("encrypt", "rsa").Inc()
	return ct, nil
}

// RSAVerify reports whether signature is a valid PKCS#1 v1.5 signature over
// the SHA-256 digest of message, under pub.
func RSAVerify(pub *rsa.PublicKey, message, signature []byte) bool {
	start := time.Now()
	digest := sha256.Sum256(message)
	err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
	metrics.CryptoOperationDuration.WithLabelValues("verify", "rsa").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return false
	}
	metrics.CryptoOperations.WithLabelValues("verify", "rsa").Inc()
	return true
}
