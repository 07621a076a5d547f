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

// Package cryptoutil implements the primitives the broker needs to frame
// registry lookups and to run the challenge/response protocol: SHA-256
// hash framing, RSA-2048 public-key reconstruction/encryption/verification,
// and AES-CBC symmetric wrapping.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/chainauth/broker/internal/metrics"
)

// SHA256Hex returns the SHA-256 digest of data framed as "0x" followed by
// 64 lowercase hex characters, matching the hashing convention the on-chain
// registry uses for alias and record names.
func SHA256Hex(data []byte) string {
	start := time.Now()
	sum := sha256.Sum256(data)
	metrics.CryptoOperations.WithLabelValues("hash", "sha256").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("hash", "sha256").Observe(time.Since(start).Seconds())
	return "0x" + hex.EncodeToString(sum[:])
}

// RecordName builds the hashed record name the registry stores a key under:
// SHA256Hex(alias + suffix), e.g. suffix ":publicEnc" or ":publicSign".
func RecordName(alias, suffix string) string {
	return SHA256Hex([]byte(alias + suffix))
}
