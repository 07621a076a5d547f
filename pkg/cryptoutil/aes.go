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
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/chainauth/broker/internal/metrics"
)

// ErrInvalidCiphertext is returned when AESDecrypt receives a malformed or
// mis-sized payload.
var ErrInvalidCiphertext = errors.New("cryptoutil: invalid AES ciphertext")

// AESEncrypt encrypts plaintext with AES-CBC under key (16/24/32 bytes),
// using a random IV and PKCS#7 padding, and returns "ivHex || ciphertextHex".
// The cipher mode is a fixed protocol constant: both sides of the INIT
// token exchange must agree on it out of band.
func AESEncrypt(plaintext, key []byte) (string, error) {
	start := time.Now()
	block, err := aes.NewCipher(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		return "", err
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		return "", err
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	metrics.CryptoOperations.WithLabelValues("encrypt", "aes").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("encrypt", "aes").Observe(time.Since(start).Seconds())
	return hex.EncodeToString(iv) + hex.EncodeToString(ciphertext), nil
}

// AESDecrypt is the inverse of AESEncrypt.
func AESDecrypt(payload string, key []byte) ([]byte, error) {
	start := time.Now()
	raw, err := hex.DecodeString(payload)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, ErrInvalidCiphertext
	}
	if len(raw) < aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, err
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		return nil, err
	}

	metrics.CryptoOperations.WithLabelValues("decrypt", "aes").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("decrypt", "aes").Observe(time.Since(start).Seconds())
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidCiphertext
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidCiphertext
		}
	}
	return data[:len(data)-padLen], nil
}
