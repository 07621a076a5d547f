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

package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"

	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/cryptoutil"
)

// pdaSeedPrefix namespaces the program-derived address so alias records
// never collide with another account type the program might store.
const pdaSeedPrefix = "chainauth:alias"

// SolanaRegistry resolves user keys from program accounts on Solana, one
// account per alias, addressed by a program-derived address.
type SolanaRegistry struct {
	client    *rpc.Client
	programID solana.PublicKey
}

// NewSolanaRegistry connects to rpcEndpoint and targets the registry
// program at programID (base58).
func NewSolanaRegistry(rpcEndpoint, programID string) (*SolanaRegistry, error) {
	pid, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid solana program id: %w", err)
	}
	return &SolanaRegistry{
		client:    rpc.New(rpcEndpoint),
		programID: pid,
	}, nil
}

// GetUserKeys implements Registry.
func (r *SolanaRegistry) GetUserKeys(ctx context.Context, alias string) ([]byte, []byte, error) {
	start := time.Now()
	mixed, err := r.readAliasAccount(ctx, alias)
	metrics.ChainCallDuration.WithLabelValues("solana").Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if errors.Is(err, ErrUserNotFound) {
			status = "not_found"
		}
		metrics.ChainCalls.WithLabelValues("solana", status).Inc()
		return nil, nil, err
	}
	metrics.ChainCalls.WithLabelValues("solana", "ok").Inc()
	return splitMixed(mixed)
}

func (r *SolanaRegistry) readAliasAccount(ctx context.Context, alias string) ([]byte, error) {
	seed := cryptoutil.SHA256Hex([]byte(alias))
	pda, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(pdaSeedPrefix), []byte(seed)},
		r.programID,
	)
	if err != nil {
		return nil, fmt.Errorf("chain: derive alias PDA: %w", err)
	}

	out, err := r.client.GetAccountInfo(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("chain: get alias account %s: %w", base58.Encode(pda[:]), err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("chain: no account at %s: %w", base58.Encode(pda[:]), ErrUserNotFound)
	}

	data := out.Value.Data.GetBinary()
	if len(data) < 520 {
		return nil, fmt.Errorf("chain: account %s too short: %w", base58.Encode(pda[:]), ErrUserNotFound)
	}
	// account layout: [8-byte discriminator][512-byte mixed key blob]
	return data[8:520], nil
}
