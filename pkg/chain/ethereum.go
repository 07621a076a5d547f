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
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainauth/broker/internal/metrics"
	"github.com/chainauth/broker/pkg/cryptoutil"
)

// userRegistryABI is the minimal ABI the broker needs: one read-only method
// returning the mixed encryption+signing key blob for a hashed alias, given
// the hashed record names it should look up.
const userRegistryABI = `[
	{
		"name": "getRecordHashed",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "aliasHash", "type": "bytes32"},
			{"name": "names", "type": "bytes32[]"}
		],
		"outputs": [
			{"name": "mixed", "type": "bytes"}
		]
	}
]`

// EthereumRegistry resolves user keys from a deployed registry contract via
// read-only eth_call, never broadcasting a transaction.
type EthereumRegistry struct {
	client          *ethclient.Client
	contractABI     abi.ABI
	contractAddress common.Address
}

// NewEthereumRegistry dials rpcEndpoint and binds to the registry contract
// at contractAddress.
func NewEthereumRegistry(ctx context.Context, rpcEndpoint, contractAddress string) (*EthereumRegistry, error) {
	client, err := ethclient.DialContext(ctx, rpcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("chain: dial ethereum node: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(userRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse registry ABI: %w", err)
	}

	return &EthereumRegistry{
		client:          client,
		contractABI:     parsedABI,
		contractAddress: common.HexToAddress(contractAddress),
	}, nil
}

// GetUserKeys implements Registry.
func (r *EthereumRegistry) GetUserKeys(ctx context.Context, alias string) ([]byte, []byte, error) {
	start := time.Now()
	mixed, err := r.getRecordHashed(ctx, alias)
	metrics.ChainCallDuration.WithLabelValues("ethereum").Observe(time.Since(start).Seconds())
	if err != nil {
		status := "error"
		if errors.Is(err, ErrUserNotFound) {
			status = "not_found"
		}
		metrics.ChainCalls.WithLabelValues("ethereum", status).Inc()
		return nil, nil, err
	}
	metrics.ChainCalls.WithLabelValues("ethereum", "ok").Inc()
	return splitMixed(mixed)
}

func (r *EthereumRegistry) getRecordHashed(ctx context.Context, alias string) ([]byte, error) {
	aliasHash := hashToBytes32(cryptoutil.SHA256Hex([]byte(alias)))
	names := [][32]byte{
		hashToBytes32(cryptoutil.RecordName(alias, ":publicEnc")),
		hashToBytes32(cryptoutil.RecordName(alias, ":publicSign")),
	}

	callData, err := r.contractABI.Pack("getRecordHashed", aliasHash, names)
	if err != nil {
		return nil, fmt.Errorf("chain: pack getRecordHashed: %w", err)
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contractAddress,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call getRecordHashed: %w", err)
	}

	vals, err := r.contractABI.Unpack("getRecordHashed", output)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack getRecordHashed: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("chain: unexpected getRecordHashed outputs len=%d", len(vals))
	}
	mixed, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected getRecordHashed output type %T", vals[0])
	}
	if len(mixed) == 0 || mixed[0] == 0 {
		return nil, ErrUserNotFound
	}
	return mixed, nil
}

func hashToBytes32(hexHash string) [32]byte {
	var out [32]byte
	raw := common.FromHex(hexHash)
	copy(out[:], raw)
	return out
}
