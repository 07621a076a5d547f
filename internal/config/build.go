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

package config

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"

	"github.com/chainauth/broker/pkg/broker"
	"github.com/chainauth/broker/pkg/chain"
)

// BuildRegistry constructs the chain.Registry backend named by
// cfg.Chain.Backend.
func BuildRegistry(ctx context.Context, cfg *Config) (chain.Registry, error) {
	switch cfg.Chain.Backend {
	case "ethereum":
		return chain.NewEthereumRegistry(ctx, cfg.Chain.RPCEndpoint, cfg.Chain.ContractAddress)
	case "solana":
		return chain.NewSolanaRegistry(cfg.Chain.RPCEndpoint, cfg.Chain.ProgramID)
	default:
		return nil, fmt.Errorf("config: unknown chain backend %q", cfg.Chain.Backend)
	}
}

// BuildTLS loads cfg.TLS's certificate pair into a *tls.Config, or returns
// nil if TLS is unset (plaintext listener).
func BuildTLS(cfg *Config) (*tls.Config, error) {
	if cfg.TLS == nil || cfg.TLS.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// BrokerOptions fills in every field of broker.Options that config can
// supply; the caller is still responsible for Registry, OnUserValidate,
// OnActivate, and OnSuccess, which are application callbacks the broker
// never constructs on its own.
func BrokerOptions(cfg *Config) (broker.Options, error) {
	secretCode, err := base64.StdEncoding.DecodeString(cfg.Broker.SecretCode)
	if err != nil {
		return broker.Options{}, fmt.Errorf("config: broker.secret_code is not valid base64: %w", err)
	}
	tlsConfig, err := BuildTLS(cfg)
	if err != nil {
		return broker.Options{}, err
	}

	return broker.Options{
		Debug:             cfg.Broker.Debug,
		Port:              cfg.Broker.Port,
		ProjectID:         cfg.Broker.ProjectID,
		SecretCode:        secretCode,
		Fields:            cfg.Broker.Fields,
		TLS:               tlsConfig,
		AuthWindow:        cfg.Broker.AuthWindow,
		SocketPingTimeout: cfg.Broker.SocketPingTimeout,
	}, nil
}
