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

// Package config loads the broker's YAML configuration file, merges it
// with process environment (including a .env file), and turns the result
// into the pkg/broker.Options/pkg/chain.Registry the CLI needs to start.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of the broker's configuration file.
type Config struct {
	Environment string          `yaml:"environment"`
	Broker      BrokerConfig    `yaml:"broker"`
	Chain       ChainConfig     `yaml:"chain"`
	TLS         *TLSConfig      `yaml:"tls"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// BrokerConfig mirrors the closed set of pkg/broker.Options construction
// parameters that are safe to externalize into a config file.
type BrokerConfig struct {
	Debug             bool          `yaml:"debug"`
	Port              int           `yaml:"port"`
	ProjectID         string        `yaml:"project_id"`
	SecretCode        string        `yaml:"secret_code"` // base64
	Fields            string        `yaml:"fields"`
	AuthWindow        time.Duration `yaml:"auth_window"`
	SocketPingTimeout time.Duration `yaml:"socket_ping_timeout"`
}

// ChainConfig selects and configures one chain.Registry backend.
type ChainConfig struct {
	// Backend is "ethereum" or "solana".
	Backend string `yaml:"backend"`

	// RPCEndpoint is used by both backends; ContractAddress by ethereum only.
	RPCEndpoint     string `yaml:"rpc_endpoint"`
	ContractAddress string `yaml:"contract_address"`

	// Solana fields.
	ProgramID string `yaml:"program_id"`
}

// TLSConfig names the certificate/key pair to terminate TLS with. Both
// fields empty means plaintext.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// setDefaults fills in zero-valued fields the same way pkg/broker.Options
// does, so a config file may omit them entirely.
func setDefaults(cfg *Config) {
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 31313
	}
	if cfg.Broker.AuthWindow == 0 {
		cfg.Broker.AuthWindow = 2 * time.Minute
	}
	if cfg.Broker.SocketPingTimeout == 0 {
		cfg.Broker.SocketPingTimeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Chain.Backend == "" {
		cfg.Chain.Backend = "ethereum"
	}
}

// LoadFromFile reads and parses a YAML config file at path.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}
