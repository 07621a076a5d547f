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
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoaderOptions controls how Load resolves its inputs.
type LoaderOptions struct {
	// ConfigPath is the YAML file to read. Defaults to "config.yaml".
	ConfigPath string
	// EnvFile is loaded into the process environment before the YAML is
	// parsed, so ${VAR} substitution and the CHAINAUTH_* overrides can see
	// it. Defaults to ".env"; missing is not an error.
	EnvFile string
	// SkipEnvSubstitution disables ${VAR} expansion, for tests that want
	// the raw file contents.
	SkipEnvSubstitution bool
}

// DefaultLoaderOptions returns the loader's defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigPath: "config.yaml",
		EnvFile:    ".env",
	}
}

// Load reads the .env file (if present), parses the YAML config, expands
// ${VAR} references, and applies CHAINAUTH_* environment overrides, in
// that precedence order (file < .env substitution < explicit override).
func Load(opts LoaderOptions) (*Config, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.yaml"
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	if err := godotenv.Load(opts.EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load %s: %w", opts.EnvFile, err)
	}

	cfg, err := LoadFromFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if !opts.SkipEnvSubstitution {
		substituteInConfig(cfg)
	}
	applyEnvironmentOverrides(cfg)

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Validate reports every structural problem found in cfg; an empty slice
// means cfg is ready to build a broker from.
func Validate(cfg *Config) []error {
	var errs []error
	if cfg.Broker.ProjectID == "" {
		errs = append(errs, errors.New("broker.project_id is required"))
	}
	if cfg.Broker.SecretCode == "" {
		errs = append(errs, errors.New("broker.secret_code is required"))
	}
	switch cfg.Chain.Backend {
	case "ethereum":
		if cfg.Chain.RPCEndpoint == "" || cfg.Chain.ContractAddress == "" {
			errs = append(errs, errors.New("chain.rpc_endpoint and chain.contract_address are required for the ethereum backend"))
		}
	case "solana":
		if cfg.Chain.RPCEndpoint == "" || cfg.Chain.ProgramID == "" {
			errs = append(errs, errors.New("chain.rpc_endpoint and chain.program_id are required for the solana backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("chain.backend must be \"ethereum\" or \"solana\", got %q", cfg.Chain.Backend))
	}
	if cfg.TLS != nil {
		if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
			errs = append(errs, errors.New("tls.cert_file and tls.key_file must both be set or both be empty"))
		}
	}
	return errs
}
