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
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} references in input
// with process environment values, so a committed YAML file can defer
// secrets (RPC endpoints, the AES secret code) to the environment.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// substituteInConfig walks the fields that plausibly carry ${VAR} references.
func substituteInConfig(cfg *Config) {
	cfg.Broker.ProjectID = SubstituteEnvVars(cfg.Broker.ProjectID)
	cfg.Broker.SecretCode = SubstituteEnvVars(cfg.Broker.SecretCode)
	cfg.Broker.Fields = SubstituteEnvVars(cfg.Broker.Fields)
	cfg.Chain.RPCEndpoint = SubstituteEnvVars(cfg.Chain.RPCEndpoint)
	cfg.Chain.ContractAddress = SubstituteEnvVars(cfg.Chain.ContractAddress)
	cfg.Chain.ProgramID = SubstituteEnvVars(cfg.Chain.ProgramID)
	if cfg.TLS != nil {
		cfg.TLS.CertFile = SubstituteEnvVars(cfg.TLS.CertFile)
		cfg.TLS.KeyFile = SubstituteEnvVars(cfg.TLS.KeyFile)
	}
}

// applyEnvironmentOverrides lets a handful of CHAINAUTH_* environment
// variables win over whatever the config file says.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("CHAINAUTH_PORT"); v != "" {
		cfg.Broker.Port = atoiOrDefault(v, cfg.Broker.Port)
	}
	if v := os.Getenv("CHAINAUTH_PROJECT_ID"); v != "" {
		cfg.Broker.ProjectID = v
	}
	if v := os.Getenv("CHAINAUTH_SECRET_CODE"); v != "" {
		cfg.Broker.SecretCode = v
	}
	if v := os.Getenv("CHAINAUTH_CHAIN_RPC"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("CHAINAUTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CHAINAUTH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func atoiOrDefault(s string, def int) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
