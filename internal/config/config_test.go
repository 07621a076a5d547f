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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
environment: production
broker:
  project_id: "11111111-1111-1111-1111-111111111111"
  secret_code: "${SECRET_CODE_B64}"
  fields: "device_id"
chain:
  backend: ethereum
  rpc_endpoint: "${ETH_RPC}"
  contract_address: "0xabc"
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, 31313, cfg.Broker.Port)
	require.Equal(t, 2*time.Minute, cfg.Broker.AuthWindow)
	require.Equal(t, 30*time.Second, cfg.Broker.SocketPingTimeout)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestSubstituteEnvVarsUsesDefaultWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("CHAINAUTH_TEST_VAR"))
	out := SubstituteEnvVars("${CHAINAUTH_TEST_VAR:fallback}")
	require.Equal(t, "fallback", out)
}

func TestSubstituteEnvVarsPrefersEnv(t *testing.T) {
	t.Setenv("CHAINAUTH_TEST_VAR", "from-env")
	out := SubstituteEnvVars("${CHAINAUTH_TEST_VAR:fallback}")
	require.Equal(t, "from-env", out)
}

func TestLoadExpandsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	t.Setenv("SECRET_CODE_B64", "MTIzNDU2Nzg5MDEyMzQ1Ng==")
	t.Setenv("ETH_RPC", "https://rpc.example.com")

	cfg, err := Load(LoaderOptions{ConfigPath: path, EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	require.Equal(t, "MTIzNDU2Nzg5MDEyMzQ1Ng==", cfg.Broker.SecretCode)
	require.Equal(t, "https://rpc.example.com", cfg.Chain.RPCEndpoint)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{
		Broker: BrokerConfig{ProjectID: "x", SecretCode: "y"},
		Chain:  ChainConfig{Backend: "bitcoin"},
	}
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
}

func TestValidateRejectsMissingProjectID(t *testing.T) {
	cfg := &Config{
		Chain: ChainConfig{Backend: "ethereum", RPCEndpoint: "x", ContractAddress: "y"},
	}
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
}

func TestValidateAcceptsCompleteSolanaConfig(t *testing.T) {
	cfg := &Config{
		Broker: BrokerConfig{ProjectID: "x", SecretCode: "y"},
		Chain:  ChainConfig{Backend: "solana", RPCEndpoint: "x", ProgramID: "y"},
	}
	require.Empty(t, Validate(cfg))
}
