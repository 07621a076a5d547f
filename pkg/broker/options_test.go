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

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chainauth/broker/pkg/chain"
)

type nullRegistry struct{}

func (nullRegistry) GetUserKeys(ctx context.Context, alias string) ([]byte, []byte, error) {
	return nil, nil, chain.ErrUserNotFound
}

func validOptions() Options {
	return Options{
		ProjectID:  uuid.NewString(),
		SecretCode: []byte("0123456789abcdef"),
		Registry:   nullRegistry{},
		OnSuccess: func(ctx context.Context, in SuccessInput) (SuccessOutput, error) {
			return SuccessOutput{}, nil
		},
	}
}

func TestWithDefaultsFillsInUnsetFields(t *testing.T) {
	opts, err := validOptions().withDefaults()
	require.NoError(t, err)
	require.Equal(t, 31313, opts.Port)
	require.Equal(t, 2*time.Minute, opts.AuthWindow)
	require.Equal(t, 30*time.Second, opts.SocketPingTimeout)
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	o := validOptions()
	o.Port = 9999
	o.AuthWindow = 5 * time.Minute
	o.SocketPingTimeout = 10 * time.Second

	opts, err := o.withDefaults()
	require.NoError(t, err)
	require.Equal(t, 9999, opts.Port)
	require.Equal(t, 5*time.Minute, opts.AuthWindow)
	require.Equal(t, 10*time.Second, opts.SocketPingTimeout)
}

func TestWithDefaultsRejectsInvalidProjectID(t *testing.T) {
	o := validOptions()
	o.ProjectID = "not-a-uuid"
	_, err := o.withDefaults()
	require.ErrorIs(t, err, ErrInvalidProjectID)
}

func TestWithDefaultsRejectsBadSecretCodeLength(t *testing.T) {
	o := validOptions()
	o.SecretCode = []byte("too-short")
	_, err := o.withDefaults()
	require.ErrorIs(t, err, ErrInvalidSecretCode)
}

func TestWithDefaultsAcceptsAllValidAESKeyLengths(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		o := validOptions()
		o.SecretCode = make([]byte, n)
		_, err := o.withDefaults()
		require.NoError(t, err, "key length %d should be valid", n)
	}
}

func TestWithDefaultsRejectsMissingRegistry(t *testing.T) {
	o := validOptions()
	o.Registry = nil
	_, err := o.withDefaults()
	require.ErrorIs(t, err, ErrMissingRegistry)
}

func TestWithDefaultsRejectsMissingOnSuccess(t *testing.T) {
	o := validOptions()
	o.OnSuccess = nil
	_, err := o.withDefaults()
	require.ErrorIs(t, err, ErrMissingOnSuccess)
}
