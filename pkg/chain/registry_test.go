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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitMixedRejectsWrongLength(t *testing.T) {
	_, _, err := splitMixed([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSplitMixedSplitsEvenly(t *testing.T) {
	enc := bytes.Repeat([]byte{0xAA}, 256)
	sign := bytes.Repeat([]byte{0xBB}, 256)
	mixed := append(append([]byte{}, enc...), sign...)

	gotEnc, gotSign, err := splitMixed(mixed)
	require.NoError(t, err)
	require.Equal(t, enc, gotEnc)
	require.Equal(t, sign, gotSign)
}
