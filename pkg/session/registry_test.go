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

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateAssignsUniqueIDs(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	a := reg.Create(uuid.NewString(), KindWidget)
	b := reg.Create(uuid.NewString(), KindWidget)

	require.NotEqual(t, a.ClientID, b.ClientID)
	require.NotEqual(t, a.SessionID, b.SessionID)

	got, ok := reg.ByClientID(a.ClientID)
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestActivateRejectsDoubleCheck(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	widget := reg.Create(uuid.NewString(), KindWidget)
	_, err := reg.Activate(widget.SessionID, "alice")
	require.NoError(t, err)

	_, err = reg.Activate(widget.SessionID, "alice")
	require.ErrorIs(t, err, ErrAlreadyAliased)
}

func TestPairIsSymmetric(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	widget := reg.Create(uuid.NewString(), KindWidget)
	_, err := reg.Activate(widget.SessionID, "alice")
	require.NoError(t, err)

	auth := reg.Create(uuid.NewString(), KindAuthenticator)
	_, err = reg.Pair(widget.ClientSessionID, auth)
	require.NoError(t, err)

	require.Equal(t, auth.ClientID, widget.PeerID)
	require.Equal(t, widget.ClientID, auth.PeerID)
	require.Equal(t, widget.Alias, auth.Alias)
}

func TestPairUnknownClientSessionID(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	auth := reg.Create(uuid.NewString(), KindAuthenticator)
	_, err := reg.Pair("does-not-exist", auth)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	rec := reg.Create(uuid.NewString(), KindWidget)
	reg.Remove(rec.ClientID, "success")
	reg.Remove(rec.ClientID, "success")

	_, ok := reg.ByClientID(rec.ClientID)
	require.False(t, ok)
	require.Equal(t, 0, reg.Count())
}

func TestReapFiresOnAuthWindowTimeout(t *testing.T) {
	var mu sync.Mutex
	var reaped *Record

	reg := NewRegistry(20*time.Millisecond, func(rec *Record) {
		mu.Lock()
		reaped = rec
		mu.Unlock()
	})
	defer reg.Close()

	rec := reg.Create(uuid.NewString(), KindWidget)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reaped != nil && reaped.ClientID == rec.ClientID
	}, time.Second, 5*time.Millisecond)

	_, ok := reg.ByClientID(rec.ClientID)
	require.False(t, ok)
}

func TestConcurrentCreateAndRemove(t *testing.T) {
	reg := NewRegistry(time.Minute, nil)
	defer reg.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := reg.Create(uuid.NewString(), KindAuthenticator)
			reg.Remove(rec.ClientID, "success")
		}()
	}
	wg.Wait()
	require.Equal(t, 0, reg.Count())
}
