//go:build unix

/*
 *
 * Copyright 2025 shm-ipc authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Notifier, *Notifier) {
	t.Helper()
	a, b, err := Pair()
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestSignalWaitDrain(t *testing.T) {
	a, b := newPair(t)

	require.NoError(t, a.Signal())
	require.NoError(t, b.Wait(time.Second))

	closed, err := b.PeerClosed()
	require.NoError(t, err)
	assert.False(t, closed, "pending wake byte must not read as closure")

	require.NoError(t, b.Drain())
	assert.ErrorIs(t, b.Wait(10*time.Millisecond), ErrWaitTimeout)
}

func TestWaitTimeout(t *testing.T) {
	_, b := newPair(t)

	start := time.Now()
	err := b.Wait(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPeerClosed(t *testing.T) {
	a, b := newPair(t)

	closed, err := b.PeerClosed()
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, a.Close())

	// Closure makes the fd readable and peeks as zero bytes.
	require.NoError(t, b.Wait(time.Second))
	closed, err = b.PeerClosed()
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestSignalFloodDoesNotFail(t *testing.T) {
	a, b := newPair(t)

	// Fill the socket buffer; Signal must swallow EAGAIN.
	for i := 0; i < 1<<18; i++ {
		require.NoError(t, a.Signal())
	}
	require.NoError(t, b.Drain())
}

func TestCloseIdempotent(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
