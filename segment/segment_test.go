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

package segment

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nameCounter int

func uniqueName(t *testing.T) string {
	t.Helper()
	nameCounter++
	return fmt.Sprintf("test_%d_%d", os.Getpid(), nameCounter)
}

func createSegment(t *testing.T, size int) *Segment {
	t.Helper()
	s, err := Create(uniqueName(t), size)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		s.Unlink()
	})
	return s
}

func TestCreateValidation(t *testing.T) {
	for _, size := range []int{0, -pageSize, pageSize - 1, pageSize + 1} {
		_, err := Create(uniqueName(t), size)
		assert.ErrorIs(t, err, ErrBadSize, "size %d", size)
	}
}

func TestCreateZeroedAndSized(t *testing.T) {
	s := createSegment(t, 2*pageSize)
	require.Equal(t, 2*pageSize, s.Size())
	require.Len(t, s.Bytes(), 2*pageSize)
	for i, b := range s.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestCreateRefusesExistingName(t *testing.T) {
	name := uniqueName(t)
	s, err := Create(name, pageSize)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		s.Unlink()
	})

	_, err = Create(name, pageSize)
	require.Error(t, err, "existing segment must not be silently reused")
}

func TestOpenSeesPeerWrites(t *testing.T) {
	name := uniqueName(t)
	owner, err := Create(name, pageSize)
	require.NoError(t, err)
	t.Cleanup(func() {
		owner.Close()
		owner.Unlink()
	})

	copy(owner.Bytes(), []byte("across the mapping"))
	require.NoError(t, owner.Sync())

	peer, err := Open(name)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	assert.Equal(t, owner.Size(), peer.Size())
	assert.Equal(t, "across the mapping", string(peer.Bytes()[:18]))

	// Writes travel the other way too.
	peer.Bytes()[0] = 'X'
	assert.Equal(t, byte('X'), owner.Bytes()[0])
}

func TestCloseIdempotentAndUnlink(t *testing.T) {
	name := uniqueName(t)
	s, err := Create(name, pageSize)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Unlink())

	_, err = Open(name)
	require.Error(t, err, "unlinked segment must not open")
}

func TestSplitDuplex(t *testing.T) {
	s := createSegment(t, 4*pageSize)

	a, b, err := SplitDuplex(s.Bytes())
	require.NoError(t, err)
	require.Len(t, a, 2*pageSize)
	require.Len(t, b, 2*pageSize)

	a[0] = 0x11
	b[0] = 0x22
	assert.Equal(t, byte(0x11), s.Bytes()[0])
	assert.Equal(t, byte(0x22), s.Bytes()[2*pageSize])
}

func TestSplitDuplexValidation(t *testing.T) {
	_, _, err := SplitDuplex(nil)
	assert.ErrorIs(t, err, ErrBadSize)
	_, _, err = SplitDuplex(make([]byte, pageSize))
	assert.ErrorIs(t, err, ErrBadSize)
}
