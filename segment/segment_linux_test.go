//go:build linux

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreateMemfd(t *testing.T) {
	s, err := CreateMemfd("memtest", 2*pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.Equal(t, 2*pageSize, s.Size())
	for i, b := range s.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
	require.NoError(t, s.Unlink(), "memfd has no filesystem presence to unlink")
}

// A second mapping of the same memfd, through a duplicated descriptor as a
// child would hold, shares pages with the first.
func TestFromFdSharesPages(t *testing.T) {
	owner, err := CreateMemfd("memshare", pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { owner.Close() })

	dup, err := unix.Dup(int(owner.Fd()))
	require.NoError(t, err)

	child, err := FromFd(uintptr(dup), pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { child.Close() })

	copy(owner.Bytes(), []byte("inherited"))
	assert.Equal(t, "inherited", string(child.Bytes()[:9]))

	child.Bytes()[0] = 'X'
	assert.Equal(t, byte('X'), owner.Bytes()[0])
}

func TestFromFdSizeMismatch(t *testing.T) {
	owner, err := CreateMemfd("memsize", pageSize)
	require.NoError(t, err)
	t.Cleanup(func() { owner.Close() })

	dup, err := unix.Dup(int(owner.Fd()))
	require.NoError(t, err)

	_, err = FromFd(uintptr(dup), 2*pageSize)
	require.Error(t, err)
}
