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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		raw     string
		want    Address
		wantErr bool
	}{
		{raw: "shm://ring", want: Address{Name: "ring", Size: DefaultSize}},
		{raw: "shm:///ring", want: Address{Name: "ring", Size: DefaultSize}},
		{raw: "shm://ring?size=65536", want: Address{Name: "ring", Size: 65536}},
		{raw: "shm://ring?size=4096", want: Address{Name: "ring", Size: 4096}},
		{raw: "tcp://ring", wantErr: true},
		{raw: "shm://", wantErr: true},
		{raw: "shm://ring?size=abc", wantErr: true},
		{raw: "shm://ring?size=0", wantErr: true},
		{raw: "shm://ring?size=-4096", wantErr: true},
		{raw: "shm://ring?size=100", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAddress(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateAddress(t *testing.T) {
	name := uniqueName(t)
	seg, err := CreateAddress(fmt.Sprintf("shm://%s?size=%d", name, pageSize))
	require.NoError(t, err)
	t.Cleanup(func() {
		seg.Close()
		seg.Unlink()
	})

	assert.Equal(t, name, seg.Name())
	assert.Equal(t, pageSize, seg.Size())

	opened, err := OpenAddress(fmt.Sprintf("shm://%s?size=%d", name, 4*pageSize))
	require.NoError(t, err)
	defer opened.Close()

	// The size query on open is advisory; the backing file wins.
	assert.Equal(t, pageSize, opened.Size())
}

func TestCreateAddressRejectsBadAddress(t *testing.T) {
	_, err := CreateAddress("file:///tmp/ring")
	assert.Error(t, err)

	_, err = OpenAddress("shm://")
	assert.Error(t, err)
}
