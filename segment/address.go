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
	"net/url"
	"strconv"
)

// DefaultSize is the segment size used when an address does not carry one.
const DefaultSize = 16 * pageSize

// Address is a parsed shm:// address.
type Address struct {
	Name string
	Size int
}

// ParseAddress parses addresses of the form shm://name?size=65536. The size
// query is optional and defaults to DefaultSize; it must be a positive
// multiple of the page size.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("segment: parse address: %w", err)
	}
	if u.Scheme != "shm" {
		return Address{}, fmt.Errorf("segment: unsupported scheme %q", u.Scheme)
	}
	name := u.Host
	if name == "" {
		// Allow shm:///name with the name in the path.
		name = u.Path
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
	}
	if name == "" {
		return Address{}, fmt.Errorf("segment: address missing name")
	}

	size := DefaultSize
	if s := u.Query().Get("size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return Address{}, fmt.Errorf("segment: invalid size: %w", err)
		}
		if err := checkSize(v); err != nil {
			return Address{}, err
		}
		size = v
	}
	return Address{Name: name, Size: size}, nil
}

// CreateAddress creates the segment an address describes.
func CreateAddress(raw string) (*Segment, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	return Create(addr.Name, addr.Size)
}

// OpenAddress opens the segment an address names; the size query, if any, is
// ignored in favour of the backing file's size.
func OpenAddress(raw string) (*Segment, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	return Open(addr.Name)
}
