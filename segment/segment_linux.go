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
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// CreateMemfd makes an anonymous segment with no filesystem presence. The
// descriptor is the only handle; hand it to a child through exec's inherited
// file set. The kernel zeroes memfd pages, so the region is Init-ready.
func CreateMemfd(name string, size int) (*Segment, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}

	fd, err := unix.MemfdCreate(namePrefix+name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("segment: memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), namePrefix+name)

	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: resize memfd: %w", err)
	}

	mem, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: mmap memfd: %w", err)
	}

	return &Segment{file: file, mem: mem, name: name, owner: true}, nil
}

// FromFd maps a segment from an inherited descriptor, typically fd 3 and up
// in an exec'd child. The size must match what the parent created.
func FromFd(fd uintptr, size int) (*Segment, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	file := os.NewFile(fd, "shmipc-inherited")
	if file == nil {
		return nil, fmt.Errorf("segment: invalid inherited fd %d", fd)
	}

	mem, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: mmap inherited fd: %w", err)
	}
	if len(mem) != size {
		mem.Unmap()
		file.Close()
		return nil, fmt.Errorf("segment: inherited fd maps %d bytes, want %d", len(mem), size)
	}

	return &Segment{file: file, mem: mem}, nil
}
