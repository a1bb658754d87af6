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

// Package segment manages the shared memory regions that channels are placed
// over. A segment is a file in /dev/shm (or an anonymous memfd) mapped shared
// into both peers; creation zeroes it, which is what channel.Init expects.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

const (
	pageSize   = 4096
	namePrefix = "shmipc_"
)

var (
	// ErrBadSize reports a requested size that is not a positive multiple
	// of the page size.
	ErrBadSize = errors.New("segment: size must be a positive multiple of the page size")

	// ErrClosed reports use of a segment after Close.
	ErrClosed = errors.New("segment: closed")
)

// Segment is a mapped shared memory region. The owner side creates and later
// unlinks it; the peer opens it by name or inherits its file descriptor.
type Segment struct {
	file  *os.File
	mem   mmap.MMap
	path  string
	name  string
	owner bool
}

func checkSize(size int) error {
	if size <= 0 || size%pageSize != 0 {
		return ErrBadSize
	}
	return nil
}

// Create makes a new zeroed segment of the given size and maps it. The name
// must be unique; an existing segment with the same name is an error rather
// than silently reused.
func Create(name string, size int) (*Segment, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("segment: resize %s: %w", path, err)
	}

	mem, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("segment: mmap %s: %w", path, err)
	}

	return &Segment{file: file, mem: mem, path: path, name: name, owner: true}, nil
}

// Open maps an existing segment created by the peer. The size is taken from
// the backing file.
func Open(name string) (*Segment, error) {
	path := segmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: stat %s: %w", path, err)
	}
	if err := checkSize(int(info.Size())); err != nil {
		file.Close()
		return nil, err
	}

	mem, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: mmap %s: %w", path, err)
	}

	return &Segment{file: file, mem: mem, path: path, name: name}, nil
}

// segmentPath prefers /dev/shm, falling back to the temporary directory on
// hosts where it is absent.
func segmentPath(name string) string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", namePrefix+name)
	}
	return filepath.Join(os.TempDir(), namePrefix+name)
}

// Bytes returns the mapped region. The slice is valid until Close.
func (s *Segment) Bytes() []byte {
	return s.mem
}

// Size returns the mapped size in bytes.
func (s *Segment) Size() int {
	return len(s.mem)
}

// Name returns the segment name given at Create or Open. Inherited segments
// have an empty name.
func (s *Segment) Name() string {
	return s.name
}

// Fd returns the backing file descriptor, for passing to a child process.
func (s *Segment) Fd() uintptr {
	return s.file.Fd()
}

// Sync flushes the mapping to the backing object.
func (s *Segment) Sync() error {
	if s.mem == nil {
		return ErrClosed
	}
	if err := s.mem.Flush(); err != nil {
		return fmt.Errorf("segment: msync: %w", err)
	}
	return nil
}

// Close unmaps the region and closes the file. It does not remove the
// backing file; the owner calls Unlink for that. Close is idempotent.
func (s *Segment) Close() error {
	if s.mem == nil {
		return nil
	}
	err := s.mem.Unmap()
	s.mem = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("segment: close: %w", err)
	}
	return nil
}

// Unlink removes the backing file. Peers that still hold a mapping keep it;
// the region disappears when the last mapping goes away. Segments without a
// filesystem presence (memfd) have nothing to unlink.
func (s *Segment) Unlink() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("segment: unlink: %w", err)
	}
	return nil
}

// SplitDuplex carves a region into two equal page-aligned halves, one per
// direction of a duplex router.
func SplitDuplex(mem []byte) (a, b []byte, err error) {
	if len(mem) == 0 || len(mem)%(2*pageSize) != 0 {
		return nil, nil, ErrBadSize
	}
	half := len(mem) / 2
	return mem[:half:half], mem[half:], nil
}
