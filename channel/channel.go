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

package channel

import (
	"encoding/binary"
	"sync/atomic"
	"time"
	"unsafe"
)

// Memory layout constants. Both peers must be built with the same values;
// they are deliberately fixed rather than derived from the host CPU.
const (
	// CacheLine is the alignment granularity for frames and for the
	// separation of the two atomic offsets.
	CacheLine = 64

	// FrameHeaderSize is the on-ring frame header: payload size (u32) and
	// stream id (u32), little-endian.
	FrameHeaderSize = 8

	// HeaderSize is the channel header placed at offset 0 of the segment,
	// three cache lines: metadata, read offset, write offset.
	HeaderSize = 3 * CacheLine

	// MinDataSize is the smallest usable data area.
	MinDataSize = 4 * CacheLine

	// Magic bytes for channel identification ("SHMC", little-endian).
	channelMagic = uint32(0x434D4853)

	// Current header version.
	channelVersion = uint32(1)

	// padMarker in a frame's size field instructs the reader to resume at
	// offset 0. Such a frame carries id 0 and no payload.
	padMarker = ^uint32(0)

	pageSize = 4096
)

// Shared header field offsets.
const (
	offMagic    = 0x00
	offVersion  = 0x04
	offSize     = 0x08
	offDataSeq  = 0x0C
	offSpaceSeq = 0x10
	offReadOff  = CacheLine     // own cache line, reader-owned
	offWriteOff = 2 * CacheLine // own cache line, writer-owned
)

// Channel is a single-producer single-consumer byte ring carrying framed,
// stream-tagged records, placed in-place over a shared memory region. One
// process writes, the other reads; the roles are fixed for the lifetime of
// the channel. All cross-process synchronisation happens through the two
// atomic offsets in the shared header. Write, Peek and Consume are wait-free.
//
// No pointers are stored in shared memory; each process recomputes its own
// view of the data area on attach, so peers need not map the segment at the
// same address.
type Channel struct {
	mem  []byte // full region, header at offset 0
	data []byte // data area, mem[HeaderSize:HeaderSize+size]
	size uint32 // data area size in bytes
}

// fieldPtr returns an atomically accessible word in the shared header.
// No Go pointers into shared memory are retained; addresses are computed
// on demand from the mapping.
func (c *Channel) fieldPtr(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(&c.mem[off]))
}

func (c *Channel) loadReadOffset() uint32  { return atomic.LoadUint32(c.fieldPtr(offReadOff)) }
func (c *Channel) loadWriteOffset() uint32 { return atomic.LoadUint32(c.fieldPtr(offWriteOff)) }

func alignCacheLine(n uint32) uint32 {
	return (n + CacheLine - 1) &^ (CacheLine - 1)
}

func validateRegion(mem []byte) error {
	if len(mem) == 0 || len(mem)%pageSize != 0 {
		return ErrBadSegmentSize
	}
	if len(mem)-HeaderSize < MinDataSize {
		return ErrTooSmall
	}
	return nil
}

// Init places a channel header at the start of mem and zeroes both offsets.
// It must be called exactly once per region, on the writer side, before the
// peer observes the ring. The region must be zeroed, its length a multiple
// of the page size, and large enough to leave at least MinDataSize bytes of
// data area after the header.
func Init(mem []byte) (*Channel, error) {
	if err := validateRegion(mem); err != nil {
		return nil, err
	}
	c := &Channel{
		mem:  mem,
		size: uint32(len(mem) - HeaderSize),
	}
	c.data = mem[HeaderSize : HeaderSize+int(c.size)]

	if atomic.LoadUint32(c.fieldPtr(offMagic)) == channelMagic {
		return nil, ErrAlreadyInitialized
	}

	binary.LittleEndian.PutUint32(mem[offSize:], c.size)
	atomic.StoreUint32(c.fieldPtr(offDataSeq), 0)
	atomic.StoreUint32(c.fieldPtr(offSpaceSeq), 0)
	atomic.StoreUint32(c.fieldPtr(offReadOff), 0)
	atomic.StoreUint32(c.fieldPtr(offWriteOff), 0)
	binary.LittleEndian.PutUint32(mem[offVersion:], channelVersion)
	// Magic is stamped last so a concurrent Attach never sees a half-built header.
	atomic.StoreUint32(c.fieldPtr(offMagic), channelMagic)

	return c, nil
}

// Attach builds a process-local view over a region whose header was already
// initialized, typically by the peer. Either side may attach; the caller is
// responsible for using the channel in only one role.
func Attach(mem []byte) (*Channel, error) {
	if err := validateRegion(mem); err != nil {
		return nil, err
	}
	if atomic.LoadUint32((*uint32)(unsafe.Pointer(&mem[offMagic]))) != channelMagic {
		return nil, ErrNotInitialized
	}
	if binary.LittleEndian.Uint32(mem[offVersion:]) != channelVersion {
		return nil, ErrVersionMismatch
	}
	size := binary.LittleEndian.Uint32(mem[offSize:])
	if int(size) != len(mem)-HeaderSize {
		return nil, ErrBadSegmentSize
	}
	c := &Channel{
		mem:  mem,
		size: size,
	}
	c.data = mem[HeaderSize : HeaderSize+int(size)]
	return c, nil
}

// Size returns the data area size in bytes.
func (c *Channel) Size() uint32 {
	return c.size
}

// Offsets returns a snapshot of the read and write offsets, for diagnostics
// and tests. The snapshot is only consistent at quiescent points.
func (c *Channel) Offsets() (readOff, writeOff uint32) {
	return c.loadReadOffset(), c.loadWriteOffset()
}

// AvailableWrite returns the largest contiguous free span in bytes. The last
// cache line of free space is reserved to keep read/write offset equality an
// unambiguous empty indication, so the payload bound for an immediately
// following Write is this value minus FrameHeaderSize and CacheLine.
func (c *Channel) AvailableWrite() uint32 {
	r := c.loadReadOffset()
	w := c.loadWriteOffset()

	if w >= r {
		if tail := c.size - w; tail > r {
			return tail
		}
		return r
	}
	return r - w
}

func (c *Channel) putFrameHeader(off, size, id uint32) {
	binary.LittleEndian.PutUint32(c.data[off:], size)
	binary.LittleEndian.PutUint32(c.data[off+4:], id)
}

func (c *Channel) frameAt(off uint32) (size, id uint32) {
	return binary.LittleEndian.Uint32(c.data[off:]), binary.LittleEndian.Uint32(c.data[off+4:])
}

// Write appends one record. It is wait-free: when the ring lacks space it
// returns ErrFull and the caller decides whether to retry, buffer or wait.
// The payload bytes are fully stored before the write offset is published.
func (c *Channel) Write(id uint32, payload []byte) error {
	if id == 0 {
		return ErrInvalidStreamID
	}
	n := uint32(len(payload))
	if n > c.size-FrameHeaderSize {
		return ErrPayloadTooLarge
	}
	frame := alignCacheLine(FrameHeaderSize + n)

	r := c.loadReadOffset()
	w := c.loadWriteOffset()
	wasEmpty := w == r

	if w == c.size {
		w = 0
	}

	switch {
	case w < r:
		// Wrapped: free space is the single span [w, r). Keep one cache
		// line back so w never catches up to r.
		if r-w < frame+CacheLine {
			return ErrFull
		}
	case c.size-w >= frame:
		// Room at the tail.
	default:
		// Tail too short: pad it out and wrap, if the head has room.
		if r < frame+CacheLine {
			return ErrFull
		}
		c.putFrameHeader(w, padMarker, 0)
		w = 0
	}

	c.putFrameHeader(w, n, id)
	copy(c.data[w+FrameHeaderSize:], payload)

	newW := w + frame
	if newW == c.size {
		newW = 0
	}
	atomic.StoreUint32(c.fieldPtr(offWriteOff), newW)

	if wasEmpty {
		// Empty -> non-empty transition: wake a blocked reader.
		atomic.AddUint32(c.fieldPtr(offDataSeq), 1)
		wakeWaiters(c.fieldPtr(offDataSeq))
	}
	return nil
}

// Peek returns the next unconsumed frame without advancing the read offset,
// or (nil, nil) when the ring is empty. A padding marker at the tail is
// skipped transparently; a second consecutive marker, an empty ring behind a
// marker, or an oversize frame mean the ring can no longer be drained safely
// and are reported as corruption. The frame's payload references the shared
// region in place and is valid only until Consume.
func (c *Channel) Peek() (*Frame, error) {
	r := c.loadReadOffset()
	w := c.loadWriteOffset()
	if r == w {
		return nil, nil
	}

	size, id := c.frameAt(r)
	if size == padMarker {
		r = 0
		if r == w {
			return nil, ErrCorruptPadding
		}
		size, id = c.frameAt(r)
		if size == padMarker {
			return nil, ErrCorruptPadding
		}
	}

	if uint64(r)+FrameHeaderSize+uint64(size) > uint64(c.size) {
		return nil, ErrCorruptFrame
	}

	return &Frame{ch: c, offset: r, id: id, size: size}, nil
}

// Consume advances the read offset past a frame returned by Peek, releasing
// its bytes back to the writer. The frame, and any payload slice taken from
// it, must not be used afterwards.
func (c *Channel) Consume(f *Frame) error {
	newR := f.offset + alignCacheLine(FrameHeaderSize+f.size)
	if newR > c.size {
		return ErrCorruptOffset
	}
	if newR == c.size {
		newR = 0
	}

	r := c.loadReadOffset()
	w := c.loadWriteOffset()
	var used uint32
	if w >= r {
		used = w - r
	} else {
		used = c.size - (r - w)
	}

	atomic.StoreUint32(c.fieldPtr(offReadOff), newR)

	if free := c.size - used; free < c.size/4 {
		// The writer may have backed off on ErrFull; let it retry.
		atomic.AddUint32(c.fieldPtr(offSpaceSeq), 1)
		wakeWaiters(c.fieldPtr(offSpaceSeq))
	}
	return nil
}

// WaitRead blocks until the ring plausibly has data to read, the timeout
// elapses, or a spurious wakeup occurs. Callers must re-check with Peek;
// a nil return is a hint, not a guarantee.
func (c *Channel) WaitRead(timeout time.Duration) error {
	seq := atomic.LoadUint32(c.fieldPtr(offDataSeq))
	if c.loadReadOffset() != c.loadWriteOffset() {
		return nil
	}
	return waitSeq(c.fieldPtr(offDataSeq), seq, timeout)
}

// WaitWrite blocks until the reader signals freed space after the call, the
// timeout elapses, or a spurious wakeup occurs. It does not look at the
// ring's current free space, and space wakes are gated on ring pressure, so
// callers should use a bounded timeout and retry Write.
func (c *Channel) WaitWrite(timeout time.Duration) error {
	seq := atomic.LoadUint32(c.fieldPtr(offSpaceSeq))
	return waitSeq(c.fieldPtr(offSpaceSeq), seq, timeout)
}
