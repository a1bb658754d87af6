package channel

import "errors"

// Sentinel errors returned by channel operations. ErrFull and ErrWaitTimeout
// are expected flow control outcomes; the remaining errors indicate misuse or
// a damaged shared region.
var (
	// ErrFull reports that the ring has no contiguous span large enough for
	// the frame. The writer may retry after the reader consumes.
	ErrFull = errors.New("channel: ring full")

	// ErrInvalidStreamID reports a write with the reserved stream id 0.
	ErrInvalidStreamID = errors.New("channel: invalid stream id 0")

	// ErrPayloadTooLarge reports a payload that can never fit the data area.
	ErrPayloadTooLarge = errors.New("channel: payload exceeds data area")

	// ErrWaitTimeout is returned by WaitRead and WaitWrite when the timeout
	// elapses before a wake.
	ErrWaitTimeout = errors.New("channel: wait timeout")

	// ErrBadSegmentSize reports a region whose length is not a positive
	// multiple of the page size, or that disagrees with the stored size.
	ErrBadSegmentSize = errors.New("channel: bad segment size")

	// ErrTooSmall reports a region too small to hold the header and a
	// minimal data area.
	ErrTooSmall = errors.New("channel: region too small")

	// ErrAlreadyInitialized reports an Init over a region that already
	// carries a channel header.
	ErrAlreadyInitialized = errors.New("channel: already initialized")

	// ErrNotInitialized reports an Attach to a region with no channel header.
	ErrNotInitialized = errors.New("channel: not initialized")

	// ErrVersionMismatch reports a header written by an incompatible build.
	ErrVersionMismatch = errors.New("channel: header version mismatch")

	// ErrCorruptPadding reports a padding marker with no frame behind it, or
	// two consecutive markers.
	ErrCorruptPadding = errors.New("channel: corrupt padding frame")

	// ErrCorruptFrame reports a frame whose stored size exceeds the ring.
	ErrCorruptFrame = errors.New("channel: corrupt frame header")

	// ErrCorruptOffset reports a consume that would move the read offset
	// past the end of the data area.
	ErrCorruptOffset = errors.New("channel: corrupt read offset")
)
