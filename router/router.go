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

// Package router multiplexes logical streams over a duplex pair of shared
// memory channels. Each process owns one Router; the router owns the handler
// map and the id allocator, dispatches inbound frames in ring order, and
// never spawns goroutines. A Router is single-threaded by contract: all
// methods must be called from one goroutine.
package router

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rakshasa/shm-ipc/channel"
	"github.com/rakshasa/shm-ipc/notify"
)

const (
	// ControlStreamID carries new-stream announcements. It is bound when a
	// stream factory is installed and cannot be allocated dynamically.
	ControlStreamID = 1

	firstDynamicID = 2

	// announceSize is the wire size of a new-stream announcement: one
	// little-endian u32 id.
	announceSize = 4
)

// Handler receives the frames of one stream. OnRead gets each payload in
// ring order; the slice aliases shared memory and is valid only during the
// call. A zero-length payload signals the peer closed the stream. OnError
// receives the same payload when OnRead panics.
type Handler struct {
	OnRead  func(p []byte)
	OnError func(p []byte)
}

// StreamFactory decides which handler serves a stream the peer announced.
type StreamFactory func(id uint32) Handler

// Option configures a Router at construction.
type Option func(*Router)

// WithNotifier attaches the peer-liveness fd. The router signals it after
// outbound writes and checks it for peer closure when the inbound ring runs
// dry.
func WithNotifier(n *notify.Notifier) Option {
	return func(r *Router) { r.notifier = n }
}

// WithLogger sets the logger used for dropped frames and lifecycle events.
// Without it the router is silent.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithStreamFactory installs the policy for inbound new-stream
// announcements and binds the control handler at id 1.
func WithStreamFactory(f StreamFactory) Option {
	return func(r *Router) { r.factory = f }
}

// Router is one process's endpoint of a duplex shared memory link.
type Router struct {
	in  *channel.Channel
	out *channel.Channel

	notifier *notify.Notifier
	log      zerolog.Logger
	factory  StreamFactory

	handlers map[uint32]Handler
	nextID   uint32

	// poisoned latches the first unrecoverable error; every later call
	// short-circuits to it.
	poisoned error
}

// New builds a router over an inbound and an outbound channel. The channels
// are owned by the caller; their segment lifecycle is external to the router.
func New(inbound, outbound *channel.Channel, opts ...Option) *Router {
	r := &Router{
		in:       inbound,
		out:      outbound,
		log:      zerolog.Nop(),
		handlers: make(map[uint32]Handler),
		nextID:   firstDynamicID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory != nil {
		r.handlers[ControlStreamID] = Handler{OnRead: r.handleControl}
	}
	return r
}

// RegisterHandler installs h at the next free id and returns the id. Ids are
// monotonic and never reused; unregistering leaks the id by design.
func (r *Router) RegisterHandler(h Handler) (uint32, error) {
	if r.poisoned != nil {
		return 0, r.poisoned
	}
	if r.nextID < firstDynamicID {
		return 0, ErrIDExhausted
	}
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	r.log.Debug().Uint32("stream", id).Msg("handler registered")
	return id, nil
}

// RegisterHandlerAt installs h at an explicit id, for streams whose id both
// peers agreed on out of band.
func (r *Router) RegisterHandlerAt(id uint32, h Handler) error {
	if r.poisoned != nil {
		return r.poisoned
	}
	if id == 0 {
		return ErrInvalidID
	}
	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	r.handlers[id] = h
	if id >= r.nextID {
		r.nextID = id + 1
	}
	r.log.Debug().Uint32("stream", id).Msg("handler registered at explicit id")
	return nil
}

// UnregisterHandler removes the handler for id. Frames already in the ring
// for that id fall to the unknown-id sink. The id is not reusable.
func (r *Router) UnregisterHandler(id uint32) {
	delete(r.handlers, id)
	r.log.Debug().Uint32("stream", id).Msg("handler unregistered")
}

// Write appends one outbound frame and wakes the peer. A full ring returns
// channel.ErrFull; the caller retries or prearranges with AvailableWrite on
// the outbound channel.
func (r *Router) Write(id uint32, p []byte) error {
	if r.poisoned != nil {
		return r.poisoned
	}
	if err := r.out.Write(id, p); err != nil {
		return err
	}
	r.signalPeer()
	return nil
}

// Announce sends a new-stream announcement for id on the control stream. The
// peer's stream factory decides what handler to install. A full ring here is
// ErrControlBlocked: the handshake cannot block or drop.
func (r *Router) Announce(id uint32) error {
	if r.poisoned != nil {
		return r.poisoned
	}
	var buf [announceSize]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	if err := r.out.Write(ControlStreamID, buf[:]); err != nil {
		if errors.Is(err, channel.ErrFull) {
			return fmt.Errorf("%w: announcing stream %d", ErrControlBlocked, id)
		}
		return err
	}
	r.signalPeer()
	return nil
}

// OpenStream registers h, announces the new id to the peer and returns it.
// On an announce failure the handler is removed again.
func (r *Router) OpenStream(h Handler) (uint32, error) {
	id, err := r.RegisterHandler(h)
	if err != nil {
		return 0, err
	}
	if err := r.Announce(id); err != nil {
		delete(r.handlers, id)
		return 0, err
	}
	return id, nil
}

// CloseStream writes the advisory zero-length close frame for id and removes
// the local handler. A full ring leaves the handler in place so the caller
// can retry.
func (r *Router) CloseStream(id uint32) error {
	if r.poisoned != nil {
		return r.poisoned
	}
	if err := r.out.Write(id, nil); err != nil {
		return err
	}
	r.signalPeer()
	r.UnregisterHandler(id)
	return nil
}

// ProcessReads drains the inbound ring: peek, dispatch, consume, until the
// ring is empty. The frame is always consumed, handler fault or not. When
// the ring runs dry and the notifier reports the peer closed, ErrPeerGone is
// returned so the embedder can leave its poll loop.
func (r *Router) ProcessReads() error {
	if r.poisoned != nil {
		return r.poisoned
	}
	if r.notifier != nil {
		if err := r.notifier.Drain(); err != nil {
			r.log.Warn().Err(err).Msg("notifier drain failed")
		}
	}
	for {
		f, err := r.in.Peek()
		if err != nil {
			// Corruption. The ring cannot be drained further.
			r.poisoned = err
			return err
		}
		if f == nil {
			if r.notifier != nil {
				closed, err := r.notifier.PeerClosed()
				if err != nil {
					r.log.Warn().Err(err).Msg("notifier peek failed")
				} else if closed {
					return ErrPeerGone
				}
			}
			return nil
		}

		r.dispatch(f.StreamID(), f.Payload())

		if err := r.in.Consume(f); err != nil {
			r.poisoned = err
			return err
		}
		if r.poisoned != nil {
			return r.poisoned
		}
	}
}

// dispatch routes one frame. Unknown ids are logged and dropped; a
// zero-length payload on a data stream is the advisory close, delivered to
// OnRead and followed by automatic unregistration.
func (r *Router) dispatch(id uint32, p []byte) {
	h, ok := r.handlers[id]
	if !ok {
		r.log.Warn().Uint32("stream", id).Int("bytes", len(p)).Msg("frame for unknown stream dropped")
		return
	}
	r.invoke(h, p)
	if len(p) == 0 && id != ControlStreamID {
		r.UnregisterHandler(id)
	}
}

// invoke runs OnRead with fault containment: a panic routes the same bytes
// to OnError, and a panic escaping OnError poisons the router.
func (r *Router) invoke(h Handler, p []byte) {
	defer func() {
		if cause := recover(); cause != nil {
			r.invokeOnError(h, p, cause)
		}
	}()
	if h.OnRead != nil {
		h.OnRead(p)
	}
}

func (r *Router) invokeOnError(h Handler, p []byte, cause any) {
	r.log.Error().Interface("cause", cause).Int("bytes", len(p)).Msg("handler panicked in OnRead")
	if h.OnError == nil {
		r.poisoned = fmt.Errorf("%w: OnRead panic with no OnError: %v", ErrHandlerFault, cause)
		return
	}
	defer func() {
		if second := recover(); second != nil {
			r.poisoned = fmt.Errorf("%w: OnError panic: %v (after OnRead panic: %v)", ErrHandlerFault, second, cause)
		}
	}()
	h.OnError(p)
}

// handleControl serves the control stream: a 4-byte little-endian id asks
// the stream factory for a handler and installs it. Malformed announcements
// and reserved or occupied ids are logged and dropped.
func (r *Router) handleControl(p []byte) {
	if len(p) != announceSize {
		r.log.Warn().Int("bytes", len(p)).Msg("malformed stream announcement dropped")
		return
	}
	id := binary.LittleEndian.Uint32(p)
	if id < firstDynamicID {
		r.log.Warn().Uint32("stream", id).Msg("announcement for reserved id dropped")
		return
	}
	if _, exists := r.handlers[id]; exists {
		r.log.Warn().Uint32("stream", id).Msg("announcement for occupied id dropped")
		return
	}
	r.handlers[id] = r.factory(id)
	if id >= r.nextID {
		r.nextID = id + 1
	}
	r.log.Debug().Uint32("stream", id).Msg("stream installed from announcement")
}

func (r *Router) signalPeer() {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Signal(); err != nil {
		r.log.Warn().Err(err).Msg("notifier signal failed")
	}
}

// FileDescriptor returns the notifier fd for the embedder's poll loop, or -1
// when the router has no notifier.
func (r *Router) FileDescriptor() int {
	if r.notifier == nil {
		return -1
	}
	return r.notifier.Fd()
}

// Close releases the notifier. The channels and their segment belong to the
// caller and stay untouched.
func (r *Router) Close() error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Close()
}
