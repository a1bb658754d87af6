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

// Package notify provides the peer-liveness side channel used alongside a
// shared memory ring. Each peer holds one end of a connected socket pair; a
// readable fd means either a pending wake byte or, on a zero-byte peek, that
// the peer is gone. The fd is an edge signal, not a message queue.
package notify

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWaitTimeout is returned by Wait when the fd does not become readable in
// time.
var ErrWaitTimeout = errors.New("notify: wait timeout")

// Notifier wraps one end of the socket pair.
type Notifier struct {
	fd int
}

// Pair returns the two connected ends. Both are non-blocking; the end handed
// to a child process keeps its descriptor across exec when passed through the
// inherited file set.
func Pair() (*Notifier, *Notifier, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("notify: socketpair: %w", err)
	}
	return &Notifier{fd: fds[0]}, &Notifier{fd: fds[1]}, nil
}

// FromFd wraps an inherited descriptor and switches it to non-blocking mode.
func FromFd(fd int) (*Notifier, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("notify: set nonblock: %w", err)
	}
	return &Notifier{fd: fd}, nil
}

// Signal writes one wake byte. A socket buffer already full of unread wakes
// is fine: the peer is pending wakeup anyway, so EAGAIN is not an error.
func (n *Notifier) Signal() error {
	_, err := unix.Write(n.fd, []byte{1})
	if err == nil || err == unix.EAGAIN || err == unix.EPIPE {
		return nil
	}
	return fmt.Errorf("notify: signal: %w", err)
}

// Drain consumes pending wake bytes so the next poll blocks again.
func (n *Notifier) Drain() error {
	var buf [64]byte
	for {
		nr, err := unix.Read(n.fd, buf[:])
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return fmt.Errorf("notify: drain: %w", err)
		}
		if nr == 0 {
			// EOF; PeerClosed will report it.
			return nil
		}
		if nr < len(buf) {
			return nil
		}
	}
}

// PeerClosed reports whether the remote end has been closed. The peek leaves
// any pending wake bytes in place.
func (n *Notifier) PeerClosed() (bool, error) {
	var buf [1]byte
	nr, _, err := unix.Recvfrom(n.fd, buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if err == unix.EAGAIN {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("notify: peek: %w", err)
	}
	return nr == 0, nil
}

// Wait blocks until the fd is readable or the timeout elapses. A negative
// timeout blocks indefinitely.
func (n *Notifier) Wait(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	fds := []unix.PollFd{{Fd: int32(n.fd), Events: unix.POLLIN}}
	for {
		nr, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("notify: poll: %w", err)
		}
		if nr == 0 {
			return ErrWaitTimeout
		}
		return nil
	}
}

// Fd exposes the descriptor for an embedder's own poll loop, or for handing
// to a child process.
func (n *Notifier) Fd() int {
	return n.fd
}

// Close releases the descriptor. The peer observes closure as a zero-byte
// peek.
func (n *Notifier) Close() error {
	if n.fd < 0 {
		return nil
	}
	fd := n.fd
	n.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("notify: close: %w", err)
	}
	return nil
}
