//go:build linux && (amd64 || arm64)

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
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The sequence words live in the shared header and are waited on from two
// different processes, so the non-private futex ops are required here; the
// PRIVATE variants only match waiters within one address space.
//
// golang.org/x/sys/unix does not export the futex operation codes, so the
// fixed kernel ABI values (linux/futex.h) are used directly here.
const (
	futexWait = 0
	futexWake = 1
)

// waitSeq blocks until the sequence word at addr moves past seq, the timeout
// elapses, or a signal interrupts the wait. A nil return does not guarantee
// the condition the sequence guards; callers re-check and retry.
func waitSeq(addr *uint32, seq uint32, timeout time.Duration) error {
	// Re-check after the snapshot so a wake between snapshot and syscall
	// entry is not lost; the kernel repeats the same check under its lock.
	if atomic.LoadUint32(addr) != seq {
		return nil
	}

	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		uintptr(seq),
		uintptr(unsafe.Pointer(ts)),
		0,
		0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrWaitTimeout
	default:
		return fmt.Errorf("channel: futex wait: %w", errno)
	}
}

// wakeWaiters wakes all peers blocked on the sequence word at addr. Wake
// errors are swallowed: the waiter side is timeout-bounded and recovers on
// its own.
func wakeWaiters(addr *uint32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake,
		uintptr(^uint32(0)>>1),
		0,
		0,
		0,
	)
}
