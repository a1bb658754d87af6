//go:build !linux || (!amd64 && !arm64)

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
	"sync/atomic"
	"time"
)

// Fallback for platforms without cross-process futex support: poll the
// sequence word. Correctness matches the futex path, only latency differs.

const pollInterval = 100 * time.Microsecond

func waitSeq(addr *uint32, seq uint32, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for atomic.LoadUint32(addr) == seq {
		if timeout > 0 && time.Now().After(deadline) {
			return ErrWaitTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func wakeWaiters(*uint32) {}
