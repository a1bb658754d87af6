/*
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
 */

// Package channel implements a single-producer single-consumer byte ring over
// a shared memory region, carrying framed records tagged with a stream id.
//
// The ring is placed in place over the region: a fixed header holds the two
// atomic offsets on separate cache lines, and the remaining bytes form the
// data area. Frames are cache-line aligned and written contiguously; when a
// frame does not fit the tail of the ring a padding marker redirects the
// reader to offset zero. Write, Peek and Consume never block and never spin;
// a writer that finds the ring full gets ErrFull and decides for itself.
//
// Blocking is opt-in through WaitRead and WaitWrite, which park on sequence
// words in the shared header. Wakes are gated on the transitions that matter
// (empty to non-empty for readers, pressure relief for writers), so the hot
// path stays free of kernel transitions.
package channel
