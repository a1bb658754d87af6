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

// Frame is one record as seen by the reader. It references the shared region
// in place; the payload is valid only until the frame is passed to Consume.
type Frame struct {
	ch     *Channel
	offset uint32
	id     uint32
	size   uint32
}

// StreamID returns the stream id the writer tagged the record with.
func (f *Frame) StreamID() uint32 {
	return f.id
}

// Len returns the payload length in bytes. A zero length is a valid record;
// the router uses it as a stream close marker.
func (f *Frame) Len() uint32 {
	return f.size
}

// Payload returns the record bytes, aliasing the shared region. Callers that
// need the data past Consume must copy it first.
func (f *Frame) Payload() []byte {
	start := f.offset + FrameHeaderSize
	return f.ch.data[start : start+f.size]
}
