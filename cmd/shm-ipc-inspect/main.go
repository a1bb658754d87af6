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

// Command shm-ipc-inspect reports the layout and live offsets of a shared
// memory channel. Pointed at an existing segment by shm:// address it
// attaches read-only in spirit and dumps the header; with no address it
// creates a scratch segment and probes which payload sizes a fresh ring
// accepts, which is handy when sizing rings for a message mix.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/rakshasa/shm-ipc/channel"
	"github.com/rakshasa/shm-ipc/segment"
)

var (
	addr  = flag.String("addr", "", "attach to an existing segment (shm://name) instead of probing a scratch one")
	pages = flag.Int("pages", 1, "scratch segment size in pages")
)

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *addr != "" {
		inspect(log, *addr)
		return
	}
	probe(log, *pages)
}

func inspect(log zerolog.Logger, addr string) {
	seg, err := segment.OpenAddress(addr)
	if err != nil {
		log.Fatal().Err(err).Msg("open segment")
	}
	defer seg.Close()

	c, err := channel.Attach(seg.Bytes())
	if err != nil {
		log.Fatal().Err(err).Msg("attach channel")
	}

	r, w := c.Offsets()
	fmt.Printf("segment          %s (%d bytes)\n", seg.Name(), seg.Size())
	fmt.Printf("data area        %d bytes\n", c.Size())
	fmt.Printf("read offset      %d\n", r)
	fmt.Printf("write offset     %d\n", w)
	fmt.Printf("available write  %d bytes\n", c.AvailableWrite())
}

func probe(log zerolog.Logger, pages int) {
	seg, err := segment.CreateMemfd("inspect", pages*4096)
	if err != nil {
		log.Fatal().Err(err).Msg("create segment")
	}
	defer seg.Close()

	c, err := channel.Init(seg.Bytes())
	if err != nil {
		log.Fatal().Err(err).Msg("init channel")
	}

	fmt.Printf("segment size     %d bytes\n", seg.Size())
	fmt.Printf("channel header   %d bytes\n", channel.HeaderSize)
	fmt.Printf("data area        %d bytes\n", c.Size())
	fmt.Printf("frame header     %d bytes, %d-byte aligned frames\n\n", channel.FrameHeaderSize, channel.CacheLine)

	for _, size := range []int{10, 50, 100, 500, 1000, 2000, int(c.Size()) - channel.FrameHeaderSize - channel.CacheLine} {
		// Every size is probed on a freshly initialized ring.
		clear(seg.Bytes())
		c, err := channel.Init(seg.Bytes())
		if err != nil {
			log.Fatal().Err(err).Msg("init channel")
		}
		payload := make([]byte, size)
		err = c.Write(2, payload)
		if err != nil {
			fmt.Printf("payload %6d bytes: rejected (%v)\n", size, err)
			continue
		}
		fmt.Printf("payload %6d bytes: ok\n", size)
		f, err := c.Peek()
		if err != nil || f == nil {
			log.Fatal().Err(err).Msg("peek after write")
		}
		if err := c.Consume(f); err != nil {
			log.Fatal().Err(err).Msg("consume")
		}
	}
}
