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

// Command shm-ipc-bench measures ring throughput with one writer and one
// reader goroutine over a memfd-backed segment, with a live readout. The
// optional zstd mode sends compressed payloads and decompresses them on the
// read side, approximating a log-shipping workload.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/gosuri/uilive"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/rakshasa/shm-ipc/channel"
	"github.com/rakshasa/shm-ipc/segment"
)

var (
	duration    = flag.Duration("d", 5*time.Second, "benchmark duration")
	payloadSize = flag.Int("size", 256, "payload size in bytes")
	pages       = flag.Int("pages", 16, "segment size in pages")
	useZstd     = flag.Bool("zstd", false, "send zstd-compressed payloads")
)

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	seg, err := segment.CreateMemfd("bench", *pages*4096)
	if err != nil {
		log.Fatal().Err(err).Msg("segment")
	}
	defer seg.Close()

	wch, err := channel.Init(seg.Bytes())
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	rch, err := channel.Attach(seg.Bytes())
	if err != nil {
		log.Fatal().Err(err).Msg("attach")
	}

	payload := make([]byte, *payloadSize)
	rand.Read(payload)

	var enc *zstd.Encoder
	var dec *zstd.Decoder
	if *useZstd {
		if enc, err = zstd.NewWriter(nil); err != nil {
			log.Fatal().Err(err).Msg("zstd encoder")
		}
		if dec, err = zstd.NewReader(nil); err != nil {
			log.Fatal().Err(err).Msg("zstd decoder")
		}
		payload = enc.EncodeAll(payload, nil)
		log.Info().Int("raw", *payloadSize).Int("compressed", len(payload)).Msg("zstd mode")
	}

	var msgs, bytes atomic.Uint64
	stop := make(chan struct{})
	done := make(chan struct{})

	// Keep a frame of headroom so a write never lands flush against a
	// reader parked at offset 0.
	headroom := uint32(len(payload)) + channel.FrameHeaderSize + 3*channel.CacheLine

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if wch.AvailableWrite() < headroom {
				wch.WaitWrite(time.Millisecond)
				continue
			}
			if err := wch.Write(2, payload); err != nil {
				log.Fatal().Err(err).Msg("write")
			}
		}
	}()

	go func() {
		defer close(done)
		for {
			f, err := rch.Peek()
			if err != nil {
				log.Fatal().Err(err).Msg("peek")
			}
			if f == nil {
				select {
				case <-stop:
					return
				default:
				}
				rch.WaitRead(time.Millisecond)
				continue
			}
			if dec != nil {
				raw, err := dec.DecodeAll(f.Payload(), nil)
				if err != nil || len(raw) != *payloadSize {
					log.Fatal().Err(err).Int("got", len(raw)).Msg("decompress")
				}
			}
			n := uint64(f.Len())
			if err := rch.Consume(f); err != nil {
				log.Fatal().Err(err).Msg("consume")
			}
			msgs.Add(1)
			bytes.Add(n)
		}
	}()

	lw := uilive.New()
	lw.Start()
	start := time.Now()
	ticker := time.NewTicker(100 * time.Millisecond)
	for now := range ticker.C {
		elapsed := now.Sub(start)
		if elapsed >= *duration {
			break
		}
		secs := elapsed.Seconds()
		fmt.Fprintf(lw, "%8.1fs  %12.0f msgs/s  %8.1f MB/s\n",
			secs, float64(msgs.Load())/secs, float64(bytes.Load())/secs/1e6)
	}
	ticker.Stop()
	close(stop)
	<-done
	lw.Stop()

	secs := time.Since(start).Seconds()
	log.Info().
		Uint64("messages", msgs.Load()).
		Float64("msgs_per_sec", float64(msgs.Load())/secs).
		Float64("mb_per_sec", float64(bytes.Load())/secs/1e6).
		Msg("benchmark complete")
}
