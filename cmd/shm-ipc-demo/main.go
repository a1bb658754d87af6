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

// Command shm-ipc-demo runs a two-process ping-pong over a shared memory
// segment. The parent creates an anonymous memfd segment and a notifier
// socket pair, re-execs itself as the child with both descriptors inherited,
// and exchanges greetings over a dynamically announced stream.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/rakshasa/shm-ipc/channel"
	"github.com/rakshasa/shm-ipc/notify"
	"github.com/rakshasa/shm-ipc/router"
	"github.com/rakshasa/shm-ipc/segment"
)

const (
	segmentSize = 8 * 4096

	// Inherited descriptor slots in the child, after stdio.
	segmentFdSlot = 3
	notifyFdSlot  = 4

	pollTimeout = 100 * time.Millisecond
)

var (
	childMode = flag.Bool("child", false, "run as the forked child (internal)")
	messages  = flag.Int("n", 5, "number of greetings to exchange")
)

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var err error
	if *childMode {
		err = runChild(log.With().Str("role", "child").Logger())
	} else {
		err = runParent(log.With().Str("role", "parent").Logger())
	}
	if err != nil {
		log.Fatal().Err(err).Msg("demo failed")
	}
}

func runParent(log zerolog.Logger) error {
	seg, err := segment.CreateMemfd("demo", segmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	local, remote, err := notify.Pair()
	if err != nil {
		return err
	}
	defer local.Close()

	// Parent owns initialization of both rings; the child only attaches.
	toChild, fromChild, err := initDuplex(seg.Bytes())
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(self, "-child", "-n", fmt.Sprint(*messages))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{
		os.NewFile(seg.Fd(), "shm-segment"),
		os.NewFile(uintptr(remote.Fd()), "shm-notify"),
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn child: %w", err)
	}
	remote.Close()
	log.Info().Int("pid", cmd.Process.Pid).Msg("child started")

	r := router.New(fromChild, toChild,
		router.WithNotifier(local),
	)

	echoes := 0
	id, err := r.OpenStream(router.Handler{
		OnRead: func(p []byte) {
			if len(p) == 0 {
				return
			}
			echoes++
			log.Info().Str("echo", string(p)).Msg("received")
		},
	})
	if err != nil {
		return err
	}
	log.Info().Uint32("stream", id).Msg("stream announced")

	for i := 0; i < *messages; i++ {
		msg := fmt.Sprintf("hello %d", i)
		for {
			if toChild.AvailableWrite() < 4*channel.CacheLine {
				toChild.WaitWrite(pollTimeout)
				continue
			}
			if err := r.Write(id, []byte(msg)); err != nil {
				return err
			}
			break
		}
	}

	for echoes < *messages {
		if err := r.ProcessReads(); err != nil {
			if err == router.ErrPeerGone {
				return fmt.Errorf("child exited early after %d echoes", echoes)
			}
			return err
		}
		if echoes < *messages {
			local.Wait(pollTimeout)
		}
	}

	if err := r.CloseStream(id); err != nil {
		return err
	}
	r.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("child: %w", err)
	}
	log.Info().Int("echoes", echoes).Msg("done")
	return nil
}

func runChild(log zerolog.Logger) error {
	seg, err := segment.FromFd(segmentFdSlot, segmentSize)
	if err != nil {
		return err
	}
	defer seg.Close()

	n, err := notify.FromFd(notifyFdSlot)
	if err != nil {
		return err
	}

	fromParent, toParent, err := attachDuplex(seg.Bytes())
	if err != nil {
		return err
	}

	var r *router.Router
	r = router.New(fromParent, toParent,
		router.WithNotifier(n),
		router.WithStreamFactory(func(id uint32) router.Handler {
			log.Info().Uint32("stream", id).Msg("stream installed")
			return router.Handler{
				OnRead: func(p []byte) {
					if len(p) == 0 {
						log.Info().Uint32("stream", id).Msg("stream closed by peer")
						return
					}
					log.Info().Str("msg", string(p)).Msg("echoing")
					if err := r.Write(id, p); err != nil {
						log.Warn().Err(err).Msg("echo dropped")
					}
				},
			}
		}),
	)
	defer r.Close()

	for {
		err := r.ProcessReads()
		if err == router.ErrPeerGone {
			log.Info().Msg("parent gone, exiting")
			return nil
		}
		if err != nil {
			return err
		}
		n.Wait(pollTimeout)
	}
}

// initDuplex initializes both rings of a freshly created segment and returns
// the parent's writer and reader views.
func initDuplex(mem []byte) (toChild, fromChild *channel.Channel, err error) {
	a, b, err := segment.SplitDuplex(mem)
	if err != nil {
		return nil, nil, err
	}
	if toChild, err = channel.Init(a); err != nil {
		return nil, nil, err
	}
	if fromChild, err = channel.Init(b); err != nil {
		return nil, nil, err
	}
	return toChild, fromChild, nil
}

// attachDuplex builds the child's views over rings the parent initialized.
func attachDuplex(mem []byte) (fromParent, toParent *channel.Channel, err error) {
	a, b, err := segment.SplitDuplex(mem)
	if err != nil {
		return nil, nil, err
	}
	if fromParent, err = channel.Attach(a); err != nil {
		return nil, nil, err
	}
	if toParent, err = channel.Attach(b); err != nil {
		return nil, nil, err
	}
	return fromParent, toParent, nil
}
