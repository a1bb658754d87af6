package router

import "errors"

var (
	// ErrPeerGone reports that the notifier observed the peer's end of the
	// socket pair closed. The ring may still be drained; no new frames will
	// arrive.
	ErrPeerGone = errors.New("router: peer gone")

	// ErrHandlerFault reports a panic escaping an OnError callback. The
	// router is poisoned; every later call returns this error.
	ErrHandlerFault = errors.New("router: handler fault")

	// ErrControlBlocked reports a full outbound ring during a control
	// stream write. Control messages must not be dropped silently, so the
	// condition surfaces instead of retrying.
	ErrControlBlocked = errors.New("router: control stream blocked")

	// ErrIDExhausted reports that the monotonic id space ran out. Ids are
	// never reused, so this is terminal for the router.
	ErrIDExhausted = errors.New("router: stream ids exhausted")

	// ErrInvalidID reports a registration with the reserved id 0.
	ErrInvalidID = errors.New("router: invalid stream id")

	// ErrDuplicateID reports a registration at an id that already has a
	// handler.
	ErrDuplicateID = errors.New("router: duplicate stream id")
)
