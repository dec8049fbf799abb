package h2out

import (
	"errors"
)

var (
	// ErrAgain is returned when the transport did not accept everything
	// that was queued. The caller retries once the write event fires.
	ErrAgain = errors.New("frames still queued")

	// ErrClosedStream is returned when body bytes arrive after the
	// stream output side has been closed.
	ErrClosedStream = errors.New("output on closed stream")

	// ErrFieldTooLong is returned when a response header name or value
	// exceeds the maximum encodable field length.
	ErrFieldTooLong = errors.New("response header field too long")

	// ErrFlood is returned when the outbound frame ceiling is hit.
	// The whole connection is marked errored.
	ErrFlood = errors.New("too many queued frames")

	// ErrConnClosed is returned on any attempt to emit frames after the
	// connection transport has failed.
	ErrConnClosed = errors.New("connection is errored")

	// ErrRedirectHost is returned when an absolute redirect is requested
	// but no host can be derived for the Location header.
	ErrRedirectHost = errors.New("no host available for absolute redirect")
)
