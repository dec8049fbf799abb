package h2out

import (
	"github.com/domsolutions/h2out/http2utils"
)

const (
	// FrameHeaderLen is the fixed frame header size.
	// http://httpwg.org/specs/rfc7540.html#FrameHeader
	FrameHeaderLen = 9
)

// FrameType identifies the frame kind.
// https://httpwg.org/specs/rfc7540.html#FrameTypes
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FrameContinuation FrameType = 0x9
)

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "DATA"
	case FrameHeaders:
		return "HEADERS"
	case FrameContinuation:
		return "CONTINUATION"
	}

	return "UNKNOWN"
}

// FrameFlags is the flags octet of a frame header.
type FrameFlags uint8

const (
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
)

// Has returns boolean value indicating if ff has f.
func (ff FrameFlags) Has(f FrameFlags) bool {
	return ff&f == f
}

// Add adds f to ff.
func (ff FrameFlags) Add(f FrameFlags) FrameFlags {
	return ff | f
}

// writeFrameHeader serializes a frame header into dst. The reserved
// high bit of the stream id is cleared.
func writeFrameHeader(dst []byte, length int, kind FrameType, flags FrameFlags, stream uint32) {
	_ = dst[8] // bound checking

	http2utils.Uint24ToBytes(dst[:3], uint32(length))
	dst[3] = byte(kind)
	dst[4] = byte(flags)
	http2utils.Uint32ToBytes(dst[5:], stream&(1<<31-1))
}

// outFrame is a queued outbound frame: the 9-octet header buffer
// followed by zero or more payload links.
type outFrame struct {
	handler func(c *Conn, frame *outFrame) error
	stream  *Stream

	first *Chain
	last  *Chain

	// length is the payload length announced in the frame header. For
	// a HEADERS sequence it additionally covers the CONTINUATION frame
	// headers, so that accounting matches what goes on the wire.
	length int

	// blocked frames keep their queue position on cleanup: they are
	// either inside a HEADERS..CONTINUATION run or partially written.
	blocked bool

	// fin closes the stream output once the frame is fully sent.
	fin bool

	next *outFrame
}
