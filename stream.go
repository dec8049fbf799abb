package h2out

import (
	"go.uber.org/zap"
)

// Stream is the send side of one HTTP/2 stream.
type Stream struct {
	id   uint32
	conn *Conn

	sendWindow int

	// rank is the depth in the dependency tree, relWeight the
	// normalized weight; both only order the waiting queue.
	rank      uint
	relWeight float64

	// queued counts frames currently owned by the outbound queue.
	queued int

	// frames counts descriptors ever allocated for this stream.
	frames int

	sent uint64

	initialized bool
	outClosed   bool
	waiting     bool
	blocked     bool
	exhausted   bool
	errored     bool
	buffered    bool

	wprev *Stream
	wnext *Stream

	freeFrames       *outFrame
	freeFrameHeaders *Chain
	freeBufs         *Chain

	request *Request
	wev     Event
}

// NewStream registers a stream on the connection. The send window
// starts at the peer's initial window setting.
func (c *Conn) NewStream(id uint32, rank uint, relWeight float64) *Stream {
	return &Stream{
		id:         id,
		conn:       c,
		sendWindow: c.initialWindow,
		rank:       rank,
		relWeight:  relWeight,
	}
}

// ID returns the stream id.
func (s *Stream) ID() uint32 {
	return s.id
}

// SendWindow returns the stream level send window.
func (s *Stream) SendWindow() int {
	return s.sendWindow
}

// Queued returns the number of frames of this stream still owned by the
// outbound queue.
func (s *Stream) Queued() int {
	return s.queued
}

// OutClosed reports whether the stream output side has finished.
func (s *Stream) OutClosed() bool {
	return s.outClosed
}

// Exhausted reports whether the stream window latch is set.
func (s *Stream) Exhausted() bool {
	return s.exhausted
}

// Waiting reports whether the stream is parked on the connection
// window.
func (s *Stream) Waiting() bool {
	return s.waiting
}

// WriteEvent exposes the stream's write event for the event loop.
func (s *Stream) WriteEvent() *Event {
	return &s.wev
}

// SetError marks the stream errored, letting handleStream wake it for
// teardown even while exhausted.
func (s *Stream) SetError() {
	s.errored = true
}

// WindowUpdate applies a stream level WINDOW_UPDATE: the exhausted
// latch clears once the window goes positive and the write event is
// posted.
func (s *Stream) WindowUpdate(increment int) {
	s.sendWindow += increment

	s.conn.log.Debug("stream window update",
		zap.Uint32("stream", s.id),
		zap.Int("increment", increment),
		zap.Int("window", s.sendWindow))

	if s.sendWindow > 0 {
		s.exhausted = false

		s.wev.Active = false
		s.wev.Ready = true
		s.conn.postEvent(&s.wev)
	}
}

// initStream runs once per stream when its first header block is
// queued. From here on the stream must be torn down through Cleanup.
func (c *Conn) initStream(s *Stream) {
	if s.initialized {
		return
	}

	s.initialized = true
}

// getShadow builds a non-owning view over buf covering size bytes
// starting at offset past the buffer's cursor.
func (s *Stream) getShadow(buf *Buf, offset, size int64) *Chain {
	cl := chainGetFreeBuf(&s.freeBufs)

	chunk := cl.buf
	*chunk = *buf

	chunk.tag = tagShadow
	chunk.shadow = buf

	chunk.pos = buf.pos + int(offset)
	chunk.last = chunk.pos + int(size)

	return cl
}

// getDataFrame wraps the carved payload chain [first, last] into a DATA
// frame, reusing the stream's recycled descriptors and header buffers.
func (s *Stream) getDataFrame(length int, first, last *Chain) (*outFrame, error) {
	c := s.conn

	frame := s.freeFrames

	switch {
	case frame != nil:
		s.freeFrames = frame.next

	case c.frames < maxQueuedFrames:
		frame = &outFrame{}
		s.frames++
		c.frames++

	default:
		c.log.Info("http2 flood detected", zap.Uint32("stream", s.id))

		c.err = true
		floodsDetected.Inc()

		return nil, ErrFlood
	}

	var flags FrameFlags
	if last.buf.lastBuf {
		flags = FlagEndStream
	}

	c.log.Debug("create DATA frame",
		zap.Uint32("stream", s.id),
		zap.Int("len", length),
		zap.Uint8("flags", uint8(flags)))

	cl := chainGetFreeBuf(&s.freeFrameHeaders)

	buf := cl.buf
	if buf.b == nil {
		buf.b = make([]byte, FrameHeaderLen)
		buf.tag = tagFrameHeader
	}

	writeFrameHeader(buf.b, length, FrameData, flags, s.id)
	buf.pos = 0
	buf.last = FrameHeaderLen

	cl.next = first
	first = cl

	last.buf.flush = true

	frame.first = first
	frame.last = last
	frame.handler = dataFrameHandler
	frame.stream = s
	frame.length = length
	frame.blocked = false
	frame.fin = last.buf.lastBuf
	frame.next = nil

	return frame, nil
}

// headersFrameHandler runs after a send attempt of a HEADERS sequence.
// Chain links are recycled by origin: frame header buffers back to the
// header free list, block views to the buffer free list.
func headersFrameHandler(c *Conn, frame *outFrame) error {
	s := frame.stream
	cl := frame.first

	for {
		if cl.buf.pos != cl.buf.last {
			frame.first = cl

			c.log.Debug("HEADERS frame was sent partially",
				zap.Uint32("stream", s.id))

			return ErrAgain
		}

		ln := cl.next

		if cl.buf.tag == tagFrameHeader {
			cl.next = s.freeFrameHeaders
			s.freeFrameHeaders = cl
		} else {
			cl.next = s.freeBufs
			s.freeBufs = cl
		}

		if cl == frame.last {
			break
		}

		cl = ln
	}

	c.log.Debug("HEADERS frame was sent", zap.Uint32("stream", s.id))

	s.request.HeaderSize += FrameHeaderLen + frame.length

	c.payloadBytes += uint64(frame.length)
	payloadBytes.Add(float64(frame.length))

	c.handleFrame(s, frame)
	c.handleStream(s)

	return nil
}

// dataFrameHandler runs after a send attempt of a DATA frame. Shadow
// cursors are propagated onto their origin buffers before release, so
// the caller's chain reflects exactly what reached the transport.
func dataFrameHandler(c *Conn, frame *outFrame) error {
	s := frame.stream
	cl := frame.first

	done := false

	if cl.buf.tag == tagFrameHeader {
		if cl.buf.pos != cl.buf.last {
			c.log.Debug("DATA frame was sent partially",
				zap.Uint32("stream", s.id))

			return ErrAgain
		}

		ln := cl.next

		cl.next = s.freeFrameHeaders
		s.freeFrameHeaders = cl

		if cl == frame.last {
			done = true
		}

		cl = ln
	}

	for !done {
		if cl.buf.tag == tagShadow {
			cl.buf.shadow.pos = cl.buf.pos
		}

		if cl.buf.Size() != 0 {
			if cl != frame.first {
				frame.first = cl
				c.handleStream(s)
			}

			c.log.Debug("DATA frame was sent partially",
				zap.Uint32("stream", s.id))

			return ErrAgain
		}

		ln := cl.next

		if cl.buf.tag == tagShadow {
			cl.next = s.freeBufs
			s.freeBufs = cl
		}

		if cl == frame.last {
			break
		}

		cl = ln
	}

	c.log.Debug("DATA frame was sent",
		zap.Uint32("stream", s.id),
		zap.Int("len", frame.length))

	s.request.HeaderSize += FrameHeaderLen

	c.payloadBytes += uint64(frame.length)
	payloadBytes.Add(float64(frame.length))

	c.handleFrame(s, frame)
	c.handleStream(s)

	return nil
}

// handleFrame retires a fully sent frame: accounting, fin handling and
// descriptor recycling.
func (c *Conn) handleFrame(s *Stream, frame *outFrame) {
	s.sent += uint64(FrameHeaderLen + frame.length)

	c.totalBytes += uint64(FrameHeaderLen + frame.length)
	totalBytes.Add(float64(FrameHeaderLen + frame.length))

	if frame.fin {
		s.outClosed = true
	}

	frame.next = s.freeFrames
	s.freeFrames = frame

	s.queued--
}

// handleStream posts the stream's write event unless progress is gated
// on the connection window, a synchronous drain, or an exhausted stream
// window.
func (c *Conn) handleStream(s *Stream) {
	if s.waiting || s.blocked {
		return
	}

	if !s.errored && s.exhausted {
		return
	}

	s.wev.Active = false
	s.wev.Ready = true

	if !s.errored && s.wev.Delayed {
		return
	}

	c.postEvent(&s.wev)
}

// Cleanup tears down a stream that still owns queued frames. Queued
// non-blocked frames are dropped and their reserved connection window
// credit returned; a previously starved waiting queue is drained so
// other streams can claim the credit.
func (s *Stream) Cleanup() {
	c := s.conn

	if s.waiting {
		s.waiting = false
		c.waitingRemove(s)
	}

	if s.queued == 0 {
		return
	}

	window := 0

	for fn := &c.lastOut; *fn != nil; {
		frame := *fn

		if frame.stream == s && !frame.blocked {
			*fn = frame.next

			window += frame.length
			queuedFrames.Dec()

			s.queued--
			if s.queued == 0 {
				break
			}

			continue
		}

		fn = &frame.next
	}

	if c.sendWindow == 0 && window > 0 {
		for c.waitingHead != nil {
			ws := c.waitingPop()

			ws.wev.Active = false
			ws.wev.Ready = true

			if !ws.wev.Delayed {
				c.postEvent(&ws.wev)
			}
		}
	}

	c.sendWindow += window
}
