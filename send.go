package h2out

import (
	"go.uber.org/zap"
)

// SendChain slices the body chain in into DATA frames bounded by the
// flow control windows, the configured chunk size and the peer's frame
// size, queueing them without copying payload bytes. It returns the
// unconsumed tail, nil once everything including trailers is queued.
//
// When progress is gated on a window, the stream is parked or latched
// exhausted, the write event is marked not ready and the original chain
// comes back unchanged; the caller retries after the event fires.
func (c *Conn) SendChain(s *Stream, in *Chain, limit int64) (*Chain, error) {
	r := s.request

	c.log.Debug("http2 send chain", zap.Uint32("stream", s.id))

	var size int64

	for in != nil {
		size = int64(in.buf.Size())

		if size != 0 || in.buf.lastBuf {
			break
		}

		in = in.next
	}

	if in == nil || s.outClosed {
		if in != nil && size != 0 {
			c.log.Error("output on closed stream",
				zap.Uint32("stream", s.id))
			return nil, ErrClosedStream
		}

		if err := c.filterSend(s); err != nil && err != ErrAgain {
			return nil, err
		}

		return nil, nil
	}

	if size != 0 && !c.flowControl(s) {
		if err := c.filterSend(s); err != nil && err != ErrAgain {
			return nil, err
		}

		if !c.flowControl(s) {
			s.wev.Active = true
			s.wev.Ready = false
			return in, nil
		}
	}

	var offset int64

	if in.buf.tag == tagShadow {
		// unwrap a shadow left over from a previous partial pass: the
		// origin buffer comes back in, the consumed span becomes the
		// offset, and the shadow turns into reusable scratch
		cl := &Chain{buf: in.buf}

		orig := in.buf.shadow
		offset = int64(cl.buf.pos - orig.pos)
		in.buf = orig

		cl.next = s.freeBufs
		s.freeBufs = cl

		size = int64(in.buf.Size()) - offset
	}

	if limit == 0 || limit > int64(c.sendWindow) {
		limit = int64(c.sendWindow)
	}

	if limit > int64(s.sendWindow) {
		if s.sendWindow > 0 {
			limit = int64(s.sendWindow)
		} else {
			limit = 0
		}
	}

	frameSize := c.cfg.ChunkSize
	if frameSize > int(c.frameSize) {
		frameSize = int(c.frameSize)
	}

	var trailers *outFrame
	var out, cl *Chain

	for {
		if int64(frameSize) > limit {
			frameSize = int(limit)
		}

		ln := &out
		rest := int64(frameSize)

		for rest >= size {
			if offset != 0 {
				cl = s.getShadow(in.buf, offset, size)
				offset = 0
			} else {
				cl = &Chain{buf: in.buf}
			}

			*ln = cl
			ln = &cl.next

			rest -= size
			in = in.next

			if in == nil {
				frameSize -= int(rest)
				rest = 0
				cl.next = nil
				break
			}

			size = int64(in.buf.Size())
		}

		if rest > 0 {
			cl = s.getShadow(in.buf, offset, rest)

			cl.buf.flush = false
			cl.buf.lastBuf = false

			*ln = cl

			offset += rest
			size -= rest
		}

		if cl.buf.lastBuf {
			tf, err := c.createTrailersFrame(r)
			if err != nil {
				return nil, err
			}

			if tf != nil {
				// trailers close the stream instead of DATA
				cl.buf.lastBuf = false
				trailers = tf
			}
		}

		if frameSize > 0 || cl.buf.lastBuf {
			frame, err := s.getDataFrame(frameSize, out, cl)
			if err != nil {
				return nil, err
			}

			c.queueFrame(frame)

			c.sendWindow -= frameSize
			s.sendWindow -= frameSize
			s.queued++
		}

		if in == nil {
			if trailers != nil {
				c.queueFrame(trailers)
				s.queued++
			}

			break
		}

		limit -= int64(frameSize)

		if limit == 0 {
			break
		}
	}

	if offset != 0 {
		// the tail buffer was consumed partially: hand the caller a
		// shadow narrowed to what is left
		cl = s.getShadow(in.buf, offset, size)
		in.buf = cl.buf
	}

	if err := c.filterSend(s); err != nil && err != ErrAgain {
		return nil, err
	}

	if in != nil && !c.flowControl(s) {
		s.wev.Active = true
		s.wev.Ready = false
	}

	return in, nil
}
