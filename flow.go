package h2out

import (
	"go.uber.org/zap"
)

// flowControl reports whether the stream may emit DATA right now. A
// non-positive stream window latches exhausted; a zero connection
// window parks the stream in the weighted waiting queue.
func (c *Conn) flowControl(s *Stream) bool {
	c.log.Debug("windows",
		zap.Uint32("stream", s.id),
		zap.Int("conn", c.sendWindow),
		zap.Int("stream_window", s.sendWindow))

	if s.sendWindow <= 0 {
		s.exhausted = true
		return false
	}

	if c.sendWindow == 0 {
		c.waitingQueue(s)
		return false
	}

	return true
}

// waitingQueue parks s on the connection window, keeping the queue
// ordered by rank ascending and, within a rank, by relative weight
// descending. The scan runs tail to head so that equal-priority streams
// stay in arrival order.
func (c *Conn) waitingQueue(s *Stream) {
	if s.waiting {
		return
	}

	s.waiting = true

	q := c.waitingTail
	for q != nil {
		if q.rank < s.rank ||
			(q.rank == s.rank && q.relWeight >= s.relWeight) {
			break
		}

		q = q.wprev
	}

	c.waitingInsertAfter(q, s)
}

// waitingInsertAfter links s after q; a nil q inserts at the head.
func (c *Conn) waitingInsertAfter(q, s *Stream) {
	s.wprev = q

	if q == nil {
		s.wnext = c.waitingHead

		if c.waitingHead != nil {
			c.waitingHead.wprev = s
		}
		c.waitingHead = s
	} else {
		s.wnext = q.wnext

		if q.wnext != nil {
			q.wnext.wprev = s
		}
		q.wnext = s
	}

	if s.wnext == nil {
		c.waitingTail = s
	}
}

// waitingPop unlinks and returns the head of the waiting queue.
func (c *Conn) waitingPop() *Stream {
	s := c.waitingHead
	if s == nil {
		return nil
	}

	c.waitingHead = s.wnext
	if c.waitingHead != nil {
		c.waitingHead.wprev = nil
	} else {
		c.waitingTail = nil
	}

	s.wnext = nil
	s.wprev = nil
	s.waiting = false

	return s
}

// waitingRemove unlinks s from wherever it sits in the queue.
func (c *Conn) waitingRemove(s *Stream) {
	if s.wprev != nil {
		s.wprev.wnext = s.wnext
	} else if c.waitingHead == s {
		c.waitingHead = s.wnext
	}

	if s.wnext != nil {
		s.wnext.wprev = s.wprev
	} else if c.waitingTail == s {
		c.waitingTail = s.wprev
	}

	s.wprev = nil
	s.wnext = nil
}
