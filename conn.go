package h2out

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// defaultInitialWindow is the flow control window every stream and
	// the connection start with before any SETTINGS arrive.
	// https://httpwg.org/specs/rfc7540.html#InitialWindowSize
	defaultInitialWindow = 65535

	// minFrameSize and maxFrameSize bound SETTINGS_MAX_FRAME_SIZE.
	minFrameSize = 1 << 14
	maxFrameSize = 1<<24 - 1

	// maxQueuedFrames caps live outbound frame descriptors on one
	// connection before it is torn down as a flood.
	maxQueuedFrames = 10000
)

// Event models a level-triggered write event of one stream. The owner
// of the connection drains posted events between filter re-entries.
type Event struct {
	Active  bool
	Ready   bool
	Delayed bool

	// Handler runs when the posted event is dispatched. It typically
	// retries the send that previously returned the chain unconsumed.
	Handler func()

	posted bool
}

// ConnOpts configures a Conn.
type ConnOpts struct {
	Config *Config
	Logger *zap.Logger

	// TLS selects the https scheme for absolute redirects.
	TLS bool

	// LocalAddr is the listening address, used as the redirect host of
	// last resort and as the port source.
	LocalAddr net.Addr

	// InitialWindow is the peer's SETTINGS_INITIAL_WINDOW_SIZE applied
	// to new streams. Defaults to 65535.
	InitialWindow int

	// FrameSize is the peer's SETTINGS_MAX_FRAME_SIZE.
	// Defaults to 16384.
	FrameSize uint32
}

// Conn is the send side state shared by all streams multiplexed over
// one transport. It is owned by a single goroutine; mutual exclusion
// comes from run-to-completion of every entry point.
type Conn struct {
	w   io.Writer
	log *zap.Logger
	cfg *Config

	tls       bool
	localAddr net.Addr

	sendWindow    int
	initialWindow int
	frameSize     uint32

	// tableUpdate requests a "dynamic table size update to 0" prefix on
	// the next emitted header block.
	tableUpdate bool

	lastOut *outFrame

	waitingHead *Stream
	waitingTail *Stream

	frames       int
	totalBytes   uint64
	payloadBytes uint64

	err      bool
	buffered bool

	posted []*Event

	now func() time.Time
}

// NewConn wraps a transport writer into the filter's connection state.
func NewConn(w io.Writer, opts ConnOpts) *Conn {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	win := opts.InitialWindow
	if win == 0 {
		win = defaultInitialWindow
	}

	c := &Conn{
		w:             w,
		log:           log,
		cfg:           cfg,
		tls:           opts.TLS,
		localAddr:     opts.LocalAddr,
		sendWindow:    defaultInitialWindow,
		initialWindow: win,
		frameSize:     minFrameSize,
		now:           time.Now,
	}

	if opts.FrameSize != 0 {
		c.SetFrameSize(opts.FrameSize)
	}

	return c
}

// SetFrameSize applies the peer's SETTINGS_MAX_FRAME_SIZE, clamped to
// the protocol bounds.
func (c *Conn) SetFrameSize(size uint32) {
	if size < minFrameSize {
		size = minFrameSize
	}
	if size > maxFrameSize {
		size = maxFrameSize
	}

	c.frameSize = size
}

// SetTableUpdate arranges for the next header block to acknowledge the
// peer's dynamic table resize with a size-0 update opcode.
func (c *Conn) SetTableUpdate() {
	c.tableUpdate = true
}

// SendWindow returns the connection level send window.
func (c *Conn) SendWindow() int {
	return c.sendWindow
}

// Frames returns the live outbound frame descriptor count.
func (c *Conn) Frames() int {
	return c.frames
}

// TotalBytes returns the frame bytes handed to the transport.
func (c *Conn) TotalBytes() uint64 {
	return c.totalBytes
}

// PayloadBytes returns the frame payload bytes handed to the transport.
func (c *Conn) PayloadBytes() uint64 {
	return c.payloadBytes
}

// Errored reports whether the transport failed or a flood was detected.
func (c *Conn) Errored() bool {
	return c.err
}

// queueFrame appends a frame to the outbound queue. Submission order is
// transmission order.
func (c *Conn) queueFrame(frame *outFrame) {
	frame.next = nil

	fn := &c.lastOut
	for *fn != nil {
		fn = &(*fn).next
	}
	*fn = frame

	queuedFrames.Inc()
}

// queueBlockedFrame appends a frame whose queue position is fixed: it
// is part of a HEADERS sequence and survives stream cleanup.
func (c *Conn) queueBlockedFrame(frame *outFrame) {
	c.queueFrame(frame)
}

// WindowUpdate applies a connection level WINDOW_UPDATE: credit is
// added and every parked stream is woken in queue order.
func (c *Conn) WindowUpdate(increment int) {
	c.sendWindow += increment

	c.log.Debug("connection window update",
		zap.Int("increment", increment),
		zap.Int("window", c.sendWindow))

	for c.waitingHead != nil {
		s := c.waitingPop()

		s.wev.Active = false
		s.wev.Ready = true
		c.postEvent(&s.wev)
	}
}

// postEvent places ev on the deferred queue unless it is already there.
func (c *Conn) postEvent(ev *Event) {
	if ev.posted {
		return
	}

	ev.posted = true
	c.posted = append(c.posted, ev)
}

// RunPostedEvents dispatches the deferred event queue, including events
// posted by the handlers it runs.
func (c *Conn) RunPostedEvents() {
	for len(c.posted) > 0 {
		ev := c.posted[0]
		c.posted = c.posted[1:]
		ev.posted = false

		if ev.Handler != nil {
			ev.Handler()
		}
	}
}

// SendOutputQueue drains queued frames to the transport. A short write
// leaves the current frame queued with its cursors advanced; the next
// call resumes exactly there. Handlers of fully written frames recycle
// their buffers and release stream accounting.
func (c *Conn) SendOutputQueue() error {
	if c.err {
		return errors.WithStack(ErrConnClosed)
	}

	var werr error

writing:
	for frame := c.lastOut; frame != nil; frame = frame.next {
		for cl := frame.first; ; cl = cl.next {
			if cl.buf.Size() > 0 {
				n, err := c.w.Write(cl.buf.Bytes())
				cl.buf.pos += n

				if err != nil {
					werr = err
					break writing
				}

				if cl.buf.pos != cl.buf.last {
					// transport saturated
					break writing
				}
			}

			if cl == frame.last {
				break
			}
		}
	}

	if werr != nil {
		c.err = true
		return errors.Wrap(werr, "send output queue")
	}

	for c.lastOut != nil {
		frame := c.lastOut
		next := frame.next

		if err := frame.handler(c, frame); err != nil {
			// partially sent, keep its queue position on cleanup
			frame.blocked = true
			break
		}

		c.lastOut = next
		queuedFrames.Dec()
	}

	c.buffered = c.lastOut != nil

	return nil
}

// filterSend flushes the queue on behalf of one stream and reports
// whether its frames are gone.
func (c *Conn) filterSend(s *Stream) error {
	if s.queued == 0 && !c.buffered {
		s.buffered = false
		return nil
	}

	s.blocked = true

	if err := c.SendOutputQueue(); err != nil {
		s.errored = true
		return err
	}

	s.blocked = false

	if s.queued > 0 {
		s.buffered = true
		s.wev.Active = true
		s.wev.Ready = false
		return ErrAgain
	}

	s.buffered = false

	return nil
}
