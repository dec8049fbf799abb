package h2out

import (
	"bytes"
	"net"
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const httpTimeLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// httpTimeLen is the encoded size of an IMF-fixdate value.
const httpTimeLen = len(httpTimeLayout)

// appendHTTPTime appends t formatted as an IMF-fixdate.
func appendHTTPTime(dst []byte, t time.Time) []byte {
	return t.UTC().AppendFormat(dst, httpTimeLayout)
}

// HeaderFilter serializes the response status line and headers of r
// into a HEADERS (+CONTINUATION) sequence and queues it. On success the
// stream accepts body bytes through SendChain. Returns ErrAgain when
// frames are still queued behind a saturated transport.
func (c *Conn) HeaderFilter(r *Request) error {
	if r.HeaderSent {
		return nil
	}

	r.HeaderSent = true

	s := r.stream

	c.log.Debug("http2 header filter", zap.Uint32("stream", s.id))

	if s.errored || c.err {
		return ErrConnClosed
	}

	if bytes.Equal(r.Method, StringHEAD) {
		r.HeaderOnly = true
	}

	out := &r.Out

	var status byte

	switch out.Status {
	case fasthttp.StatusOK:
		status = indexed(status200Index)

	case fasthttp.StatusNoContent:
		r.HeaderOnly = true

		out.ContentType = nil
		out.ContentTypeLen = 0
		out.ContentLengthN = -1
		out.LastModifiedTime = -1

		status = indexed(status204Index)

	case fasthttp.StatusPartialContent:
		status = indexed(status206Index)

	case fasthttp.StatusNotModified:
		r.HeaderOnly = true
		status = indexed(status304Index)

	default:
		out.LastModifiedTime = -1

		status = statusIndexed(out.Status)
	}

	l := 0
	if c.tableUpdate {
		l++
	}

	if status != 0 {
		l++
	} else {
		l += 1 + literalSize(3)
	}

	cfg := c.cfg

	if out.Server == nil {
		switch cfg.ServerTokens {
		case TokensOn:
			l += 1 + literalSize(len(cfg.ServerVersion))
		case TokensBuild:
			l += 1 + literalSize(len(cfg.ServerBuild))
		default:
			l += 1 + len(serverShort)
		}
	} else {
		l += 1 + hpackIntOctets + len(out.Server)
	}

	if out.Date == nil {
		l += 1 + literalSize(httpTimeLen)
	} else {
		l += 1 + hpackIntOctets + len(out.Date)
	}

	if len(out.ContentType) > 0 {
		l += 1 + hpackIntOctets + len(out.ContentType)

		if out.ContentTypeLen == len(out.ContentType) && len(out.Charset) > 0 {
			l += len(strCharset) + len(out.Charset)
		}
	}

	if out.ContentLengthN >= 0 {
		l += 1 + hpackIntOctets + 20
	}

	if out.LastModifiedTime != -1 {
		l += 1 + literalSize(httpTimeLen)
	}

	if len(out.Location) > 0 {
		if out.Location[0] == '/' && cfg.AbsoluteRedirect {
			if err := c.rewriteLocation(r); err != nil {
				return err
			}
		}

		l += 1 + hpackIntOctets + len(out.Location)
	}

	tmpLen := l

	if r.GzipVary {
		if cfg.GzipVary {
			l += 1 + len(acceptEncoding)
		} else {
			r.GzipVary = false
		}
	}

	for i := range out.Headers {
		h := &out.Headers[i]

		if h.hash == 0 {
			continue
		}

		if len(h.key) > maxField {
			c.log.Error("too long response header name",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return ErrFieldTooLong
		}

		if len(h.value) > maxField {
			c.log.Error("too long response header value",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return ErrFieldTooLong
		}

		l += 1 + hpackIntOctets + len(h.key) + hpackIntOctets + len(h.value)

		if len(h.key) > tmpLen {
			tmpLen = len(h.key)
		}

		if len(h.value) > tmpLen {
			tmpLen = len(h.value)
		}
	}

	tmp := bytebufferpool.Get()
	defer bytebufferpool.Put(tmp)

	if cap(tmp.B) < tmpLen {
		tmp.B = make([]byte, 0, tmpLen)
	}

	pos := make([]byte, 0, l)

	if c.tableUpdate {
		c.log.Debug("http2 table size update: 0")

		pos = appendTableSizeUpdate(pos)
		c.tableUpdate = false
	}

	c.log.Debug("http2 output header",
		zap.Uint32("stream", s.id),
		zap.Int("status", out.Status))

	if status != 0 {
		pos = append(pos, status)
	} else {
		pos = appendStatus(pos, out.Status)
	}

	if out.Server == nil {
		pos = append(pos, incIndexed(serverIndex))

		switch cfg.ServerTokens {
		case TokensOn:
			pos = append(pos, serverVerEncoded(cfg.ServerVersion)...)
		case TokensBuild:
			pos = append(pos, serverBuildEncoded(cfg.ServerBuild)...)
		default:
			pos = append(pos, serverShort[:]...)
		}
	} else {
		pos = append(pos, incIndexed(serverIndex))
		pos = appendValue(pos, out.Server)
	}

	if out.Date == nil {
		pos = append(pos, incIndexed(dateIndex))
		pos = appendValue(pos, appendHTTPTime(nil, c.now()))
	} else {
		pos = append(pos, incIndexed(dateIndex))
		pos = appendValue(pos, out.Date)
	}

	if len(out.ContentType) > 0 {
		pos = append(pos, incIndexed(contentTypeIndex))

		if out.ContentTypeLen == len(out.ContentType) && len(out.Charset) > 0 {
			ct := make([]byte, 0,
				len(out.ContentType)+len(strCharset)+len(out.Charset))

			ct = append(ct, out.ContentType...)
			ct = append(ct, strCharset...)
			ct = append(ct, out.Charset...)

			// keep the combined value visible for logging
			out.ContentType = ct
		}

		pos = appendValue(pos, out.ContentType)
	}

	if out.ContentLengthN >= 0 {
		pos = append(pos, incIndexed(contentLengthIndex))

		n := len(pos)
		pos = append(pos, 0)
		pos = strconv.AppendInt(pos, out.ContentLengthN, 10)
		pos[n] = encodeRaw | byte(len(pos)-n-1)
	}

	if out.LastModifiedTime != -1 {
		pos = append(pos, incIndexed(lastModifiedIndex))

		lm := appendHTTPTime(nil, time.Unix(out.LastModifiedTime, 0))
		pos = appendValue(pos, lm)
	}

	if len(out.Location) > 0 {
		c.log.Debug("http2 output header",
			zap.Uint32("stream", s.id),
			zap.ByteString("location", out.Location))

		pos = append(pos, incIndexed(locationIndex))
		pos = appendValue(pos, out.Location)
	}

	if r.GzipVary {
		pos = append(pos, incIndexed(varyIndex))
		pos = append(pos, acceptEncoding[:]...)
	}

	for i := range out.Headers {
		h := &out.Headers[i]

		if h.hash == 0 {
			continue
		}

		pos = append(pos, 0)
		pos = appendName(pos, h.key, tmp)
		pos = appendValue(pos, h.value)
	}

	fin := r.HeaderOnly ||
		(out.ContentLengthN == 0 && !r.ExpectTrailers)

	frame := c.createHeadersFrame(s, pos, fin, false)

	c.queueBlockedFrame(frame)
	s.queued++

	c.initStream(s)

	return c.filterSend(s)
}

// EarlyHintsFilter emits a 103 header block carrying the current
// additional header list. It may run any number of times before
// HeaderFilter; a list with no live entries emits nothing.
func (c *Conn) EarlyHintsFilter(r *Request) error {
	s := r.stream

	if s.errored || c.err {
		return ErrConnClosed
	}

	out := &r.Out

	l := 0
	tmpLen := 0

	for i := range out.Headers {
		h := &out.Headers[i]

		if h.hash == 0 {
			continue
		}

		if len(h.key) > maxField {
			c.log.Error("too long response header name",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return ErrFieldTooLong
		}

		if len(h.value) > maxField {
			c.log.Error("too long response header value",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return ErrFieldTooLong
		}

		l += 1 + hpackIntOctets + len(h.key) + hpackIntOctets + len(h.value)

		if len(h.key) > tmpLen {
			tmpLen = len(h.key)
		}

		if len(h.value) > tmpLen {
			tmpLen = len(h.value)
		}
	}

	if l == 0 {
		return nil
	}

	if c.tableUpdate {
		l++
	}
	l += 1 + literalSize(3)

	tmp := bytebufferpool.Get()
	defer bytebufferpool.Put(tmp)

	if cap(tmp.B) < tmpLen {
		tmp.B = make([]byte, 0, tmpLen)
	}

	pos := make([]byte, 0, l)

	if c.tableUpdate {
		c.log.Debug("http2 table size update: 0")

		pos = appendTableSizeUpdate(pos)
		c.tableUpdate = false
	}

	c.log.Debug("http2 output header",
		zap.Uint32("stream", s.id),
		zap.Int("status", fasthttp.StatusEarlyHints))

	pos = appendStatus(pos, fasthttp.StatusEarlyHints)

	for i := range out.Headers {
		h := &out.Headers[i]

		if h.hash == 0 {
			continue
		}

		pos = append(pos, 0)
		pos = appendName(pos, h.key, tmp)
		pos = appendValue(pos, h.value)
	}

	frame := c.createHeadersFrame(s, pos, false, true)

	c.queueBlockedFrame(frame)
	s.queued++

	c.initStream(s)

	return c.filterSend(s)
}

// rewriteLocation turns a local redirect into an absolute URL using the
// configured server name, the request authority, or the local socket
// address, in that order.
func (c *Conn) rewriteLocation(r *Request) error {
	cfg := c.cfg
	out := &r.Out

	var host []byte

	switch {
	case cfg.ServerNameInRedirect && cfg.ServerName != "":
		host = []byte(cfg.ServerName)

	case len(r.Host) > 0:
		host = r.Host

	case c.localAddr != nil:
		h, _, err := net.SplitHostPort(c.localAddr.String())
		if err != nil {
			return ErrRedirectHost
		}
		host = []byte(h)

	default:
		return ErrRedirectHost
	}

	port := 0

	if cfg.PortInRedirect && c.localAddr != nil {
		if _, p, err := net.SplitHostPort(c.localAddr.String()); err == nil {
			port, _ = strconv.Atoi(p)
		}

		if c.tls {
			if port == 443 {
				port = 0
			}
		} else if port == 80 {
			port = 0
		}
	}

	loc := make([]byte, 0,
		len("https://")+len(host)+len(":65535")+len(out.Location))

	loc = append(loc, "http"...)
	if c.tls {
		loc = append(loc, 's')
	}
	loc = append(loc, "://"...)
	loc = append(loc, host...)

	if port != 0 {
		loc = append(loc, ':')
		loc = strconv.AppendInt(loc, int64(port), 10)
	}

	loc = append(loc, out.Location...)

	out.Location = loc

	return nil
}

// createHeadersFrame chunks an encoded header block into a HEADERS
// frame followed by CONTINUATION frames at the peer's frame size. Every
// frame is two chain links: its header buffer and a zero-copy view over
// the block. The whole sequence is one blocked outbound frame, so
// nothing can interleave before END_HEADERS.
func (c *Conn) createHeadersFrame(s *Stream, block []byte, fin, flush bool) *outFrame {
	rest := len(block)

	frame := &outFrame{
		handler: headersFrameHandler,
		stream:  s,
		length:  rest,
		blocked: true,
		fin:     fin,
	}

	s.frames++
	c.frames++

	ln := &frame.first

	kind := FrameHeaders

	var flags FrameFlags
	if fin {
		flags = FlagEndStream
	}

	frameSize := int(c.frameSize)
	pos := 0

	for {
		if rest <= frameSize {
			frameSize = rest
			flags = flags.Add(FlagEndHeaders)
		}

		hb := &Buf{
			b:    make([]byte, FrameHeaderLen),
			last: FrameHeaderLen,
			tag:  tagFrameHeader,
		}

		writeFrameHeader(hb.b, frameSize, kind, flags, s.id)

		cl := &Chain{buf: hb}
		*ln = cl
		ln = &cl.next

		pb := &Buf{b: block, pos: pos, last: pos + frameSize}
		pos += frameSize

		cl = &Chain{buf: pb}
		*ln = cl
		ln = &cl.next

		rest -= frameSize

		if rest > 0 {
			frame.length += FrameHeaderLen

			kind = FrameContinuation
			flags = 0
			continue
		}

		pb.lastBuf = fin
		pb.flush = flush
		cl.next = nil
		frame.last = cl

		c.log.Debug("create HEADERS frame",
			zap.Uint32("stream", s.id),
			zap.Int("len", frame.length),
			zap.Bool("fin", fin))

		return frame
	}
}

// createTrailersFrame encodes the live trailer entries into a closing
// HEADERS frame. A nil frame with a nil error means there is nothing to
// send and DATA carries END_STREAM itself.
func (c *Conn) createTrailersFrame(r *Request) (*outFrame, error) {
	s := r.stream

	l := 0
	tmpLen := 0

	for i := range r.Out.Trailers {
		h := &r.Out.Trailers[i]

		if h.hash == 0 {
			continue
		}

		if len(h.key) > maxField {
			c.log.Error("too long response trailer name",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return nil, ErrFieldTooLong
		}

		if len(h.value) > maxField {
			c.log.Error("too long response trailer value",
				zap.Uint32("stream", s.id),
				zap.String("name", h.Key()))
			return nil, ErrFieldTooLong
		}

		l += 1 + hpackIntOctets + len(h.key) + hpackIntOctets + len(h.value)

		if len(h.key) > tmpLen {
			tmpLen = len(h.key)
		}

		if len(h.value) > tmpLen {
			tmpLen = len(h.value)
		}
	}

	if l == 0 {
		return nil, nil
	}

	tmp := bytebufferpool.Get()
	defer bytebufferpool.Put(tmp)

	if cap(tmp.B) < tmpLen {
		tmp.B = make([]byte, 0, tmpLen)
	}

	pos := make([]byte, 0, l)

	for i := range r.Out.Trailers {
		h := &r.Out.Trailers[i]

		if h.hash == 0 {
			continue
		}

		pos = append(pos, 0)
		pos = appendName(pos, h.key, tmp)
		pos = appendValue(pos, h.value)
	}

	return c.createHeadersFrame(s, pos, true, false), nil
}
