package h2out

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2/hpack"

	"github.com/domsolutions/h2out/http2utils"
)

// budgetWriter accepts at most budget bytes in total, modeling a socket
// that stops being writable.
type budgetWriter struct {
	buf    bytes.Buffer
	budget int
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > w.budget {
		n = w.budget
	}

	w.buf.Write(p[:n])
	w.budget -= n

	return n, nil
}

type testFrame struct {
	kind    FrameType
	flags   FrameFlags
	stream  uint32
	payload []byte
}

func readFrames(t *testing.T, b []byte) []testFrame {
	t.Helper()

	var frames []testFrame

	for len(b) > 0 {
		require.GreaterOrEqual(t, len(b), FrameHeaderLen, "truncated frame header")

		length := int(http2utils.BytesToUint24(b[:3]))
		fr := testFrame{
			kind:   FrameType(b[3]),
			flags:  FrameFlags(b[4]),
			stream: http2utils.BytesToUint32(b[5:9]) & (1<<31 - 1),
		}

		b = b[FrameHeaderLen:]
		require.GreaterOrEqual(t, len(b), length, "truncated frame payload")

		fr.payload = append([]byte(nil), b[:length]...)
		b = b[length:]

		frames = append(frames, fr)
	}

	return frames
}

// decodeBlock runs a standard HPACK decoder over a header block and
// returns the field list in order.
func decodeBlock(t *testing.T, block []byte) [][2]string {
	t.Helper()

	var fields [][2]string

	dec := hpack.NewDecoder(4096, func(hf hpack.HeaderField) {
		fields = append(fields, [2]string{hf.Name, hf.Value})
	})

	_, err := dec.Write(block)
	require.NoError(t, err)
	require.NoError(t, dec.Close())

	return fields
}

func fieldValue(fields [][2]string, name string) (string, bool) {
	for _, f := range fields {
		if f[0] == name {
			return f[1], true
		}
	}

	return "", false
}

var testDate = []byte("Wed, 31 Dec 1986 18:00:00 GMT")

func newTestConn(t *testing.T, opts ConnOpts) (*Conn, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	c := NewConn(&buf, opts)
	c.now = func() time.Time {
		return time.Date(1986, time.December, 31, 18, 0, 0, 0, time.UTC)
	}

	return c, &buf
}

func newTestRequest(c *Conn, s *Stream, status int, contentLength int64) *Request {
	r := c.NewRequest(s)
	r.Out.Status = status
	r.Out.ContentLengthN = contentLength
	r.Out.Date = testDate

	return r
}
