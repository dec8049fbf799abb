package h2out

import (
	"bytes"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/domsolutions/h2out/http2utils"
)

// ConvertResponse fills the request's outgoing header slots from a
// fasthttp response. Connection and Transfer-Encoding are dropped, the well known
// headers land in their dedicated slots and everything else goes on the
// additional list in order.
func ConvertResponse(res *fasthttp.Response, r *Request) {
	out := &r.Out

	out.Status = res.StatusCode()

	ct := res.Header.ContentType()
	if len(ct) > 0 {
		out.ContentType = append([]byte(nil), ct...)

		if i := bytes.IndexByte(out.ContentType, ';'); i >= 0 {
			out.ContentTypeLen = i
		} else {
			out.ContentTypeLen = len(out.ContentType)
		}
	}

	if n := res.Header.ContentLength(); n >= 0 {
		out.ContentLengthN = int64(n)
	} else {
		out.ContentLengthN = -1
	}

	res.Header.VisitAll(func(k, v []byte) {
		switch {
		case http2utils.EqualsFold(k, strConnection),
			http2utils.EqualsFold(k, strTransferEncoding):
			// connection specific, never valid in HTTP/2

		case http2utils.EqualsFold(k, StringContentType),
			http2utils.EqualsFold(k, StringContentLength):
			// already captured in the dedicated slots

		case http2utils.EqualsFold(k, StringServer):
			out.Server = append([]byte(nil), v...)

		case http2utils.EqualsFold(k, StringDate):
			out.Date = append([]byte(nil), v...)

		case http2utils.EqualsFold(k, StringLocation):
			out.Location = append([]byte(nil), v...)

		case http2utils.EqualsFold(k, StringLastModified):
			if lm, err := time.Parse(httpTimeLayout, string(v)); err == nil {
				out.LastModifiedTime = lm.Unix()
			}

		default:
			out.Headers = append(out.Headers, HeaderEntry{})
			out.Headers[len(out.Headers)-1].SetBytes(k, v)
		}
	})

	for i := range out.Headers {
		ToLower(out.Headers[i].key)
	}
}
