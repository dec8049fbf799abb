package h2out

import (
	"bytes"
)

// HeaderEntry is one name/value pair of the additional response header
// list. Entries with a zero hash are tombstones and are skipped by the
// encoders.
type HeaderEntry struct {
	key   []byte
	value []byte
	hash  uint32
}

// Key returns the entry name.
func (he *HeaderEntry) Key() string {
	return string(he.key)
}

// Value returns the entry value.
func (he *HeaderEntry) Value() string {
	return string(he.value)
}

// KeyBytes returns the entry name bytes.
func (he *HeaderEntry) KeyBytes() []byte {
	return he.key
}

// ValueBytes returns the entry value bytes.
func (he *HeaderEntry) ValueBytes() []byte {
	return he.value
}

// Set sets the entry name and value.
func (he *HeaderEntry) Set(key, value string) {
	he.SetBytes([]byte(key), []byte(value))
}

// SetBytes sets the entry name and value.
func (he *HeaderEntry) SetBytes(key, value []byte) {
	he.key = append(he.key[:0], key...)
	he.value = append(he.value[:0], value...)
	he.hash = headerHash(he.key)
}

// Delete turns the entry into a tombstone.
func (he *HeaderEntry) Delete() {
	he.hash = 0
}

// headerHash is a FNV-1a over the lowercased name, never 0 for a
// non-empty key.
func headerHash(key []byte) uint32 {
	h := uint32(2166136261)

	for _, c := range key {
		h ^= uint32(c | 0x20)
		h *= 16777619
	}

	if h == 0 {
		h = 1
	}

	return h
}

// ResponseHeaders holds the logical response header list: the status,
// the well known header slots and the ordered list of everything else.
type ResponseHeaders struct {
	Status int

	// Server and Date override the generated values when set.
	Server []byte
	Date   []byte

	// ContentTypeLen is the length of the bare media type inside
	// ContentType. When it equals len(ContentType) and Charset is set,
	// a "; charset=" parameter is appended on emission.
	ContentType    []byte
	ContentTypeLen int
	Charset        []byte

	// ContentLengthN is the response body size, -1 when unknown.
	ContentLengthN int64

	// LastModifiedTime is a unix timestamp, -1 when unset.
	LastModifiedTime int64

	Location []byte

	Headers  []HeaderEntry
	Trailers []HeaderEntry
}

// Add appends a header entry.
func (h *ResponseHeaders) Add(key, value string) {
	h.Headers = append(h.Headers, HeaderEntry{})
	h.Headers[len(h.Headers)-1].Set(key, value)
}

// AddTrailer appends a trailer entry.
func (h *ResponseHeaders) AddTrailer(key, value string) {
	h.Trailers = append(h.Trailers, HeaderEntry{})
	h.Trailers[len(h.Trailers)-1].Set(key, value)
}

// Del tombstones every header entry named key.
func (h *ResponseHeaders) Del(key string) {
	kb := []byte(key)

	for i := range h.Headers {
		if bytes.EqualFold(h.Headers[i].key, kb) {
			h.Headers[i].Delete()
		}
	}
}

// Request carries the per-response state the filter consumes.
type Request struct {
	Method []byte

	// Host is the request authority, used as the redirect host when the
	// configuration does not pin the server name.
	Host []byte

	HeaderOnly     bool
	ExpectTrailers bool

	// GzipVary is set by the compression layer when the response body
	// was negotiated with Accept-Encoding.
	GzipVary bool

	Out ResponseHeaders

	HeaderSent bool

	// HeaderSize accumulates the frame header and HEADERS payload bytes
	// actually sent for this response.
	HeaderSize int

	stream *Stream
}

// NewRequest binds a fresh request to s.
func (c *Conn) NewRequest(s *Stream) *Request {
	r := &Request{stream: s}
	r.Out.ContentLengthN = -1
	r.Out.LastModifiedTime = -1

	s.request = r

	return r
}

// Stream returns the stream this request is bound to.
func (r *Request) Stream() *Stream {
	return r.stream
}
