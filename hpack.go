package h2out

import (
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http2/hpack"

	"github.com/domsolutions/h2out/http2utils"
)

// Static table indices of the response headers this filter emits.
// https://httpwg.org/specs/rfc7541.html#static.table.definition
const (
	statusNameIndex uint64 = 8

	status200Index uint64 = 8
	status204Index uint64 = 9
	status206Index uint64 = 10
	status304Index uint64 = 11
	status400Index uint64 = 12
	status404Index uint64 = 13
	status500Index uint64 = 14

	contentLengthIndex uint64 = 28
	contentTypeIndex   uint64 = 31
	dateIndex          uint64 = 33
	lastModifiedIndex  uint64 = 44
	locationIndex      uint64 = 46
	serverIndex        uint64 = 54
	varyIndex          uint64 = 59
)

const (
	encodeRaw  byte = 0
	encodeHuff byte = 0x80

	// hpackIntOctets is the worst case size of a length prefix for a
	// field this filter is willing to encode.
	hpackIntOctets = 4

	// maxField is the longest header name or value encodable within
	// hpackIntOctets prefix octets.
	maxField = 127 + (1 << 21) - 1
)

// indexed builds an indexed header field opcode.
func indexed(index uint64) byte {
	return byte(0x80 | index)
}

// incIndexed builds a literal-with-incremental-indexing opcode carrying
// an indexed name.
func incIndexed(index uint64) byte {
	return byte(0x40 | index)
}

// appendTableSizeUpdate emits a dynamic table size update to 0. The
// encoder never populates the dynamic table, so 0 is the only size it
// ever acknowledges.
func appendTableSizeUpdate(dst []byte) []byte {
	return append(dst, (1<<5)|0)
}

// appendInt appends an integer using an n-bit prefix.
// https://httpwg.org/specs/rfc7541.html#integer.representation
func appendInt(dst []byte, n uint, i uint64) []byte {
	b := uint64(1<<n) - 1

	if i < b {
		dst = append(dst, byte(i))
	} else {
		dst = append(dst, byte(b))
		i -= b
		for i >= 128 {
			dst = append(dst, byte(0x80|(i&0x7f)))
			i >>= 7
		}
		dst = append(dst, byte(i))
	}

	return dst
}

// integerOctets returns the octets an n-octet length takes in a 7-bit
// prefix integer.
func integerOctets(v int) int {
	return 1 + v/127
}

// literalSize returns an upper bound of a length-prefixed literal of n
// octets.
func literalSize(n int) int {
	return integerOctets(n) + n
}

// appendValue appends a length-prefixed string, Huffman-coded whenever
// that comes out shorter than the raw octets.
func appendValue(dst, src []byte) []byte {
	hlen := int(hpack.HuffmanEncodeLength(http2utils.FastBytesToString(src)))

	if hlen < len(src) {
		n := len(dst)
		dst = appendInt(dst, 7, uint64(hlen))
		dst[n] |= encodeHuff
		return hpack.AppendHuffmanString(dst, http2utils.FastBytesToString(src))
	}

	dst = appendInt(dst, 7, uint64(len(src)))

	return append(dst, src...)
}

// appendName lowercases src into the scratch buffer and appends it as a
// length-prefixed string.
func appendName(dst, src []byte, tmp *bytebufferpool.ByteBuffer) []byte {
	tmp.Reset()
	tmp.B = append(tmp.B, src...)

	return appendValue(dst, ToLower(tmp.B))
}

// appendStatus appends the :status field, as a single indexed octet for
// the statuses present in the static table and as a 3-digit literal
// otherwise.
func appendStatus(dst []byte, status int) []byte {
	if b := statusIndexed(status); b != 0 {
		return append(dst, b)
	}

	dst = append(dst, incIndexed(statusNameIndex), encodeRaw|3)

	return append(dst,
		byte('0'+status/100),
		byte('0'+status/10%10),
		byte('0'+status%10))
}

// statusIndexed returns the indexed-field octet for status, or 0 when
// the static table has no entry for it.
func statusIndexed(status int) byte {
	switch status {
	case 200:
		return indexed(status200Index)
	case 204:
		return indexed(status204Index)
	case 206:
		return indexed(status206Index)
	case 304:
		return indexed(status304Index)
	case 400:
		return indexed(status400Index)
	case 404:
		return indexed(status404Index)
	case 500:
		return indexed(status500Index)
	}

	return 0
}

var (
	// serverShort is the Huffman-coded value "nginx", used when server
	// tokens are off.
	serverShort = [5]byte{0x84, 0xaa, 0x63, 0x55, 0xe7}

	// acceptEncoding is the Huffman-coded value "Accept-Encoding" for
	// the vary header emitted on gzipped responses.
	acceptEncoding = [12]byte{
		0x8b, 0x84, 0x84, 0x2d, 0x69, 0x5b, 0x05, 0x44, 0x3c, 0x86, 0xaa, 0x6f,
	}

	serverVerOnce   sync.Once
	serverVerEnc    []byte
	serverBuildOnce sync.Once
	serverBuildEnc  []byte
)

// serverVerEncoded returns the encoded server version value, computed
// once for the process lifetime.
func serverVerEncoded(ver string) []byte {
	serverVerOnce.Do(func() {
		serverVerEnc = appendValue(nil, []byte(ver))
	})

	return serverVerEnc
}

// serverBuildEncoded returns the encoded server build value, computed
// once for the process lifetime.
func serverBuildEncoded(build string) []byte {
	serverBuildOnce.Do(func() {
		serverBuildEnc = appendValue(nil, []byte(build))
	})

	return serverBuildEnc
}
