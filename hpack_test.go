package h2out

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/net/http2/hpack"
)

func TestAppendIntSmall(t *testing.T) {
	b := appendInt(nil, 7, 10)
	if len(b) != 1 || b[0] != 10 {
		t.Fatalf("unexpected encoding: %v", b)
	}
}

func TestAppendIntPrefixOverflow(t *testing.T) {
	// RFC 7541 C.1.2: 1337 with a 5-bit prefix
	b := appendInt(nil, 5, 1337)

	want := []byte{0x1f, 0x9a, 0x0a}
	if len(b) != len(want) {
		t.Fatalf("unexpected length %d<>%d", len(b), len(want))
	}

	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("octet %d mismatch: %x<>%x", i, b[i], want[i])
		}
	}
}

func TestAppendValueChoosesShorterForm(t *testing.T) {
	// a compressible ASCII value must come out Huffman-coded
	b := appendValue(nil, []byte("text/plain"))
	require.NotZero(t, b[0]&encodeHuff)

	dec, err := hpack.HuffmanDecodeToString(b[1:])
	require.NoError(t, err)
	require.Equal(t, "text/plain", dec)

	// binary-ish content where Huffman expands must stay raw
	raw := []byte{0xff, 0xfe, 0xfd, 0xfc}
	b = appendValue(nil, raw)
	require.Zero(t, b[0]&encodeHuff)
	require.Equal(t, raw, b[1:])
}

func TestAppendNameLowercases(t *testing.T) {
	tmp := bytebufferpool.Get()
	defer bytebufferpool.Put(tmp)

	b := appendName(nil, []byte("X-Trace-ID"), tmp)

	var name string
	if b[0]&encodeHuff != 0 {
		var err error
		name, err = hpack.HuffmanDecodeToString(b[1:])
		require.NoError(t, err)
	} else {
		name = string(b[1:])
	}

	require.Equal(t, "x-trace-id", name)
}

func TestStatusIndexed(t *testing.T) {
	for status, index := range map[int]uint64{
		200: status200Index,
		204: status204Index,
		206: status206Index,
		304: status304Index,
		400: status400Index,
		404: status404Index,
		500: status500Index,
	} {
		if b := statusIndexed(status); b != indexed(index) {
			t.Fatalf("status %d: %x<>%x", status, b, indexed(index))
		}
	}

	for _, status := range []int{100, 103, 201, 302, 403, 418, 503} {
		if b := statusIndexed(status); b != 0 {
			t.Fatalf("status %d unexpectedly indexed: %x", status, b)
		}
	}
}

func TestAppendStatusLiteral(t *testing.T) {
	b := appendStatus(nil, 418)

	require.Equal(t, incIndexed(statusNameIndex), b[0])
	require.Equal(t, encodeRaw|3, b[1])
	require.Equal(t, "418", string(b[2:]))

	fields := decodeBlock(t, b)
	require.Equal(t, [][2]string{{":status", "418"}}, fields)
}

func TestServerShortLiteral(t *testing.T) {
	require.Equal(t, byte(encodeHuff|4), serverShort[0])

	dec, err := hpack.HuffmanDecodeToString(serverShort[1:])
	require.NoError(t, err)
	require.Equal(t, "nginx", dec)
}

func TestAcceptEncodingLiteral(t *testing.T) {
	require.Equal(t, byte(encodeHuff|11), acceptEncoding[0])

	dec, err := hpack.HuffmanDecodeToString(acceptEncoding[1:])
	require.NoError(t, err)
	require.Equal(t, "Accept-Encoding", dec)
}

func TestTableSizeUpdateOpcode(t *testing.T) {
	b := appendTableSizeUpdate(nil)
	require.Equal(t, []byte{0x20}, b)
}
