package h2out

var (
	StringStatus        = []byte(":status")
	StringServer        = []byte("server")
	StringDate          = []byte("date")
	StringContentLength = []byte("content-length")
	StringContentType   = []byte("content-type")
	StringLastModified  = []byte("last-modified")
	StringLocation      = []byte("location")
	StringVary          = []byte("vary")
	StringHEAD          = []byte("HEAD")

	strCharset          = []byte("; charset=")
	strConnection       = []byte("Connection")
	strTransferEncoding = []byte("Transfer-Encoding")
)

func ToLower(b []byte) []byte {
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] |= 32
		}
	}

	return b
}
