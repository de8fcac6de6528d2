package rule

const (
	CR   byte = '\r'
	LF   byte = '\n'
	SP   byte = ' '
	HTAB byte = '\t'
	VT   byte = 0x0B
	FF   byte = 0x0C
)

var (
	OWS         = []byte{SP, HTAB}
	CRLF        = []byte{CR, LF}
	Whitespaces = []byte{SP, HTAB, VT, FF, CR}

	// EmptyLine terminates a header section.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.1
	EmptyLine = []byte{CR, LF, CR, LF}

	// LastChunk is the zero-length chunk followed by an empty trailer section.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
	LastChunk = []byte("\r\n0\r\n\r\n")
)

func IsWhitespace(r rune) bool {
	for _, ws := range Whitespaces {
		if r == rune(ws) {
			return true
		}
	}
	return false
}

func IsAlpha(r rune) bool { return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') }
func IsDigit(r rune) bool { return '0' <= r && r <= '9' }
func IsHex(r rune) bool {
	return IsDigit(r) || ('a' <= r && r <= 'f') || ('A' <= r && r <= 'F')
}
