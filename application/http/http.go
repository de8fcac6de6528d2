package http

import (
	"bytes"
	"io"
	"strconv"

	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

type RequestLine struct {
	Method  string
	Target  string
	Version Version
}

type Request struct {
	RequestLine
	Headers []Field

	Body io.Reader
}

type StatusLine struct {
	Version      Version
	StatusCode   uint
	ReasonPhrase string
}

type Response struct {
	StatusLine
	Headers []Field
	Body    io.Reader
}

// Version is [Major, Minor].
type Version [2]uint

var Version11 = Version{1, 1}

// ParseVersion parses version text such as "HTTP/1.1". The prefix is case-sensitive.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.3
func ParseVersion(b []byte) (Version, error) {
	digits, ok := bytes.CutPrefix(b, []byte("HTTP/"))
	if !ok {
		return Version{}, errors.Errorf("http version prefix not found: %q", b)
	}

	var ver Version
	for i, part := range bytes.SplitN(digits, []byte{'.'}, 3) {
		if i > 1 {
			return Version{}, errors.Errorf("too many dots in version: %q", b)
		}
		n, err := strconv.ParseUint(string(part), 10, 0)
		if err != nil {
			return Version{}, errors.Errorf("version number is not an integer: %q", b)
		}
		ver[i] = uint(n)
	}

	if !bytes.ContainsRune(digits, '.') {
		return Version{}, errors.Errorf("minor version missing: %q", b)
	}

	return ver, nil
}

func (ver Version) Text() []byte { return []byte(ver.String()) }

func (ver Version) String() string {
	return "HTTP/" + strconv.FormatUint(uint64(ver[0]), 10) + "." + strconv.FormatUint(uint64(ver[1]), 10)
}

// Field is a single header or trailer line. Name keeps its original case.
type Field struct{ Name, Value []byte }

// ParseField splits fieldLine at the first colon. The value loses its
// surrounding whitespace; the name must not have any before the colon.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1
func ParseField(fieldLine []byte) (Field, error) {
	name, value, found := bytes.Cut(fieldLine, []byte{':'})
	switch {
	case !found:
		return Field{}, errors.Errorf("colon seperator not found on header: %q", fieldLine)
	case len(name) > 0 && bytes.IndexByte(rule.OWS, name[len(name)-1]) >= 0:
		return Field{}, errors.Errorf("field name has trailing whitespace: %q", name)
	}

	return Field{Name: name, Value: bytes.Trim(value, string(rule.OWS))}, nil
}

func (f *Field) Text() []byte {
	text := make([]byte, 0, len(f.Name)+2+len(f.Value))
	text = append(text, f.Name...)
	text = append(text, ':', ' ')
	return append(text, f.Value...)
}

// ParseStatusLine splits line into exactly three fields on the first two spaces.
// The reason phrase may contain spaces and is trimmed.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4
func ParseStatusLine(line []byte) (StatusLine, error) {
	parts := bytes.SplitN(line, []byte{rule.SP}, 3)
	if len(parts) < 3 {
		return StatusLine{}, errors.Errorf("status line has %d field(s), want 3", len(parts))
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return StatusLine{}, errors.Wrap(err, "parsing version")
	}

	statusCodeStr := string(parts[1])
	statusCode, err := strconv.ParseUint(statusCodeStr, 10, 64)
	if err != nil || len(statusCodeStr) != 3 || statusCodeStr[0] == '0' {
		return StatusLine{}, errors.Errorf("status code is malformed: %q", statusCodeStr)
	}

	reasonPhrase := string(bytes.TrimFunc(parts[2], rule.IsWhitespace))

	return StatusLine{Version: ver, StatusCode: uint(statusCode), ReasonPhrase: reasonPhrase}, nil
}
