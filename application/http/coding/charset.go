package coding

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const DefaultCharset = "utf-8"

// CharsetFromContentType returns the charset parameter of a Content-Type
// field value, or [DefaultCharset] if it is absent or the value doesn't parse.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.3.2
func CharsetFromContentType(contentType string) string {
	if contentType == "" {
		return DefaultCharset
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultCharset
	}

	charset, ok := params["charset"]
	if !ok || charset == "" {
		return DefaultCharset
	}

	return strings.ToLower(charset)
}

// DecodeCharset converts p from charset into a UTF-8 string.
// Invalid byte sequences are reported as [ErrDecode] rather than replaced.
func DecodeCharset(p []byte, charset string) (string, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", errors.Wrapf(ErrDecode, "unknown charset %q", charset)
	}

	if enc == unicode.UTF8 {
		if !utf8.Valid(p) {
			return "", errors.Wrapf(ErrDecode, "invalid %s byte sequence", charset)
		}
		return string(p), nil
	}

	out, err := enc.NewDecoder().Bytes(p)
	if err != nil {
		return "", errors.Wrapf(ErrDecode, "decoding %s: %s", charset, err)
	}

	// x/text decoders substitute U+FFFD for malformed input instead of failing.
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(p, utf8.RuneError) {
		return "", errors.Wrapf(ErrDecode, "invalid %s byte sequence", charset)
	}

	return string(out), nil
}
