package coding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharsetFromContentType(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected string
	}{
		{desc: "empty", input: "", expected: DefaultCharset},
		{desc: "no charset", input: "text/html", expected: DefaultCharset},
		{desc: "charset", input: "text/html; charset=ISO-8859-1", expected: "iso-8859-1"},
		{desc: "quoted charset", input: `text/plain; charset="utf-8"`, expected: "utf-8"},
		{desc: "malformed", input: "text/html; charset", expected: DefaultCharset},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, CharsetFromContentType(tc.input))
		})
	}
}

func TestDecodeCharset(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		charset  string
		expected string
		wantErr  bool
	}{
		{desc: "utf-8", input: []byte("héllo"), charset: "utf-8", expected: "héllo"},
		{desc: "utf-8 alias", input: []byte("plain"), charset: "UTF8", expected: "plain"},
		{desc: "latin-1", input: []byte{'c', 'a', 'f', 0xe9}, charset: "iso-8859-1", expected: "café"},
		{desc: "invalid utf-8", input: []byte{0xff, 0xfe, 'a'}, charset: "utf-8", wantErr: true},
		{desc: "unknown charset", input: []byte("x"), charset: "x-klingon", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			out, err := DecodeCharset(tc.input, tc.charset)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
		})
	}
}
