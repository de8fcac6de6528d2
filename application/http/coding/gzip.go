package coding

import (
	"bytes"
	"compress/gzip"
	"io"

	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

type gzipCoder struct{}

func (gzipCoder) Coding() Coding { return CodingGzip }

// Decode looks for the gzip member inside p rather than expecting it at
// offset zero, since a chunked body is kept with its framing. A trailing
// last-chunk marker is dropped for the same reason.
func (gzipCoder) Decode(p []byte) ([]byte, error) {
	start := bytes.Index(p, gzipMagic)
	if start < 0 {
		return nil, errors.Wrap(ErrDecode, "gzip magic bytes not found")
	}

	p = bytes.TrimSuffix(p[start:], rule.LastChunk)

	zr, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "reading gzip header: %s", err)
	}
	defer zr.Close()

	zr.Multistream(false)

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "inflating gzip: %s", err)
	}

	return out, nil
}
