package coding

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"sockhttp/application/http"
	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

// ChunkedReader strips chunked transfer coding from a byte stream.
// Chunk extensions are skipped without validation.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
type ChunkedReader struct {
	br     *bufio.Reader
	remain uint64 // left in current chunk
	inData bool
	done   bool

	// trailerStore points at external trailer storage.
	trailerStore *[]http.Field
}

var _ io.Reader = (*ChunkedReader)(nil)

// NewChunkedReader returns a reader yielding the chunk data of r.
// If trailerStore is not nil, it is filled once the last chunk is read.
func NewChunkedReader(r io.Reader, trailerStore *[]http.Field) *ChunkedReader {
	return &ChunkedReader{
		br:           bufio.NewReader(r),
		trailerStore: trailerStore,
	}
}

func (cr *ChunkedReader) Read(p []byte) (int, error) {
	if cr.done {
		return 0, io.EOF
	}

	if !cr.inData {
		size, err := cr.readChunkSize()
		if err != nil {
			return 0, errors.Wrap(err, "decoding chunk size")
		}

		if size == 0 {
			if err := cr.readTrailers(); err != nil {
				return 0, errors.Wrap(err, "decoding trailers")
			}
			cr.done = true
			return 0, io.EOF
		}

		cr.remain = size
		cr.inData = true
	}

	if uint64(len(p)) > cr.remain {
		p = p[:cr.remain]
	}

	n, err := cr.br.Read(p)
	cr.remain -= uint64(n)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, errors.Wrap(err, "reading chunk data")
	}

	if cr.remain == 0 {
		line, err := readLine(cr.br)
		if err != nil {
			return n, errors.Wrap(err, "reading chunk delimiter")
		}
		if len(line) != 0 {
			return n, errors.New("CRLF delimiter not found")
		}
		cr.inData = false
	}

	return n, nil
}

func (cr *ChunkedReader) readChunkSize() (uint64, error) {
	line, err := readLine(cr.br)
	if err != nil {
		return 0, err
	}

	sizeRaw, _, _ := bytes.Cut(line, []byte{';'})
	sizeRaw = bytes.TrimFunc(sizeRaw, rule.IsWhitespace)
	if len(sizeRaw) == 0 {
		return 0, errors.New("empty chunk size")
	}

	for _, c := range sizeRaw {
		if !rule.IsHex(rune(c)) {
			return 0, errors.Errorf("invalid hex digit in %q", sizeRaw)
		}
	}

	size, err := strconv.ParseUint(string(sizeRaw), 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "chunk size %q", sizeRaw)
	}

	return size, nil
}

func (cr *ChunkedReader) readTrailers() error {
	fields := make([]http.Field, 0)
	for {
		line, err := readLine(cr.br)
		if err != nil {
			return errors.Wrap(err, "reading line")
		}

		if len(line) == 0 {
			break
		}

		field, err := http.ParseField(line)
		if err != nil {
			return errors.Wrap(err, "parsing field")
		}

		fields = append(fields, field)
	}

	if cr.trailerStore != nil {
		*cr.trailerStore = fields
	}

	return nil
}

// Dechunk removes chunked framing from a fully buffered body.
func Dechunk(p []byte) ([]byte, error) {
	out, err := io.ReadAll(NewChunkedReader(bytes.NewReader(p), nil))
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return out, nil
}

// ChunkedWriter applies chunked transfer coding to everything written to it.
// Close emits the last chunk and the trailer section.
type ChunkedWriter struct {
	w         io.Writer
	headerBuf *bytes.Buffer

	// trailerStore points at external trailer storage.
	trailerStore *[]http.Field
}

var _ io.WriteCloser = (*ChunkedWriter)(nil)

func NewChunkedWriter(w io.Writer, trailerStore *[]http.Field) *ChunkedWriter {
	return &ChunkedWriter{
		w:            w,
		headerBuf:    bytes.NewBuffer(nil),
		trailerStore: trailerStore,
	}
}

func (cw *ChunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		// A zero length chunk would terminate the body.
		return 0, nil
	}

	cw.headerBuf.Reset()
	cw.headerBuf.WriteString(strconv.FormatUint(uint64(len(p)), 16))
	cw.headerBuf.Write(rule.CRLF)
	cw.headerBuf.Write(p)
	cw.headerBuf.Write(rule.CRLF)

	if _, err := cw.w.Write(cw.headerBuf.Bytes()); err != nil {
		return 0, errors.Wrap(err, "writing chunk")
	}

	return len(p), nil
}

func (cw *ChunkedWriter) Close() error {
	cw.headerBuf.Reset()
	cw.headerBuf.WriteString("0")
	cw.headerBuf.Write(rule.CRLF)

	if cw.trailerStore != nil {
		for _, field := range *cw.trailerStore {
			cw.headerBuf.Write(field.Text())
			cw.headerBuf.Write(rule.CRLF)
		}
	}
	cw.headerBuf.Write(rule.CRLF)

	if _, err := cw.w.Write(cw.headerBuf.Bytes()); err != nil {
		return errors.Wrap(err, "writing last chunk")
	}

	return nil
}

// readLine reads until CRLF and cuts it.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes(rule.LF)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if len(line) < 2 || line[len(line)-2] != rule.CR {
		return nil, errors.New("line not terminated by CRLF")
	}

	return line[:len(line)-2], nil
}
