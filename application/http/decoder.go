package http

import (
	"bufio"
	"bytes"
	"io"

	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// AllowSoleLF accepts a bare LF as a line terminator.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	AllowSoleLF bool

	// MaxFieldLineLength limits each header line, terminator included. Zero means no limit.
	MaxFieldLineLength uint

	// MaxRequestLineLength limits the request line, terminator included.
	// Zero means no limit. At least 8000 is recommended.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3-5
	MaxRequestLineLength uint
}

var DefaultDecodeOptions = DecodeOptions{}

type MessageDecoder struct {
	br   *bufio.Reader
	opts DecodeOptions
}

var (
	errLineTooLong       = errors.New("line length exceeeds limit")
	ErrMissingCRBeforeLF = errors.New("missing CR before LF")
)

// readLine returns the next line without its terminator.
// A stream that ends before LF yields io.ErrUnexpectedEOF.
func (md *MessageDecoder) readLine(limit uint) ([]byte, error) {
	line, err := md.br.ReadBytes(rule.LF)
	switch {
	case err == io.EOF:
		return nil, io.ErrUnexpectedEOF
	case err != nil:
		return nil, err
	case limit > 0 && uint(len(line)) > limit:
		return nil, errLineTooLong
	}

	line = line[:len(line)-1]
	if trimmed, ok := bytes.CutSuffix(line, []byte{rule.CR}); ok {
		return trimmed, nil
	}
	if !md.opts.AllowSoleLF {
		return nil, ErrMissingCRBeforeLF
	}
	return line, nil
}

var (
	ErrFieldLineTooLong   = errors.New("field line length exceeds limit")
	ErrMalformedFieldLine = errors.New("field line is malformed")
)

// decodeHeaders reads field lines up to and including the empty line.
// headers is only replaced when every line parsed.
func (md *MessageDecoder) decodeHeaders(headers *[]Field) error {
	fields := make([]Field, 0)
	for {
		line, err := md.readLine(md.opts.MaxFieldLineLength)
		if errors.Is(err, errLineTooLong) {
			return ErrFieldLineTooLong
		} else if err != nil {
			return errors.Wrap(err, "reading field line")
		}

		if len(line) == 0 {
			*headers = fields
			return nil
		}

		field, err := ParseField(line)
		if err != nil {
			return errors.Wrapf(ErrMalformedFieldLine, "%s", err)
		}
		fields = append(fields, field)
	}
}

var (
	ErrRequestLineTooLong   = errors.New("request line length exceeds limit")
	ErrMalformedRequestLine = errors.New("request line is malformed")
)

// RequestDecoder reads requests off a stream. The client never decodes
// requests itself; servers and test peers do.
type RequestDecoder struct{ MessageDecoder }

func NewRequestDecoder(r io.Reader, opts DecodeOptions) *RequestDecoder {
	return &RequestDecoder{MessageDecoder{br: bufio.NewReader(r), opts: opts}}
}

// Decode reads the head of the next request into r, which must be non-nil.
// r.Body is left positioned at the start of the body. The caller reads it
// according to the framing headers before decoding the next request.
func (rd *RequestDecoder) Decode(r *Request) error {
	if err := rd.decodeRequestLine(&r.RequestLine); err != nil {
		return errors.Wrap(err, "parsing request line")
	}

	if err := rd.decodeHeaders(&r.Headers); err != nil {
		return errors.Wrap(err, "parsing headers")
	}

	r.Body = rd.br
	return nil
}

func (rd *RequestDecoder) decodeRequestLine(reqLine *RequestLine) error {
	// Empty lines ahead of the request line are ignored.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
	line := []byte{}
	for len(line) == 0 {
		var err error
		line, err = rd.readLine(rd.opts.MaxRequestLineLength)
		if errors.Is(err, errLineTooLong) {
			return ErrRequestLineTooLong
		} else if err != nil {
			return errors.Wrap(err, "reading request line")
		}
	}

	parsed, err := parseRequestLine(line)
	if err != nil {
		return errors.Wrapf(ErrMalformedRequestLine, "%s", err)
	}

	*reqLine = parsed
	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3
func parseRequestLine(line []byte) (RequestLine, error) {
	method, rest, _ := bytes.Cut(line, []byte{rule.SP})
	target, version, found := bytes.Cut(rest, []byte{rule.SP})
	switch {
	case !found || bytes.IndexByte(version, rule.SP) >= 0:
		return RequestLine{}, errors.Errorf("want 3 space separated parts in %q", line)
	case !rule.IsValidToken(string(method)):
		return RequestLine{}, errors.Errorf("method %q is not a token", method)
	case len(target) == 0:
		return RequestLine{}, errors.New("request target is empty")
	}

	ver, err := ParseVersion(version)
	if err != nil {
		return RequestLine{}, errors.Wrap(err, "parsing version")
	}

	return RequestLine{Method: string(method), Target: string(target), Version: ver}, nil
}
