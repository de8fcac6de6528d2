package http

import (
	"bufio"
	"io"
	"strconv"

	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

type EncodeOptions struct {
	// UseSoleLF terminates lines with LF only. Recipients are not required to accept it.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	UseSoleLF bool
}

var DefaultEncodeOptions = EncodeOptions{}

// MessageEncoder writes the parts shared by requests and responses.
// Nothing reaches the underlying writer until the body is written.
type MessageEncoder struct {
	bw   *bufio.Writer
	opts EncodeOptions
}

func newMessageEncoder(w io.Writer, opts EncodeOptions) MessageEncoder {
	return MessageEncoder{bw: bufio.NewWriter(w), opts: opts}
}

func (me *MessageEncoder) terminate() error {
	if me.opts.UseSoleLF {
		return me.bw.WriteByte(rule.LF)
	}
	_, err := me.bw.Write(rule.CRLF)
	return err
}

func (me *MessageEncoder) encodeHeaders(headers []Field) error {
	for _, f := range headers {
		me.bw.Write(f.Name)
		me.bw.WriteString(": ")
		me.bw.Write(f.Value)
		if err := me.terminate(); err != nil {
			return errors.Wrapf(err, "writing field %q", f.Name)
		}
	}

	return errors.Wrap(me.terminate(), "writing empty line")
}

// encode writes a complete message. startLine holds the three parts of the
// request or status line.
func (me *MessageEncoder) encode(startLine [3]string, headers []Field, body io.Reader) error {
	me.bw.WriteString(startLine[0])
	me.bw.WriteByte(rule.SP)
	me.bw.WriteString(startLine[1])
	me.bw.WriteByte(rule.SP)
	me.bw.WriteString(startLine[2])
	if err := me.terminate(); err != nil {
		return errors.Wrap(err, "writing start line")
	}

	if err := me.encodeHeaders(headers); err != nil {
		return errors.Wrap(err, "encoding headers")
	}

	if body != nil {
		if _, err := me.bw.ReadFrom(body); err != nil {
			return errors.Wrap(err, "writing body")
		}
	}

	return errors.Wrap(me.bw.Flush(), "flushing")
}

type RequestEncoder struct{ MessageEncoder }

func NewRequestEncoder(w io.Writer, opts EncodeOptions) *RequestEncoder {
	return &RequestEncoder{newMessageEncoder(w, opts)}
}

func (re *RequestEncoder) Encode(r Request) error {
	line := [3]string{r.Method, r.Target, r.Version.String()}
	return errors.Wrap(re.encode(line, r.Headers, r.Body), "encoding request")
}

type ResponseEncoder struct{ MessageEncoder }

func NewResponseEncoder(w io.Writer, opts EncodeOptions) *ResponseEncoder {
	return &ResponseEncoder{newMessageEncoder(w, opts)}
}

func (re *ResponseEncoder) Encode(r Response) error {
	code := strconv.FormatUint(uint64(r.StatusCode), 10)
	line := [3]string{r.Version.String(), code, r.ReasonPhrase}
	return errors.Wrap(re.encode(line, r.Headers, r.Body), "encoding response")
}
