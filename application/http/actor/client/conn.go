package client

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sockhttp/application/http"
	"sockhttp/application/http/coding"
	"sockhttp/application/http/semantic"
	"sockhttp/application/util/rule"
	iolib "sockhttp/lib/io"
	"sockhttp/transport"

	"github.com/pkg/errors"
)

// errStaleConn reports that the peer closed the connection before answering.
var errStaleConn = errors.New("connection closed by peer before response")

// roundtrip writes request and reads its response, opening a connection if
// none is usable. A connection found closed by the peer is replaced once.
// Assumes it is locked.
func (c *Client) roundtrip(ctx context.Context, log *slog.Logger, request *semantic.Request) (*semantic.Response, error) {
	raw, err := request.Serialize()
	if err != nil {
		return nil, err
	}

	if c.conn == nil || c.stale {
		if err := c.connect(ctx, log); err != nil {
			return nil, err
		}
	}

	timeout := request.Retry.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	res, err := c.exchange(log, raw, request, timeout)
	if !errors.Is(err, errStaleConn) {
		return res, err
	}

	log.Debug("connection went stale, reconnecting", "path", request.Path)
	if err := c.connect(ctx, log); err != nil {
		return nil, err
	}

	res, err = c.exchange(log, raw, request, timeout)
	if errors.Is(err, errStaleConn) {
		return nil, errors.Wrap(ErrEmptyResponse, err.Error())
	}
	return res, err
}

func (c *Client) exchange(log *slog.Logger, raw []byte, request *semantic.Request, timeout time.Duration) (*semantic.Response, error) {
	c.conn.SetWriteDeadLine(c.deadline(timeout))
	if _, err := iolib.WriteFull(c.conn, raw); err != nil {
		if errors.Is(err, transport.ErrConnClosed) {
			c.stale = true
			return nil, errStaleConn
		}
		return nil, errors.Wrap(err, "writing request")
	}

	return c.receive(log, request, timeout)
}

// receive reads a response in fixed size reads until its framing says it
// is complete. A receive timeout or peer close ends reading early, and
// whatever arrived so far is returned.
func (c *Client) receive(log *slog.Logger, request *semantic.Request, timeout time.Duration) (*semantic.Response, error) {
	r := &receiver{method: request.Method, log: log}
	buf := make([]byte, c.opts.Receive.BufferSize)

	for done := false; !done; {
		c.conn.SetReadDeadLine(c.deadline(timeout))
		n, err := c.conn.Read(buf)
		if n > 0 && r.feed(buf[:n]) {
			break
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, transport.ErrDeadLineExceeded):
			if r.empty() {
				return nil, errors.Wrap(ErrEmptyResponse, "receive timed out")
			}
			log.Warn("receive timed out, returning partial response",
				"path", request.Path, "received", r.size())
		case errors.Is(err, transport.ErrConnClosed):
			c.stale = true
			if r.empty() {
				return nil, errStaleConn
			}
			if r.framing != framingUntilClose {
				log.Warn("connection closed, returning partial response",
					"path", request.Path, "received", r.size())
			}
		default:
			return nil, errors.Wrap(err, "reading response")
		}
		done = true
	}

	res, err := r.response(request)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(res.Headers.Value("Connection", ""), "close") {
		c.stale = true
	}

	return res, nil
}

func (c *Client) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(timeout)
}

type framing int

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingUntilClose
)

// receiver accumulates the bytes of one response.
type receiver struct {
	method semantic.Method
	log    *slog.Logger

	pending []byte // bytes before the end of the header section

	headDone   bool
	statusLine string
	headers    semantic.Headers
	framing    framing
	length     int
	body       []byte
}

// feed appends p and reports whether the response is complete.
func (r *receiver) feed(p []byte) bool {
	if !r.headDone {
		r.pending = append(r.pending, p...)

		idx := bytes.Index(r.pending, rule.EmptyLine)
		if idx < 0 {
			return false
		}

		r.parseHead(r.pending[:idx])
		p = r.pending[idx+len(rule.EmptyLine):]
		r.pending = nil
	}

	r.body = append(r.body, p...)
	return r.complete()
}

func (r *receiver) complete() bool {
	switch r.framing {
	case framingNone:
		r.body = nil
		return true
	case framingLength:
		if len(r.body) < r.length {
			return false
		}
		r.body = r.body[:r.length]
		return true
	case framingChunked:
		return chunkedComplete(r.body)
	default:
		return false
	}
}

// chunkedComplete looks for the last chunk in the raw body.
// Trailer fields after the last chunk are not recognized.
func chunkedComplete(body []byte) bool {
	return bytes.HasPrefix(body, rule.LastChunk[len(rule.CRLF):]) ||
		bytes.Contains(body, rule.LastChunk)
}

func (r *receiver) parseHead(head []byte) {
	r.headDone = true

	lines := bytes.Split(head, rule.CRLF)
	r.statusLine = string(lines[0])

	for _, line := range lines[1:] {
		field, err := http.ParseField(line)
		if err != nil {
			r.log.Debug("skipping malformed header field", "error", err.Error())
			continue
		}
		r.headers.Set(string(field.Name), string(field.Value))
	}

	r.framing = r.decideFraming()
}

// decideFraming picks how the end of the body is found.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3
func (r *receiver) decideFraming() framing {
	var code uint
	if line, err := http.ParseStatusLine([]byte(r.statusLine)); err == nil {
		code = line.StatusCode
	}

	if r.method == semantic.MethodHead || code/100 == 1 || code == 204 || code == 304 {
		return framingNone
	}

	if cl, ok := r.headers.Get("Content-Length"); ok {
		n, err := strconv.Atoi(cl)
		if err == nil && n >= 0 {
			r.length = n
			return framingLength
		}
		r.log.Debug("invalid content-length, reading until close", "content-length", cl)
	}

	if te, ok := r.headers.Get("Transfer-Encoding"); ok {
		codings := coding.ParseCodings(te)
		if len(codings) > 0 && codings[len(codings)-1] == "chunked" {
			return framingChunked
		}
	}

	return framingUntilClose
}

func (r *receiver) empty() bool { return r.size() == 0 }

func (r *receiver) size() int { return len(r.pending) + len(r.body) }

// response builds the response from what was received. A header section
// that never ended is parsed as is.
func (r *receiver) response(request *semantic.Request) (*semantic.Response, error) {
	if !r.headDone {
		r.parseHead(bytes.TrimSuffix(r.pending, rule.CRLF))
		r.pending = nil
	}
	if r.framing == framingNone {
		r.body = nil
	}

	return semantic.NewResponse(r.statusLine, r.headers, r.body, request)
}
