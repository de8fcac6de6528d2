package semantic

import (
	"encoding/json"
	"strconv"
	"strings"

	"sockhttp/application/http"
	"sockhttp/application/http/coding"
	"sockhttp/application/http/semantic/status"

	"github.com/pkg/errors"
)

var (
	ErrMalformedStatusLine = errors.New("malformed status line")
	ErrParse               = errors.New("failed to parse body")
)

var defaultApplier = coding.NewApplier(nil)

// Response is a received response. Body holds exactly the bytes framing
// determined, with no transfer or content coding undone.
type Response struct {
	Version      http.Version
	StatusCode   uint
	ReasonPhrase string
	Headers      Headers
	Body         []byte

	// Request is the request this response answers.
	Request *Request
}

func NewResponse(statusLine string, headers Headers, body []byte, request *Request) (*Response, error) {
	line, err := http.ParseStatusLine([]byte(statusLine))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedStatusLine, "%q: %s", statusLine, err)
	}

	return &Response{
		Version:      line.Version,
		StatusCode:   line.StatusCode,
		ReasonPhrase: line.ReasonPhrase,
		Headers:      headers,
		Body:         body,
		Request:      request,
	}, nil
}

// Status returns the registered status for the code,
// or one carrying the received reason phrase.
func (r *Response) Status() status.Status {
	if s, ok := status.FromCode(r.StatusCode); ok {
		return s
	}
	return status.Status{Code: r.StatusCode, ReasonPhrase: r.ReasonPhrase}
}

func (r *Response) IsRedirect() bool { return r.Status().IsRedirection() }

// IsChunked reports whether chunked is the final transfer coding.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.1
func (r *Response) IsChunked() bool {
	te, ok := r.Headers.Get("Transfer-Encoding")
	if !ok {
		return false
	}

	codings := coding.ParseCodings(te)
	return len(codings) > 0 && codings[len(codings)-1] == "chunked"
}

// Payload returns the body with chunked framing removed.
func (r *Response) Payload() ([]byte, error) {
	if !r.IsChunked() {
		return r.Body, nil
	}
	return coding.Dechunk(r.Body)
}

// DecodedBody undoes the content codings named in Content-Encoding.
// Without Content-Encoding the raw body is returned as is.
func (r *Response) DecodedBody() ([]byte, error) {
	ce, ok := r.Headers.Get("Content-Encoding")
	if !ok {
		return r.Body, nil
	}

	body := r.Body
	if r.IsChunked() {
		// The gzip coder copes with framing left around a single chunk,
		// so a body that doesn't dechunk cleanly is passed through.
		if payload, err := coding.Dechunk(body); err == nil {
			body = payload
		}
	}

	return defaultApplier.Decode(body, coding.ParseCodings(ce))
}

// Text decodes the body using the charset of Content-Type, utf-8 by default.
func (r *Response) Text() (string, error) {
	body, err := r.DecodedBody()
	if err != nil {
		return "", err
	}

	charset := coding.CharsetFromContentType(r.Headers.Value("Content-Type", ""))
	return coding.DecodeCharset(body, charset)
}

// JSON unmarshals the decoded body into v.
func (r *Response) JSON(v any) error {
	body, err := r.DecodedBody()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(ErrParse, err.Error())
	}

	return nil
}

// StatusLine formats the status line as received.
func (r *Response) StatusLine() string {
	return strings.Join([]string{
		r.Version.String(),
		strconv.FormatUint(uint64(r.StatusCode), 10),
		r.ReasonPhrase,
	}, " ")
}
