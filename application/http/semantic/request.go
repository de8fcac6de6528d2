package semantic

import (
	"bytes"
	"math"
	"time"

	"sockhttp/application/http"
	"sockhttp/application/util/uri"

	"github.com/pkg/errors"
)

var ErrInvalidPath = uri.ErrInvalidPath

// RetryPolicy bounds the continuations a request may trigger.
type RetryPolicy struct {
	// Timeout applies to each socket operation of the exchange.
	// Zero means the connection's own timeout is used.
	Timeout time.Duration

	MaxRedirects uint
	MaxRetries   uint

	// BackoffFactor scales the delay used when a retry carries no Retry-After.
	BackoffFactor time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:       0,
		MaxRedirects:  5,
		MaxRetries:    5,
		BackoffFactor: 200 * time.Millisecond,
	}
}

// Request is an outgoing request. It is not mutated once created;
// continuations are built with [Request.Derive].
type Request struct {
	Method  Method
	Path    string
	Headers Headers
	Body    []byte
	Retry   RetryPolicy
}

// NewRequest validates method and path and copies headers.
// body is dropped unless the method allows one.
func NewRequest(method, path string, headers Headers, body []byte, policy RetryPolicy) (*Request, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}

	path, err = ValidatePath(path)
	if err != nil {
		return nil, err
	}

	r := &Request{
		Method:  m,
		Path:    path,
		Headers: headers.Clone(),
		Retry:   policy,
	}

	if m.AllowsBody() && body != nil {
		r.Body = make([]byte, len(body))
		copy(r.Body, body)
	}

	return r, nil
}

// ValidatePath adds a missing leading slash and checks path against the
// absolute-path [ "?" query ] [ "#" fragment ] grammar.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.3
func ValidatePath(path string) (string, error) {
	return uri.ValidatePath(path)
}

// Derive builds a continuation of r. Headers and body are carried over.
// When method drops the body, Content-Length goes with it.
func (r *Request) Derive(method Method, path string, policy RetryPolicy) (*Request, error) {
	next, err := NewRequest(string(method), path, r.Headers, r.Body, policy)
	if err != nil {
		return nil, err
	}

	if next.Body == nil {
		next.Headers.Del("Content-Length")
	}
	return next, nil
}

// BackoffDelay is BackoffFactor * 2^(MaxRetries-1).
// It grows with the remaining retry budget, so the first retry waits longest.
func (r *Request) BackoffDelay() time.Duration {
	exp := float64(r.Retry.MaxRetries) - 1
	return time.Duration(float64(r.Retry.BackoffFactor) * math.Pow(2, exp))
}

// RawRequest converts r into its wire form.
func (r *Request) RawRequest() http.Request {
	req := http.Request{
		RequestLine: http.RequestLine{
			Method:  string(r.Method),
			Target:  r.Path,
			Version: http.Version11,
		},
		Headers: r.Headers.ToRawFields(),
	}

	if r.Body != nil {
		req.Body = bytes.NewReader(r.Body)
	}

	return req
}

// Serialize returns the request as it goes on the wire.
func (r *Request) Serialize() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := http.NewRequestEncoder(buf, http.DefaultEncodeOptions).Encode(r.RawRequest()); err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}
	return buf.Bytes(), nil
}
