// Package semantic holds the HTTP messages exchanged by the client,
// decoupled from their wire form.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110
package semantic

import (
	"slices"
	"strings"

	"sockhttp/application/http/coding"

	"github.com/pkg/errors"
)

type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodConnect Method = "CONNECT"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-9.1
func Methods() []Method {
	return []Method{
		MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch,
		MethodDelete, MethodOptions, MethodTrace, MethodConnect,
	}
}

// AllowsBody reports whether a request body is kept for the method.
func (m Method) AllowsBody() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

var ErrInvalidMethod = errors.New("invalid method")

// ParseMethod upper-cases raw and checks it against [Methods].
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(raw))
	if !slices.Contains(Methods(), m) {
		return "", errors.Wrapf(ErrInvalidMethod, "%q", raw)
	}
	return m, nil
}

// Body transform errors, surfaced only by the decoded views of [Response].
var (
	ErrUnsupportedEncoding = coding.ErrUnsupportedEncoding
	ErrDecode              = coding.ErrDecode
)
