// Package coding reverses content codings and character encodings applied
// to a received message body.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110#section-8.4
//
// - https://datatracker.ietf.org/doc/html/rfc9110#section-8.3.2
package coding

import (
	"strings"

	"github.com/pkg/errors"
)

type Coding string

const (
	CodingIdentity Coding = "identity"
	CodingGzip     Coding = "gzip"
)

var (
	ErrUnsupportedEncoding = errors.New("content coding is unsupported")
	ErrDecode              = errors.New("failed to decode body")
)

type Coder interface {
	Coding() Coding
	Decode(p []byte) ([]byte, error)
}

// Applier reverses content codings using the registered coders.
type Applier struct{ coders map[Coding]Coder }

func NewApplier(customs []Coder) *Applier {
	a := &Applier{}
	a.coders = map[Coding]Coder{
		CodingIdentity: identityCoder{},
		CodingGzip:     gzipCoder{},
	}

	for _, coder := range customs {
		a.coders[coder.Coding()] = coder
	}

	return a
}

// Decode undoes codings in the reverse order they were applied.
func (a *Applier) Decode(p []byte, codings []Coding) ([]byte, error) {
	for idx := len(codings) - 1; idx >= 0; idx-- {
		coding := codings[idx]
		coder, ok := a.coders[coding]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", coding)
		}

		var err error
		if p, err = coder.Decode(p); err != nil {
			return nil, errors.Wrapf(err, "decoding %q", coding)
		}
	}

	return p, nil
}

// ParseCodings splits a Content-Encoding field value into codings.
// Coding names are case-insensitive.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.4.1
func ParseCodings(fieldValue string) []Coding {
	codings := make([]Coding, 0)
	for _, part := range strings.Split(fieldValue, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		codings = append(codings, Coding(part))
	}
	return codings
}

type identityCoder struct{}

func (identityCoder) Coding() Coding                  { return CodingIdentity }
func (identityCoder) Decode(p []byte) ([]byte, error) { return p, nil }
