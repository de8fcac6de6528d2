// Package uri validates and splits Uniform Resource Identifiers (URI)
// far enough for an HTTP/1.1 client: request targets in origin-form and
// the absolute or relative references found in Location headers.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc3986
//
// - https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.1
package uri
