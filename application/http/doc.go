// Package http implements the HTTP/1.1 message syntax: versions,
// field lines, start lines and their encoders/decoders.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
