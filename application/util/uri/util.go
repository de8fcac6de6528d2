package uri

import (
	"net/netip"
	"strings"

	"sockhttp/application/util/rule"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2
const (
	subDelims       = "!$&'()*+,;="
	unreservedMarks = "-._~"

	pcharExtra     = ":@"
	queryFragExtra = ":@/?"
	userInfoExtra  = ":"
)

func containsCTL(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < ' ' || r == 0x7f }) >= 0
}

func isUnreserved(c byte) bool {
	return rule.IsAlpha(rune(c)) || rule.IsDigit(rune(c)) || strings.IndexByte(unreservedMarks, c) >= 0
}

func isSubDelim(c byte) bool { return strings.IndexByte(subDelims, c) >= 0 }

// consistsOf reports whether s is made only of unreserved characters,
// sub-delims, percent-encoded octets and the bytes in extra.
func consistsOf(s, extra string) bool {
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case isUnreserved(c), isSubDelim(c), strings.IndexByte(extra, c) >= 0:
		case c == '%' && idx+2 < len(s) && rule.IsHex(rune(s[idx+1])) && rule.IsHex(rune(s[idx+2])):
			idx += 2
		default:
			return false
		}
	}
	return true
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.1
func assertValidScheme(scheme string) error {
	if scheme == "" {
		return errors.New("scheme is empty")
	}
	if !rule.IsAlpha(rune(scheme[0])) {
		return errors.New("scheme doesn't start with ALPHA")
	}

	for _, c := range []byte(scheme[1:]) {
		if !rule.IsAlpha(rune(c)) && !rule.IsDigit(rune(c)) && strings.IndexByte("+-.", c) < 0 {
			return errors.Errorf("scheme contains invalid byte %q", c)
		}
	}

	return nil
}

// assertValidHost accepts a reg-name, an IPv4 address or a bracketed IPv6 address.
// IPvFuture literals are rejected since they cannot be dialed.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.2
func assertValidHost(host string) error {
	switch {
	case host == "":
		return nil
	case len(host) > 255:
		return errors.Errorf("host length exceeds limit(255): %d", len(host))
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		if addr, err := netip.ParseAddr(host[1 : len(host)-1]); err == nil && addr.Is6() {
			return nil
		}
		return errors.Errorf("malformed ip literal: %q", host)
	}

	if consistsOf(host, "") {
		return nil
	}
	return errors.Errorf("host is neither ipv4 addr nor valid reg-name: %q", host)
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.3
func assertValidPath(path string, hasAuthority bool, isRelative bool) error {
	switch {
	case hasAuthority && path != "" && path[0] != '/':
		return errors.New("URI with authority must either be empty or start with '/'")
	case !hasAuthority && strings.HasPrefix(path, "//"):
		return errors.New("URI without authority should not start with '//'")
	}

	segments := strings.Split(path, "/")
	if isRelative && strings.ContainsRune(segments[0], ':') {
		return errors.New("relative URI reference's first segment should not contain ':'")
	}

	for _, segment := range segments {
		if !consistsOf(segment, pcharExtra) {
			return errors.Errorf("path segment should be pchar: %q", segment)
		}
	}

	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.4
func isQueryFragValid(s string) bool { return consistsOf(s, queryFragExtra) }

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.1
func isValidUserInfo(s string) bool { return consistsOf(s, userInfoExtra) }
