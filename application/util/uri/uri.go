package uri

import (
	"strconv"
	"strings"

	"sockhttp/lib/types/pointer"

	"github.com/pkg/errors"
)

var ErrInvalidPath = errors.New("invalid path")

// URI keeps every component in its escaped (on-the-wire) form.
type URI struct {
	Scheme    string
	Authority *Authority
	Path      string
	Query     *string
	Fragment  *string
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-4.2
func (u *URI) IsRelativeRef() bool {
	return u.Scheme == ""
}

// RequestTarget returns the origin-form of u: path and query, without fragment.
// An empty path becomes "/".
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2.1
func (u *URI) RequestTarget() string {
	b := new(strings.Builder)
	if !strings.HasPrefix(u.Path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(u.Path)
	if u.Query != nil {
		b.WriteByte('?')
		b.WriteString(*u.Query)
	}
	return b.String()
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-5.3
func (u *URI) String() string {
	b := new(strings.Builder)
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteByte(':')
	}

	if u.Authority != nil {
		b.WriteString("//")
		if u.Authority.UserInfo != "" {
			b.WriteString(u.Authority.UserInfo)
			b.WriteByte('@')
		}
		b.WriteString(u.Authority.Host)
		if u.Authority.Port != nil {
			b.WriteByte(':')
			b.WriteString(strconv.FormatUint(uint64(*u.Authority.Port), 10))
		}
	}

	b.WriteString(u.Path)

	if u.Query != nil {
		b.WriteByte('?')
		b.WriteString(*u.Query)
	}

	if u.Fragment != nil {
		b.WriteByte('#')
		b.WriteString(*u.Fragment)
	}

	return b.String()
}

type Authority struct {
	UserInfo string
	Host     string

	// NOTE: Port can be digits of any length. But practically it is in range of 0 ~ 65535.
	// Reference: datatracker.ietf.org/doc/html/rfc3986#section-3.2.3
	Port *uint16
}

// ValidatePath makes sure path is an absolute path optionally followed by
// a query and a fragment. A missing leading slash is added.
func ValidatePath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if containsCTL(path) {
		return "", errors.Wrapf(ErrInvalidPath, "control character in %q", path)
	}

	c := splitComponents(path)
	if strings.HasPrefix(c.path, "//") {
		// That would be read as an authority.
		return "", errors.Wrapf(ErrInvalidPath, "%q starts with '//'", path)
	}
	if err := assertValidPath(c.path, true, false); err != nil {
		return "", errors.Wrapf(ErrInvalidPath, "%q: %s", path, err)
	}
	if c.query != nil && !isQueryFragValid(*c.query) {
		return "", errors.Wrapf(ErrInvalidPath, "%q: query is not valid", path)
	}
	if c.fragment != nil && !isQueryFragValid(*c.fragment) {
		return "", errors.Wrapf(ErrInvalidPath, "%q: fragment is not valid", path)
	}

	return path, nil
}

// Parse parses rawURL as either a URI or a relative reference.
// Scheme and host are lowercased. Other components stay escaped.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#appendix-A
func Parse(rawURL string) (URI, error) {
	if containsCTL(rawURL) {
		return URI{}, errors.New("URI should not contain CTL bytes")
	}

	scheme, rest, err := splitScheme(rawURL)
	if err != nil {
		return URI{}, errors.Wrap(err, "getting scheme")
	}

	u := URI{Scheme: strings.ToLower(scheme)}

	if after, ok := strings.CutPrefix(rest, "//"); ok {
		end := strings.IndexAny(after, "/?#")
		if end < 0 {
			end = len(after)
		}

		authority, err := parseAuthority(after[:end])
		if err != nil {
			return URI{}, errors.Wrap(err, "parsing authority")
		}

		u.Authority = &authority
		rest = after[end:]
	}

	c := splitComponents(rest)

	if err := assertValidPath(c.path, u.Authority != nil, u.IsRelativeRef()); err != nil {
		return URI{}, errors.Wrap(err, "path is not valid")
	}
	u.Path = c.path

	if c.query != nil {
		if !isQueryFragValid(*c.query) {
			return URI{}, errors.Errorf("query %q is not valid", *c.query)
		}
		u.Query = c.query
	}

	if c.fragment != nil {
		if !isQueryFragValid(*c.fragment) {
			return URI{}, errors.Errorf("fragment %q is not valid", *c.fragment)
		}
		u.Fragment = c.fragment
	}

	return u, nil
}

// splitScheme returns an empty scheme when the first colon belongs to a
// later component.
func splitScheme(rawURL string) (scheme, rest string, err error) {
	i := strings.IndexAny(rawURL, ":/?#")
	if i < 0 || rawURL[i] != ':' {
		return "", rawURL, nil
	}

	if err := assertValidScheme(rawURL[:i]); err != nil {
		return "", "", err
	}

	return rawURL[:i], rawURL[i+1:], nil
}

func parseAuthority(raw string) (Authority, error) {
	var authority Authority

	if userInfo, hostPort, found := strings.Cut(raw, "@"); found {
		if !isValidUserInfo(userInfo) {
			return Authority{}, errors.Errorf("user information %q is not valid", userInfo)
		}
		authority.UserInfo = userInfo
		raw = hostPort
	}

	host, port := splitHostPort(raw)
	if err := assertValidHost(host); err != nil {
		return Authority{}, errors.Wrap(err, "host is not valid")
	}
	authority.Host = strings.ToLower(host)

	if port != "" {
		n, err := parsePort(port)
		if err != nil {
			return Authority{}, errors.Wrapf(err, "parsing port %q", port)
		}
		authority.Port = pointer.To(n)
	}

	return authority, nil
}

// splitHostPort separates the port digits from raw. A bracketed IP literal
// keeps its brackets. An empty port is the same as no port at all.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-3.2.3
func splitHostPort(raw string) (host, port string) {
	from := 0
	if strings.HasPrefix(raw, "[") {
		from = strings.LastIndexByte(raw, ']') + 1
		if from == 0 {
			return raw, ""
		}
	}

	i := strings.LastIndexByte(raw[from:], ':')
	if i < 0 {
		return raw, ""
	}

	return raw[:from+i], raw[from+i+1:]
}

// parsePort only accepts what fits in a uint16, without leading zeros.
func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}

	if len(s) > 1 && s[0] == '0' {
		return 0, errors.New("port has leading zero")
	}

	return uint16(n), nil
}

type components struct {
	path            string
	query, fragment *string
}

func splitComponents(raw string) components {
	var c components

	if rest, frag, found := strings.Cut(raw, "#"); found {
		c.fragment = pointer.To(frag)
		raw = rest
	}

	if rest, query, found := strings.Cut(raw, "?"); found {
		c.query = pointer.To(query)
		raw = rest
	}

	c.path = raw
	return c
}
