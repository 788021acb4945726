// Package uri models absolute http(s) request URIs.
package uri

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/areq-dev/areq/internal/errcore"
)

// URI is a parsed absolute http or https URI. Host is lowercased and
// IDN-normalized, Port is always concrete (scheme default applied) and
// Path is at least "/". The fragment never reaches the wire but is kept
// for reference resolution.
type URI struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	RawQuery string
	Fragment string

	Username string
	Password string

	explicitPort bool
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// Parse parses raw as an absolute http(s) URI.
func Parse(raw string) (*URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errcore.Wrap(errcore.InvalidURI, err, "parsing url")
	}
	if !u.IsAbs() {
		return nil, errcore.Newf(errcore.InvalidURI, "uri is not absolute: %q", raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errcore.Newf(errcore.InvalidURI, "unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, errcore.New(errcore.InvalidURI, "empty host")
	}
	if ascii, err := idna.Lookup.ToASCII(strings.ToLower(host)); err == nil {
		host = ascii
	} else if !isIPLiteral(host) {
		return nil, errcore.Wrap(errcore.InvalidURI, err, "normalizing host")
	}

	port := defaultPort(scheme)
	explicit := false
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, errcore.Newf(errcore.InvalidURI, "invalid port %q", p)
		}
		port, explicit = n, true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	out := &URI{
		Scheme:       scheme,
		Host:         host,
		Port:         port,
		Path:         path,
		RawQuery:     u.RawQuery,
		Fragment:     u.Fragment,
		explicitPort: explicit,
	}
	if u.User != nil {
		out.Username = u.User.Username()
		out.Password, _ = u.User.Password()
	}
	return out, nil
}

func isIPLiteral(host string) bool {
	return net.ParseIP(strings.Trim(host, "[]")) != nil
}

// RequestTarget renders the origin-form target for the request line:
// absolute path plus optional query, never the fragment.
func (u *URI) RequestTarget() string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// HostHeader renders the value for the Host header, omitting the port
// when it is the scheme default.
func (u *URI) HostHeader() string {
	if !u.explicitPort || u.Port == defaultPort(u.Scheme) {
		return u.Host
	}
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// Address is the dialable host:port.
func (u *URI) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// Origin identifies the connection key (scheme, host, port).
func (u *URI) Origin() string {
	return u.Scheme + "://" + u.Address()
}

func (u *URI) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.Username != "" {
		b.WriteString(url.UserPassword(u.Username, u.Password).String())
		b.WriteByte('@')
	}
	b.WriteString(u.HostHeader())
	b.WriteString(u.RequestTarget())
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Equal compares case-insensitively on scheme and host, exactly on
// path and query.
func (u *URI) Equal(o *URI) bool {
	return u.Scheme == o.Scheme && u.Host == o.Host && u.Port == o.Port &&
		u.Path == o.Path && u.RawQuery == o.RawQuery
}

// SameOrigin reports whether both URIs share (scheme, host, port).
func SameOrigin(a, b *URI) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host && a.Port == b.Port
}

// Resolve interprets ref (absolute or relative) against u, as needed
// for Location headers.
func (u *URI) Resolve(ref string) (*URI, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return Parse(ref)
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.HostHeader(), Path: u.Path, RawQuery: u.RawQuery}
	rel, err := url.Parse(ref)
	if err != nil {
		return nil, errcore.Wrap(errcore.InvalidURI, err, "parsing location")
	}
	return Parse(base.ResolveReference(rel).String())
}

// WithQuery returns a copy of u with pairs appended to the query,
// preserving any existing query and the pair order.
func (u *URI) WithQuery(pairs [][2]string) *URI {
	if len(pairs) == 0 {
		return u
	}
	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, kv := range pairs {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv[1]))
	}
	out := *u
	out.RawQuery = b.String()
	return &out
}

// Query returns the query as ordered name/value pairs.
func (u *URI) Query() [][2]string {
	if u.RawQuery == "" {
		return nil
	}
	var out [][2]string
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		n, err1 := url.QueryUnescape(name)
		v, err2 := url.QueryUnescape(value)
		if err1 != nil || err2 != nil {
			out = append(out, [2]string{name, value})
			continue
		}
		out = append(out, [2]string{n, v})
	}
	return out
}
