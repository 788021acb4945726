// Package cookies implements a client-side RFC 6265 cookie store.
package cookies

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/uri"
)

// Cookie is one stored cookie with its RFC 6265 attributes resolved
// against the request that carried it.
type Cookie struct {
	Name  string
	Value string

	Domain string
	Path   string

	Expires    time.Time // zero when Persistent is false
	Persistent bool

	Secure   bool
	HTTPOnly bool
	HostOnly bool

	Created    time.Time
	LastAccess time.Time
}

func (c *Cookie) expired(now time.Time) bool {
	return c.Persistent && !c.Expires.After(now)
}

// expiresFormats covers the date shapes servers actually emit.
var expiresFormats = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	time.ANSIC,
}

// ParseSetCookie parses one Set-Cookie header value received for a
// request to u. Unknown attributes are ignored; a Domain attribute
// that does not cover the request host is an error.
func ParseSetCookie(value string, u *uri.URI, now time.Time) (*Cookie, error) {
	parts := strings.Split(value, ";")
	name, val, found := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !found || name == "" {
		return nil, errors.Errorf("malformed cookie-pair %q", parts[0])
	}
	c := &Cookie{
		Name:       strings.TrimSpace(name),
		Value:      headers.Unquote(strings.TrimSpace(val)),
		Created:    now,
		LastAccess: now,
	}

	var maxAge, expires string
	for _, attr := range parts[1:] {
		aname, avalue, _ := strings.Cut(strings.TrimSpace(attr), "=")
		avalue = strings.TrimSpace(avalue)
		switch strings.ToLower(strings.TrimSpace(aname)) {
		case "domain":
			c.Domain = strings.TrimPrefix(strings.ToLower(avalue), ".")
		case "path":
			c.Path = avalue
		case "expires":
			expires = avalue
		case "max-age":
			maxAge = avalue
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		}
	}

	// Max-Age wins over Expires when both are present.
	if maxAge != "" {
		secs, err := strconv.ParseInt(maxAge, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "parsing max-age")
		}
		c.Persistent = true
		c.Expires = now.Add(time.Duration(secs) * time.Second)
	} else if expires != "" {
		var t time.Time
		var err error
		for _, layout := range expiresFormats {
			if t, err = time.Parse(layout, expires); err == nil {
				break
			}
		}
		if err != nil {
			return nil, errors.Errorf("unparseable expires date %q", expires)
		}
		c.Persistent = true
		c.Expires = t
	}

	if c.Domain == "" {
		c.HostOnly = true
		c.Domain = u.Host
	} else if !domainMatch(u.Host, c.Domain) {
		return nil, errors.Errorf("cookie domain %q does not cover host %q", c.Domain, u.Host)
	}

	if c.Path == "" || c.Path[0] != '/' {
		c.Path = defaultPath(u.Path)
	}
	return c, nil
}

// defaultPath computes the RFC 6265 default-path of a request path.
func defaultPath(reqPath string) string {
	if reqPath == "" || reqPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(reqPath, '/')
	if i == 0 {
		return "/"
	}
	return reqPath[:i]
}

// domainMatch implements RFC 6265 §5.1.3: host equals the domain, or
// ends with "." + domain and is not an IP literal.
func domainMatch(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	if !strings.HasSuffix(host, domain) {
		return false
	}
	if host[len(host)-len(domain)-1] != '.' {
		return false
	}
	return !isIP(host)
}

func isIP(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		if (c < '0' || c > '9') && c != '.' && c != ':' {
			return false
		}
	}
	return len(host) > 0
}

// pathMatch implements RFC 6265 §5.1.4.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		if len(reqPath) > len(cookiePath) && reqPath[len(cookiePath)] == '/' {
			return true
		}
	}
	return false
}
