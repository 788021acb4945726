package cookies

import (
	"sort"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/areq-dev/areq/internal/uri"
)

// Jar stores cookies for the lifetime of a Client. (domain, path, name)
// is unique within a jar; newer inserts overwrite. Reads take a shared
// lock, writes a short exclusive section.
type Jar struct {
	mu      sync.RWMutex
	clock   clock.Clock
	cookies []*Cookie
}

// NewJar builds an empty jar. A nil clk falls back to the wall clock.
func NewJar(clk clock.Clock) *Jar {
	if clk == nil {
		clk = clock.New()
	}
	return &Jar{clock: clk}
}

func sameIdentity(a, b *Cookie) bool {
	return a.Name == b.Name && a.Domain == b.Domain && a.Path == b.Path
}

// SetFromResponse ingests every Set-Cookie value of a response to u.
// Malformed or off-domain cookies are skipped.
func (j *Jar) SetFromResponse(u *uri.URI, setCookies []string) {
	if len(setCookies) == 0 {
		return
	}
	now := j.clock.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, raw := range setCookies {
		c, err := ParseSetCookie(raw, u, now)
		if err != nil {
			continue
		}
		replaced := false
		for i, old := range j.cookies {
			if sameIdentity(old, c) {
				c.Created = old.Created
				j.cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			j.cookies = append(j.cookies, c)
		}
	}
}

// Matching returns the cookies to send for a request to u, ordered
// longest-path-first and by creation time within equal paths. Expired
// cookies are evicted as a side effect.
func (j *Jar) Matching(u *uri.URI) []*Cookie {
	now := j.clock.Now()

	j.mu.Lock()
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if !c.expired(now) {
			kept = append(kept, c)
		}
	}
	j.cookies = kept
	snapshot := append([]*Cookie(nil), j.cookies...)
	j.mu.Unlock()

	var out []*Cookie
	for _, c := range snapshot {
		if c.HostOnly {
			if !strings.EqualFold(u.Host, c.Domain) {
				continue
			}
		} else if !domainMatch(u.Host, c.Domain) {
			continue
		}
		if !pathMatch(u.Path, c.Path) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		c.LastAccess = now
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, k int) bool {
		if len(out[i].Path) != len(out[k].Path) {
			return len(out[i].Path) > len(out[k].Path)
		}
		return out[i].Created.Before(out[k].Created)
	})
	return out
}

// Header renders the Cookie header value for a request to u, or ""
// when nothing matches.
func (j *Jar) Header(u *uri.URI) string {
	matched := j.Matching(u)
	if len(matched) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range matched {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// Len reports the number of stored cookies, expired ones included.
func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.cookies)
}
