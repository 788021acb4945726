package middleware

import (
	"context"
	"sync"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/uri"
)

// RedirectMemory remembers permanent redirects (301 and 308) so later
// requests skip the extra round trip. Shared by all requests of a
// Client.
type RedirectMemory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewRedirectMemory() *RedirectMemory {
	return &RedirectMemory{m: map[string]string{}}
}

func (m *RedirectMemory) Lookup(from string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	to, ok := m.m[from]
	return to, ok
}

func (m *RedirectMemory) Store(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[from] = to
}

type RedirectConfig struct {
	// MaxRedirects applies when the request does not set its own limit.
	MaxRedirects int

	// Memory, when set, records permanent redirects and rewrites
	// matching requests before they hit the wire.
	Memory *RedirectMemory
}

// Redirect follows 3xx responses carrying a Location header. 301, 302
// and 303 turn POST into GET and drop the body; 307 and 308 replay the
// request as-is. Authorization never crosses origins.
func Redirect(cfg RedirectConfig) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			max := r.MaxRedirects
			if max == 0 {
				max = cfg.MaxRedirects
			}
			if cfg.Memory != nil {
				if to, ok := cfg.Memory.Lookup(r.U.String()); ok {
					if target, err := uri.Parse(to); err == nil {
						hopTo(r, target, r.Method, false)
					}
				}
			}
			var trail []string
			for hop := 0; ; hop++ {
				resp, err := next(ctx, r)
				if err != nil {
					return resp, err
				}
				method, drop, follow := redirectBehavior(r.Method, resp.StatusCode)
				loc, hasLoc := resp.Header.Get("Location")
				if !follow || !hasLoc || max < 0 {
					resp.Redirects = trail
					return resp, nil
				}
				if hop >= max {
					resp.Body.Close()
					return nil, errcore.Newf(errcore.TooManyRedirects,
						"stopped after %d redirects", max)
				}
				target, err := r.U.Resolve(loc)
				if err != nil {
					resp.Body.Close()
					return nil, err
				}
				if !drop && r.HasBody() && !r.Replayable() {
					resp.Redirects = trail
					return resp, nil
				}
				resp.Body.Close()
				if cfg.Memory != nil && (resp.StatusCode == 301 || resp.StatusCode == 308) {
					cfg.Memory.Store(r.U.String(), target.String())
				}
				trail = append(trail, target.String())
				hopTo(r, target, method, drop)
			}
		}
	}
}

func hopTo(r *model.PreparedRequest, target *uri.URI, method string, drop bool) {
	crossOrigin := !uri.SameOrigin(r.U, target)
	r.RedirectTo(target, method, drop)
	if crossOrigin {
		r.Header.Del("Authorization")
	}
	// the cookie layer re-applies the jar against the new target
	r.Header.Del("Cookie")
}

// redirectBehavior reports the method for the next hop, whether the
// body is dropped, and whether the status redirects at all.
func redirectBehavior(method string, code int) (string, bool, bool) {
	switch code {
	case 301, 302:
		if method == "POST" {
			return "GET", true, true
		}
		return method, false, true
	case 303:
		if method == "HEAD" {
			return method, true, true
		}
		return "GET", true, true
	case 307, 308:
		return method, false, true
	}
	return method, false, false
}
