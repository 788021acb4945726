package middleware

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/areq-dev/areq/internal/model"
)

type sessionKey struct {
	origin string
	realm  string
}

// Authenticator answers 401 challenges with the request credentials.
// Digest sessions are cached per origin and realm so later requests to
// the same protection space authenticate preemptively, each realm
// advancing its own nonce count.
type Authenticator struct {
	mu       sync.Mutex
	sessions map[sessionKey]*digestSession
	latest   map[string]string // realm of the newest challenge per origin
}

func NewAuthenticator() *Authenticator {
	return &Authenticator{
		sessions: map[sessionKey]*digestSession{},
		latest:   map[string]string{},
	}
}

// session returns the preemptive candidate for origin, the session of
// the realm that challenged most recently.
func (a *Authenticator) session(origin string) *digestSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[sessionKey{origin, a.latest[origin]}]
}

func (a *Authenticator) lookup(origin, realm string) *digestSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[sessionKey{origin, realm}]
}

func (a *Authenticator) store(origin string, s *digestSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionKey{origin, s.ch.realm}] = s
	a.latest[origin] = s.ch.realm
}

func (a *Authenticator) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			if r.Auth == nil {
				return next(ctx, r)
			}
			// A caller-set Authorization header wins outright; a 401
			// against it is the caller's to handle.
			if r.Header.Has("Authorization") {
				return next(ctx, r)
			}
			if s := a.session(r.U.Origin()); s != nil {
				if authz, err := s.authorize(r, r.Auth); err == nil {
					r.Header.Set("Authorization", authz)
				}
			}
			resp, err := next(ctx, r)
			if err != nil || resp.StatusCode != 401 {
				return resp, err
			}
			challenges := resp.Header.Values("WWW-Authenticate")
			if len(challenges) == 0 {
				return resp, nil
			}
			if r.HasBody() && !r.Replayable() {
				// cannot replay the body; surface the 401
				return resp, nil
			}
			authz, err := a.answer(r, challenges)
			if err != nil {
				resp.Body.Close()
				return nil, err
			}
			if authz == "" {
				return resp, nil
			}
			resp.Body.Close()
			r.Header.Set("Authorization", authz)
			return next(ctx, r)
		}
	}
}

// answer picks the strongest challenge the credentials can satisfy,
// preferring Digest over Basic.
func (a *Authenticator) answer(r *model.PreparedRequest, challenges []string) (string, error) {
	for _, c := range challenges {
		scheme, params, _ := strings.Cut(c, " ")
		if !strings.EqualFold(scheme, "Digest") {
			continue
		}
		s, err := newDigestSession(parseDigestChallenge(params))
		if err != nil {
			continue
		}
		if prev := a.lookup(r.U.Origin(), s.ch.realm); prev != nil && prev.ch.nonce == s.ch.nonce {
			// same server nonce, the realm's counter keeps going
			s = prev
		}
		authz, err := s.authorize(r, r.Auth)
		if err != nil {
			return "", err
		}
		a.store(r.U.Origin(), s)
		return authz, nil
	}
	for _, c := range challenges {
		scheme, _, _ := strings.Cut(c, " ")
		if strings.EqualFold(scheme, "Basic") {
			return basicAuth(r.Auth), nil
		}
	}
	return "", nil
}

func basicAuth(c *model.Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}
