package middleware

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/model"
)

type digestChallenge struct {
	realm     string
	nonce     string
	opaque    string
	algorithm string
	qop       []string
	userhash  bool
}

func parseDigestChallenge(params string) digestChallenge {
	var ch digestChallenge
	for _, item := range headers.SplitList(params) {
		k, v, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = headers.Unquote(strings.TrimSpace(v))
		switch k {
		case "realm":
			ch.realm = v
		case "nonce":
			ch.nonce = v
		case "opaque":
			ch.opaque = v
		case "algorithm":
			ch.algorithm = v
		case "qop":
			for _, q := range strings.Split(v, ",") {
				ch.qop = append(ch.qop, strings.ToLower(strings.TrimSpace(q)))
			}
		case "userhash":
			ch.userhash = strings.EqualFold(v, "true")
		}
	}
	return ch
}

// digestSession carries one server challenge and the nonce counter
// shared by every request answering it.
type digestSession struct {
	ch     digestChallenge
	hashFn func() hash.Hash
	sess   bool

	mu sync.Mutex
	nc uint32
}

func newDigestSession(ch digestChallenge) (*digestSession, error) {
	s := &digestSession{ch: ch}
	alg := strings.ToUpper(ch.algorithm)
	s.sess = strings.HasSuffix(alg, "-SESS")
	switch strings.TrimSuffix(alg, "-SESS") {
	case "", "MD5":
		s.hashFn = md5.New
	case "SHA-256":
		s.hashFn = sha256.New
	default:
		return nil, errcore.Newf(errcore.AuthenticationError,
			"unsupported digest algorithm %q", ch.algorithm)
	}
	return s, nil
}

func (s *digestSession) h(parts ...string) string {
	hh := s.hashFn()
	io.WriteString(hh, strings.Join(parts, ":"))
	return hex.EncodeToString(hh.Sum(nil))
}

func (s *digestSession) pickQop(r *model.PreparedRequest) (string, error) {
	if len(s.ch.qop) == 0 {
		return "", nil
	}
	hasAuth, hasAuthInt := false, false
	for _, q := range s.ch.qop {
		switch q {
		case "auth":
			hasAuth = true
		case "auth-int":
			hasAuthInt = true
		}
	}
	if hasAuth {
		return "auth", nil
	}
	if hasAuthInt {
		if !r.Replayable() {
			return "", errcore.New(errcore.AuthenticationError,
				"auth-int requires a replayable body")
		}
		return "auth-int", nil
	}
	return "", errcore.Newf(errcore.AuthenticationError, "unsupported qop %v", s.ch.qop)
}

func (s *digestSession) bodyHash(r *model.PreparedRequest) (string, error) {
	hh := s.hashFn()
	body, err := r.GetBody()
	if err != nil {
		return "", errcore.Wrap(errcore.AuthenticationError, err, "hashing body for auth-int")
	}
	if body != nil {
		_, err = io.Copy(hh, body)
		body.Close()
		if err != nil {
			return "", errcore.Wrap(errcore.AuthenticationError, err, "hashing body for auth-int")
		}
	}
	return hex.EncodeToString(hh.Sum(nil)), nil
}

// authorize computes the Authorization value for r, bumping the nonce
// counter.
func (s *digestSession) authorize(r *model.PreparedRequest, creds *model.Credentials) (string, error) {
	qop, err := s.pickQop(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.nc++
	nc := fmt.Sprintf("%08x", s.nc)
	s.mu.Unlock()
	cnonce := newCnonce()

	a1 := s.h(creds.Username, s.ch.realm, creds.Password)
	if s.sess {
		a1 = s.h(a1, s.ch.nonce, cnonce)
	}
	target := r.U.RequestTarget()
	var a2 string
	if qop == "auth-int" {
		bh, err := s.bodyHash(r)
		if err != nil {
			return "", err
		}
		a2 = s.h(r.Method, target, bh)
	} else {
		a2 = s.h(r.Method, target)
	}

	var response string
	if qop == "" {
		response = s.h(a1, s.ch.nonce, a2)
	} else {
		response = s.h(a1, s.ch.nonce, nc, cnonce, qop, a2)
	}

	username := creds.Username
	if s.ch.userhash {
		username = s.h(creds.Username, s.ch.realm)
	}
	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		username, s.ch.realm, s.ch.nonce, target, response)
	if s.ch.algorithm != "" {
		fmt.Fprintf(&b, ", algorithm=%s", s.ch.algorithm)
	}
	if s.ch.opaque != "" {
		fmt.Fprintf(&b, ", opaque=%q", s.ch.opaque)
	}
	if qop != "" {
		fmt.Fprintf(&b, ", qop=%s, nc=%s, cnonce=%q", qop, nc, cnonce)
	}
	if s.ch.userhash {
		b.WriteString(", userhash=true")
	}
	return b.String(), nil
}

func newCnonce() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
