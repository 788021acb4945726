package middleware_test

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/middleware"
	"github.com/areq-dev/areq/internal/model"
)

func challenge401(www string) func(*model.PreparedRequest) (*model.Response, error) {
	return respond(401, headers.New("WWW-Authenticate", www), "denied")
}

func authParams(t *testing.T, header string) map[string]string {
	t.Helper()
	scheme, rest, ok := strings.Cut(header, " ")
	require.True(t, ok, header)
	require.Equal(t, "Digest", scheme)
	out := map[string]string{}
	for _, item := range headers.SplitList(rest) {
		k, v, ok := strings.Cut(item, "=")
		require.True(t, ok, item)
		out[strings.TrimSpace(k)] = headers.Unquote(strings.TrimSpace(v))
	}
	return out
}

func md5hex(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func sha256hex(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func TestAuthSkipsWithoutCredentials(t *testing.T) {
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Basic realm="x"`),
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	resp, err := h(context.Background(), prepare(t, &model.Request{URL: "http://example.com/"}))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, 1, s.calls)
}

func TestAuthBasic(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Basic realm="private"`),
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "in")(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	resp, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/",
		Auth: &model.Credentials{Username: "alice", Password: "open sesame"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Basic YWxpY2U6b3BlbiBzZXNhbWU=", got)
}

func TestAuthDigestMD5(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Digest realm="test", nonce="n0nce", qop="auth", algorithm=MD5, opaque="0paq"`),
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "in")(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	resp, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/dir/index.html",
		Auth: &model.Credentials{Username: "Mufasa", Password: "Circle of Life"},
	}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	p := authParams(t, got)
	assert.Equal(t, "Mufasa", p["username"])
	assert.Equal(t, "test", p["realm"])
	assert.Equal(t, "n0nce", p["nonce"])
	assert.Equal(t, "/dir/index.html", p["uri"])
	assert.Equal(t, "0paq", p["opaque"])
	assert.Equal(t, "auth", p["qop"])
	assert.Equal(t, "00000001", p["nc"])

	a1 := md5hex("Mufasa", "test", "Circle of Life")
	a2 := md5hex("GET", "/dir/index.html")
	assert.Equal(t, md5hex(a1, "n0nce", p["nc"], p["cnonce"], "auth", a2), p["response"])
}

func TestAuthDigestSHA256NoQop(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Digest realm="r", nonce="xyz", algorithm=SHA-256`),
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "")(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	_, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/a",
		Auth: &model.Credentials{Username: "u", Password: "p"},
	}))
	require.NoError(t, err)

	p := authParams(t, got)
	a1 := sha256hex("u", "r", "p")
	a2 := sha256hex("GET", "/a")
	assert.Equal(t, sha256hex(a1, "xyz", a2), p["response"])
	_, hasNc := p["nc"]
	assert.False(t, hasNc, "no qop means no nonce counting")
}

func TestAuthDigestAuthIntHashesBody(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Digest realm="r", nonce="n", qop="auth-int"`),
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "")(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	_, err := h(context.Background(), prepare(t, &model.Request{
		Method: "POST",
		URL:    "http://example.com/post",
		Body:   "payload",
		Auth:   &model.Credentials{Username: "u", Password: "p"},
	}))
	require.NoError(t, err)

	p := authParams(t, got)
	assert.Equal(t, "auth-int", p["qop"])
	a1 := md5hex("u", "r", "p")
	bodySum := md5.Sum([]byte("payload"))
	a2 := md5hex("POST", "/post", hex.EncodeToString(bodySum[:]))
	assert.Equal(t, md5hex(a1, "n", p["nc"], p["cnonce"], "auth-int", a2), p["response"])
}

func TestAuthDigestPreemptiveSession(t *testing.T) {
	auth := middleware.NewAuthenticator()
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Digest realm="r", nonce="n", qop="auth"`),
		respond(200, nil, ""),
	}}
	h := middleware.Chain(s.handle, auth.Middleware())

	creds := &model.Credentials{Username: "u", Password: "p"}
	_, err := h(context.Background(), prepare(t, &model.Request{URL: "http://example.com/a", Auth: creds}))
	require.NoError(t, err)
	require.Equal(t, 2, s.calls)

	// the cached session answers before the server asks again
	var got string
	s2 := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "")(r)
		},
	}}
	h2 := middleware.Chain(s2.handle, auth.Middleware())
	_, err = h2(context.Background(), prepare(t, &model.Request{URL: "http://example.com/b", Auth: creds}))
	require.NoError(t, err)
	require.Equal(t, 1, s2.calls)
	assert.Equal(t, "00000002", authParams(t, got)["nc"], "nonce count advances per request")
}

func TestAuthDigestRealmsKeepSeparateCounters(t *testing.T) {
	var seen []string
	record := func(answer func(*model.PreparedRequest) (*model.Response, error)) func(*model.PreparedRequest) (*model.Response, error) {
		return func(r *model.PreparedRequest) (*model.Response, error) {
			seen = append(seen, r.Header.Value("Authorization"))
			return answer(r)
		}
	}
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		record(challenge401(`Digest realm="admin", nonce="na", qop="auth"`)),
		record(respond(200, nil, "")),
		record(challenge401(`Digest realm="api", nonce="nb", qop="auth"`)),
		record(respond(200, nil, "")),
		record(challenge401(`Digest realm="admin", nonce="na", qop="auth"`)),
		record(respond(200, nil, "")),
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	creds := &model.Credentials{Username: "u", Password: "p"}
	for i := 0; i < 3; i++ {
		resp, err := h(context.Background(), prepare(t, &model.Request{
			URL: "http://example.com/", Auth: creds,
		}))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
	}
	require.Len(t, seen, 6)

	assert.Empty(t, seen[0])
	first := authParams(t, seen[1])
	assert.Equal(t, "admin", first["realm"])
	assert.Equal(t, "00000001", first["nc"])

	// the second request rides in preemptively on the admin session,
	// gets challenged for the other realm, and that realm starts at one
	assert.Equal(t, "admin", authParams(t, seen[2])["realm"])
	api := authParams(t, seen[3])
	assert.Equal(t, "api", api["realm"])
	assert.Equal(t, "00000001", api["nc"], "a new realm does not inherit another realm's counter")

	assert.Equal(t, "00000002", authParams(t, seen[4])["nc"])
	again := authParams(t, seen[5])
	assert.Equal(t, "admin", again["realm"])
	assert.Equal(t, "00000003", again["nc"], "an unchanged nonce continues the realm's counter")
}

func TestAuthPrefersDigestOverBasic(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Basic realm="b"`),
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "")(r)
		},
	}}
	// two challenge headers on the 401
	s.answers[0] = func(r *model.PreparedRequest) (*model.Response, error) {
		hdr := headers.New("WWW-Authenticate", `Basic realm="b"`)
		hdr.Add("WWW-Authenticate", `Digest realm="d", nonce="n", qop="auth"`)
		return respond(401, hdr, "")(r)
	}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	_, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/",
		Auth: &model.Credentials{Username: "u", Password: "p"},
	}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Digest "), got)
}

func TestAuthUnsupportedDigestFallsBackToBasic(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		func(r *model.PreparedRequest) (*model.Response, error) {
			hdr := headers.New("WWW-Authenticate", `Digest realm="d", nonce="n", algorithm=TIGER-192`)
			hdr.Add("WWW-Authenticate", `Basic realm="b"`)
			return respond(401, hdr, "")(r)
		},
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return respond(200, nil, "")(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	_, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/",
		Auth: &model.Credentials{Username: "u", Password: "p"},
	}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Basic "), got)
}

func TestAuthCallerHeaderWins(t *testing.T) {
	var got string
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		func(r *model.PreparedRequest) (*model.Response, error) {
			got = r.Header.Value("Authorization")
			return challenge401(`Basic realm="x"`)(r)
		},
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	resp, err := h(context.Background(), prepare(t, &model.Request{
		URL:    "http://example.com/",
		Header: headers.New("Authorization", "Bearer tok"),
		Auth:   &model.Credentials{Username: "u", Password: "p"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode, "no challenge round against a caller-set header")
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, "Bearer tok", got)
}

func TestAuthRepeated401Surfaces(t *testing.T) {
	s := &stub{answers: []func(*model.PreparedRequest) (*model.Response, error){
		challenge401(`Basic realm="x"`),
	}}
	h := middleware.Chain(s.handle, middleware.NewAuthenticator().Middleware())

	resp, err := h(context.Background(), prepare(t, &model.Request{
		URL:  "http://example.com/",
		Auth: &model.Credentials{Username: "u", Password: "wrong"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode, "bad credentials come back as the server's 401")
	assert.Equal(t, 2, s.calls, "one challenge round, no loop")
}
