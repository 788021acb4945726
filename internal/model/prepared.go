package model

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/uri"
)

// PreparedRequest is a Request frozen for transmission: URL parsed,
// headers merged and validated, body snapshotted behind GetBody so
// retries and redirects can replay it.
type PreparedRequest struct {
	*Request

	U          *uri.URI
	Header     *headers.Headers
	HeaderHost string

	// GetBody returns a fresh reader over the body for each call when
	// the body is a finite block. Producer bodies can only be read
	// once; the second call fails.
	GetBody func() (io.ReadCloser, error)

	// ContentLength is -1 for producer bodies of unknown length,
	// which go out chunked.
	ContentLength int64

	Auth *Credentials

	replayable bool
}

// Replayable reports whether GetBody can be called again, which is
// what retries, redirects and authentication round trips need.
func (r *PreparedRequest) Replayable() bool {
	return r.replayable
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		}
		return false
	}
	return true
}

// Prepare validates the request and freezes it for the wire.
func (r *Request) Prepare() (*PreparedRequest, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = "GET"
	}
	if !isToken(method) {
		return nil, errcore.Newf(errcore.InvalidURI, "invalid method %q", r.Method)
	}

	u, err := uri.Parse(r.URL)
	if err != nil {
		return nil, err
	}
	if len(r.Params) > 0 {
		if u.RawQuery != "" {
			return nil, errcore.New(errcore.InvalidURI,
				"request carries a query both in the url and in params")
		}
		u = u.WithQuery(r.Params)
	}

	hdr := r.Header.Clone()
	host := u.HostHeader()
	cl := int64(-2) // -2: not forced by caller
	// user supplied headers take priority over computed ones
	if v, ok := hdr.Get("Host"); ok && v != "" {
		host = v
	}
	hdr.Del("Host")
	if v, ok := hdr.Get("Content-Length"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cl = n
		}
	}
	hdr.Del("Content-Length")

	auth := r.Auth
	if auth == nil && u.Username != "" {
		auth = &Credentials{Username: u.Username, Password: u.Password}
	}

	frozen := *r
	frozen.Method = method
	pr := &PreparedRequest{
		Request:       &frozen,
		U:             u,
		Header:        hdr,
		HeaderHost:    host,
		ContentLength: -1,
		Auth:          auth,
	}

	if err := pr.updateBody(); err != nil {
		return nil, err
	}
	if cl != -2 && pr.ContentLength != -1 && pr.ContentLength != cl {
		return nil, errcore.New(errcore.InvalidURI,
			"conflicting value between body size and content-length header")
	}
	return pr, nil
}

// updateBody snapshots the body behind GetBody. Should only be called
// once, at Prepare.
func (r *PreparedRequest) updateBody() error {
	body := r.Request.Body
	set := 0
	for _, present := range []bool{body != nil, r.Request.JSON != nil, len(r.Request.Form) > 0} {
		if present {
			set++
		}
	}
	if set > 1 {
		return errcore.New(errcore.InvalidURI, "body, json and form are mutually exclusive")
	}

	if r.Request.JSON != nil {
		buf, err := json.Marshal(r.Request.JSON)
		if err != nil {
			return errcore.Wrap(errcore.InvalidURI, err, "marshaling json body")
		}
		if !r.Header.Has("Content-Type") {
			r.Header.Set("Content-Type", "application/json")
		}
		body = buf
	} else if len(r.Request.Form) > 0 {
		var b strings.Builder
		for i, kv := range r.Request.Form {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(kv[0]))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(kv[1]))
		}
		if !r.Header.Has("Content-Type") {
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		body = b.String()
	}

	if body == nil {
		r.GetBody = func() (io.ReadCloser, error) { return nil, nil }
		r.ContentLength = 0
		r.replayable = true
		return nil
	}

	r.replayable = true
	switch b := body.(type) {
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	case *bytes.Buffer:
		r.ContentLength = int64(b.Len())
		buf := b.Bytes()
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case *bytes.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			rd := snapshot
			return io.NopCloser(&rd), nil
		}
	case *strings.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			rd := snapshot
			return io.NopCloser(&rd), nil
		}
	case io.Reader:
		if sizer, ok := b.(interface{ Size() int64 }); ok {
			r.ContentLength = sizer.Size()
		} else {
			r.ContentLength = -1
		}
		cb, ok := b.(io.ReadCloser)
		if !ok {
			cb = io.NopCloser(b)
		}
		r.replayable = false
		var once atomic.Bool
		r.GetBody = func() (io.ReadCloser, error) {
			if once.CompareAndSwap(false, true) {
				return cb, nil
			}
			return nil, errors.New("producer body was already consumed")
		}
	default:
		return errcore.Newf(errcore.InvalidURI, "unsupported body type %T", body)
	}
	return nil
}

// HasBody reports whether anything must be written after the headers.
func (r *PreparedRequest) HasBody() bool {
	return r.ContentLength != 0
}

// RedirectTo points the prepared request at a new target, keeping the
// frozen body unless dropBody is set (303, and POST on 301/302).
func (r *PreparedRequest) RedirectTo(u *uri.URI, method string, dropBody bool) {
	r.U = u
	r.HeaderHost = u.HostHeader()
	r.Request.Method = method
	if dropBody {
		r.GetBody = func() (io.ReadCloser, error) { return nil, nil }
		r.ContentLength = 0
		r.replayable = true
		r.Header.Del("Content-Type")
	}
}
