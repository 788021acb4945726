// Package model holds the request and response value objects passed
// through the middleware chain and the transport.
package model

import (
	"io"
	"time"

	"github.com/areq-dev/areq/internal/headers"
)

// Credentials is a username/password pair, either supplied by the
// caller or lifted from the URL userinfo.
type Credentials struct {
	Username string
	Password string
}

// Request is what callers hand to the client. Body accepts a finite
// byte block (string, []byte, *bytes.Buffer/Reader, *strings.Reader)
// or an io.Reader producer of unknown length, which is sent chunked.
type Request struct {
	Method string
	URL    string
	Header *headers.Headers

	// Params are appended to the URL query. Setting both a URL query
	// and Params is rejected at Prepare.
	Params [][2]string

	Body interface{}

	// JSON marshals the value into the body and sets
	// Content-Type: application/json. Mutually exclusive with Body.
	JSON interface{}

	// Form encodes the pairs as application/x-www-form-urlencoded.
	// Mutually exclusive with Body and JSON.
	Form [][2]string

	Auth    *Credentials
	Timeout time.Duration

	// MaxRedirects overrides the client redirect budget when > 0; a
	// negative value turns redirect following off for this request.
	MaxRedirects int

	// Stream makes the transport hand back the body as a lazy reader
	// owning its connection instead of materializing it.
	Stream bool
}

// Response is the result of a round trip. A materialized response holds
// its body in Content, and Body reads over the same bytes. A streaming
// response leaves Content nil and Body reads from the connection (the
// caller must Close it to release the connection).
type Response struct {
	Proto      string
	StatusCode int
	Status     string // reason phrase
	Header     *headers.Headers

	ContentLength int64
	Content       []byte
	Body          io.ReadCloser

	// Request is the prepared request that produced this response,
	// after any middleware rewrites.
	Request *PreparedRequest

	// Redirects lists the intermediate URLs traversed, oldest first.
	Redirects []string

	// Reusable reports whether the connection may serve another
	// exchange once the body is drained.
	Reusable bool
}

// IsStream reports whether the body is lazily read.
func (r *Response) IsStream() bool { return r.Content == nil && r.Body != nil }
