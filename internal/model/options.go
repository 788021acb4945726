package model

import (
	"time"

	"github.com/areq-dev/areq/internal/headers"
)

// RequestOption adjusts one field of a Request built by the client's
// verb helpers.
type RequestOption func(*Request)

// NewRequest builds a Request for method and url with opts applied in
// order.
func NewRequest(method, url string, opts ...RequestOption) *Request {
	r := &Request{Method: method, URL: url}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithHeaders sets the request header fields.
func WithHeaders(h *headers.Headers) RequestOption {
	return func(r *Request) { r.Header = h }
}

// WithParams appends query parameters to the request URL.
func WithParams(pairs ...[2]string) RequestOption {
	return func(r *Request) { r.Params = append(r.Params, pairs...) }
}

// WithBody sets the request body.
func WithBody(body interface{}) RequestOption {
	return func(r *Request) { r.Body = body }
}

// WithJSON marshals v as the body and sets the JSON content type.
func WithJSON(v interface{}) RequestOption {
	return func(r *Request) { r.JSON = v }
}

// WithForm url-encodes the pairs as the body.
func WithForm(pairs ...[2]string) RequestOption {
	return func(r *Request) { r.Form = append(r.Form, pairs...) }
}

// WithAuth attaches credentials for challenge authentication.
func WithAuth(username, password string) RequestOption {
	return func(r *Request) {
		r.Auth = &Credentials{Username: username, Password: password}
	}
}

// WithTimeout bounds the whole exchange, connect to last body byte.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *Request) { r.Timeout = d }
}
