// Package areq is an HTTP/1.1 client built directly on TCP and TLS:
// requests are serialized onto pooled connections, responses parsed
// off them, and a middleware chain supplies retries, redirects,
// cookies, content decoding and authentication.
package areq

import (
	"github.com/areq-dev/areq/internal"
	"github.com/areq-dev/areq/internal/cookies"
	"github.com/areq-dev/areq/internal/dialer"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/model"
)

type Client = internal.Client

type Request = model.Request
type PreparedRequest = model.PreparedRequest
type Response = model.Response
type Credentials = model.Credentials

// RequestOption and the With helpers configure requests built by the
// client's verb methods.
type RequestOption = model.RequestOption

var (
	WithHeaders = model.WithHeaders
	WithParams  = model.WithParams
	WithBody    = model.WithBody
	WithJSON    = model.WithJSON
	WithForm    = model.WithForm
	WithAuth    = model.WithAuth
	WithTimeout = model.WithTimeout
)

type Headers = headers.Headers

// NewHeaders builds a header set from name/value pairs.
var NewHeaders = headers.New

type Handler = internal.Handler
type Middleware = internal.Middleware

type Dialer = dialer.Dialer
type CoreDialer = dialer.CoreDialer
type ResolveConfig = dialer.ResolveConfig

type Cookie = cookies.Cookie
type CookieJar = cookies.Jar
