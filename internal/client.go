// Package internal wires the pipeline together: one Client owns a
// connection pool, a cookie jar, an authenticator state and the
// middleware chain around the transport.
package internal

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/areq-dev/areq/internal/cookies"
	"github.com/areq-dev/areq/internal/dialer"
	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/middleware"
	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/netpool"
	"github.com/areq-dev/areq/internal/transport"
)

type (
	Request         = model.Request
	PreparedRequest = model.PreparedRequest
	Response        = model.Response
	Credentials     = model.Credentials
	RequestOption   = model.RequestOption
	Handler         = middleware.Handler
	Middleware      = middleware.Middleware
	Dialer          = dialer.Dialer
	CoreDialer      = dialer.CoreDialer
)

var (
	WithHeaders = model.WithHeaders
	WithParams  = model.WithParams
	WithBody    = model.WithBody
	WithJSON    = model.WithJSON
	WithForm    = model.WithForm
	WithAuth    = model.WithAuth
	WithTimeout = model.WithTimeout
)

const (
	DefaultMaxRedirects    = 10
	DefaultRetries         = 3
	DefaultRetryBackoff    = 100 * time.Millisecond
	DefaultMaxConnsPerHost = 100
	DefaultMaxIdlePerHost  = 80
	DefaultIdleConnTimeout = 60 * time.Second
)

// Client is safe for concurrent use. The zero value works with the
// defaults above; configuration fields are read once, on the first
// request.
type Client struct {
	// Headers are merged into every request for the fields the request
	// does not set itself.
	Headers *headers.Headers

	MaxRedirects       int
	Retries            uint
	RetryBackoff       time.Duration
	RetryNonIdempotent bool

	MaxConnsPerHost uint
	MaxIdlePerHost  uint
	IdleConnTimeout time.Duration

	TLSConfig      *tls.Config
	SkipVerify     bool
	KeylogFilename string
	ResolveConfig  *dialer.ResolveConfig

	Clock clock.Clock

	mu          sync.Mutex
	initialized bool
	closed      bool
	handler     Handler
	userMWs     []Middleware
	dialerWraps []func(Dialer) Dialer
	jar         *cookies.Jar
	pool        *netpool.Group
}

// Use appends mw to the chain. The last Use'd middleware executes
// first. Must be called before the first request.
func (c *Client) Use(mws ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userMWs = append(c.userMWs, mws...)
}

// UseDialer rewraps the dialer the transport will use. Must be called
// before the first request.
func (c *Client) UseDialer(wrap func(Dialer) Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialerWraps = append(c.dialerWraps, wrap)
}

// init builds the pipeline. Caller holds c.mu.
func (c *Client) init() {
	if c.initialized {
		return
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.New()
	}
	maxConns := c.MaxConnsPerHost
	if maxConns == 0 {
		maxConns = DefaultMaxConnsPerHost
	}
	maxIdle := c.MaxIdlePerHost
	if maxIdle == 0 {
		maxIdle = DefaultMaxIdlePerHost
	}
	idleAge := c.IdleConnTimeout
	if idleAge == 0 {
		idleAge = DefaultIdleConnTimeout
	}
	maxRedirects := c.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = DefaultMaxRedirects
	}
	retries := c.Retries
	if retries == 0 {
		retries = DefaultRetries
	}
	backoff := c.RetryBackoff
	if backoff == 0 {
		backoff = DefaultRetryBackoff
	}

	c.pool = netpool.NewGroup(maxConns, maxIdle, idleAge, clk)
	c.jar = cookies.NewJar(clk)
	var d Dialer = &dialer.CoreDialer{
		ResolveConfig:  c.ResolveConfig,
		TLSConfig:      c.TLSConfig,
		SkipVerify:     c.SkipVerify,
		KeylogFilename: c.KeylogFilename,
		ConnPool:       c.pool,
	}
	for _, w := range c.dialerWraps {
		d = w(d)
	}
	t := &transport.Transport{Dialer: d}
	h := middleware.Chain(t.RoundTrip,
		middleware.Retry(middleware.RetryConfig{
			Attempts:           retries,
			Backoff:            backoff,
			RetryNonIdempotent: c.RetryNonIdempotent,
			Clock:              clk,
		}),
		middleware.Redirect(middleware.RedirectConfig{
			MaxRedirects: maxRedirects,
			Memory:       middleware.NewRedirectMemory(),
		}),
		middleware.Cookies(c.jar),
		middleware.Decode(),
		middleware.NewAuthenticator().Middleware(),
		middleware.Timeout(),
	)
	for _, m := range c.userMWs {
		h = m(h)
	}
	c.handler = h
	c.initialized = true
}

// Do prepares req and runs it through the middleware chain.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errcore.New(errcore.PoolClosed, "client is closed")
	}
	c.init()
	h, defaults := c.handler, c.Headers
	c.mu.Unlock()

	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	if defaults != nil {
		pr.Header.Merge(defaults)
	}
	return h(ctx, pr)
}

// Get and the other verb helpers build a Request from url and the
// options (headers, params, body, json, form, auth, timeout) and run
// it through Do.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("GET", url, opts...))
}

func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("HEAD", url, opts...))
}

func (c *Client) Options(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("OPTIONS", url, opts...))
}

func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("DELETE", url, opts...))
}

func (c *Client) Post(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("POST", url, opts...))
}

func (c *Client) Put(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("PUT", url, opts...))
}

func (c *Client) Patch(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, model.NewRequest("PATCH", url, opts...))
}

// CookieJar exposes the jar shared by this client's requests.
func (c *Client) CookieJar() *cookies.Jar {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()
	return c.jar
}

// Close shuts the connection pool down. Requests after Close fail with
// PoolClosed; leased connections are closed as their bodies finish.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.pool != nil {
		c.pool.Close()
	}
}
