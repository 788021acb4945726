package middleware

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
)

type RetryConfig struct {
	// Attempts is the number of retries after the first try.
	Attempts uint

	// Backoff is the fixed delay before each retry. Zero retries
	// immediately.
	Backoff time.Duration

	// RetryNonIdempotent also retries POST and PATCH. Off by default
	// since the server may have seen the first attempt.
	RetryNonIdempotent bool

	Clock clock.Clock
}

// Retry re-issues requests that failed with a transient transport
// error. Requests whose body cannot be replayed are never retried.
func Retry(cfg RetryConfig) Middleware {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			resp, err := next(ctx, r)
			for attempt := uint(1); attempt <= cfg.Attempts; attempt++ {
				if err == nil || !errcore.Transient(err) {
					break
				}
				if !idempotent(r.Method) && !cfg.RetryNonIdempotent {
					break
				}
				if !r.Replayable() {
					break
				}
				if cfg.Backoff > 0 {
					t := clk.Timer(cfg.Backoff)
					select {
					case <-t.C:
					case <-ctx.Done():
						t.Stop()
						return nil, errcore.Wrap(errcore.Timeout, ctx.Err(), "waiting to retry")
					}
				}
				resp, err = next(ctx, r)
			}
			return resp, err
		}
	}
}

func idempotent(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS", "TRACE", "PUT", "DELETE":
		return true
	}
	return false
}
