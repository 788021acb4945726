package middleware

import (
	"context"

	"github.com/areq-dev/areq/internal/cookies"
	"github.com/areq-dev/areq/internal/model"
)

// Cookies applies the jar on the way out and ingests Set-Cookie on the
// way back. A Cookie header set by the caller wins over the jar.
func Cookies(jar *cookies.Jar) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			if jar == nil {
				return next(ctx, r)
			}
			if !r.Header.Has("Cookie") {
				if h := jar.Header(r.U); h != "" {
					r.Header.Set("Cookie", h)
				}
			}
			resp, err := next(ctx, r)
			if err == nil {
				jar.SetFromResponse(r.U, resp.Header.Values("Set-Cookie"))
			}
			return resp, err
		}
	}
}
