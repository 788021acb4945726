// Package middleware implements the request pipeline. A Client wraps
// its transport in a chain of middlewares; each one sees the prepared
// request on the way in and the response on the way out.
package middleware

import (
	"context"

	"github.com/areq-dev/areq/internal/model"
)

type Handler = func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error)

type Middleware func(next Handler) Handler

// Chain wraps terminal in mws so that mws[0] runs outermost.
func Chain(terminal Handler, mws ...Middleware) Handler {
	h := terminal
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
