package middleware

import (
	"context"
	"io"

	"github.com/areq-dev/areq/internal/model"
)

// Timeout bounds the whole exchange with the per-request timeout. For
// streaming responses the deadline stays armed until the body is
// closed, so slow reads count against it too.
func Timeout() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			if r.Timeout <= 0 {
				return next(ctx, r)
			}
			tctx, cancel := context.WithTimeout(ctx, r.Timeout)
			resp, err := next(tctx, r)
			if err != nil || !r.Stream {
				cancel()
				return resp, err
			}
			resp.Body = cancelBody{resp.Body, cancel}
			return resp, nil
		}
	}
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
