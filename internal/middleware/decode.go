package middleware

import (
	"bytes"
	"context"
	"io"

	"github.com/areq-dev/areq/internal/codec"
	"github.com/areq-dev/areq/internal/model"
)

// Decode decompresses materialized response bodies according to their
// Content-Encoding. Streaming responses are decoded at the transport
// while the bytes flow, so they pass through untouched here.
func Decode() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
			resp, err := next(ctx, r)
			if err != nil || r.Stream {
				return resp, err
			}
			if len(codec.ContentEncodings(resp.Header)) == 0 {
				return resp, nil
			}
			if err := codec.DecodeBytes(resp); err != nil {
				return nil, err
			}
			resp.Body = io.NopCloser(bytes.NewReader(resp.Content))
			return resp, nil
		}
	}
}
