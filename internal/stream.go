package internal

import (
	"context"
)

// Stream runs req in streaming mode and hands the live response to fn.
// The body and its connection are always cleaned up when fn returns,
// so fn must finish reading before it does.
func (c *Client) Stream(ctx context.Context, req *Request, fn func(*Response) error) error {
	r := *req
	r.Stream = true
	resp, err := c.Do(ctx, &r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return fn(resp)
}
