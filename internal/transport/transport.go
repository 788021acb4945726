// Package transport drives single HTTP/1.1 exchanges: it leases a
// connection, writes the serialized request, parses the response and
// decides when the connection can go back to the pool.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/areq-dev/areq/internal/codec"
	"github.com/areq-dev/areq/internal/dialer"
	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/netpool"
)

// aLongTimeAgo is a deadline in the past used to unblock in-flight
// reads and writes when the context is canceled.
var aLongTimeAgo = time.Unix(1, 0)

type Transport struct {
	Dialer dialer.Dialer
}

// RoundTrip performs one request/response exchange. Materialized
// responses come back with Content filled and the connection already
// returned to the pool; streaming responses keep the connection leased
// until the body hits EOF or is closed.
func (t *Transport) RoundTrip(ctx context.Context, r *model.PreparedRequest) (*model.Response, error) {
	conn, err := t.Dialer.Dial(ctx, r)
	if err != nil {
		return nil, err
	}

	if dl, ok := ctx.Deadline(); ok {
		conn.Raw().SetDeadline(dl)
	}
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Raw().SetDeadline(aLongTimeAgo)
		case <-watchDone:
		}
	}()
	stop := func() { close(watchDone) }

	if err := codec.WriteRequest(conn, r); err != nil {
		stop()
		discard(conn)
		return nil, classify(ctx, err, errcore.WriteError, "writing request")
	}

	resp, err := codec.ReadResponse(bufio.NewReader(conn), r.Method)
	if err != nil {
		stop()
		discard(conn)
		return nil, classify(ctx, err, errcore.ReadError, "reading response")
	}
	resp.Request = r
	if !resp.Reusable {
		conn.MarkUnreusable()
	}

	if r.Stream {
		if err := setupStream(resp, conn, stop); err != nil {
			return nil, err
		}
		return resp, nil
	}

	content, err := io.ReadAll(resp.Body)
	stop()
	if err != nil {
		discard(conn)
		return nil, classify(ctx, err, errcore.ReadError, "reading response body")
	}
	conn.Raw().SetDeadline(time.Time{})
	conn.Release()
	resp.Content = content
	resp.ContentLength = int64(len(content))
	resp.Body = io.NopCloser(bytes.NewReader(content))
	return resp, nil
}

// setupStream stacks the content decoders over the framed body and
// arranges for the connection to be released when the body is fully
// consumed, or discarded when it is closed early.
func setupStream(resp *model.Response, conn netpool.Conn, stop func()) error {
	sig := &eofSignal{body: resp.Body, conn: conn, stop: stop}
	dec, err := codec.NewDecoder(sig, codec.ContentEncodings(resp.Header))
	if err != nil {
		sig.Close()
		return err
	}
	resp.Body = bodyCloser{dec, sig.Close}
	if dec != io.Reader(sig) {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}
	return nil
}

func discard(conn netpool.Conn) {
	conn.MarkUnreusable()
	conn.Release()
}

func classify(ctx context.Context, err error, kind errcore.Kind, msg string) error {
	if ctx.Err() != nil {
		return errcore.Wrap(errcore.Timeout, ctx.Err(), msg)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errcore.Wrap(errcore.Timeout, err, msg)
	}
	return errcore.Wrap(kind, err, msg)
}

type bodyCloser struct {
	io.Reader
	close func() error
}

func (b bodyCloser) Close() error { return b.close() }

// eofSignal releases the connection back to the pool exactly once: on
// clean EOF of the framed body the connection is reusable, on a read
// error or an early Close it is discarded.
type eofSignal struct {
	body io.Reader
	conn netpool.Conn
	stop func()
	done bool
}

func (e *eofSignal) Read(p []byte) (int, error) {
	if e.done {
		return 0, io.EOF
	}
	n, err := e.body.Read(p)
	if err == io.EOF {
		e.finish(true)
	} else if err != nil {
		e.finish(false)
	}
	return n, err
}

func (e *eofSignal) Close() error {
	e.finish(false)
	return nil
}

func (e *eofSignal) finish(clean bool) {
	if e.done {
		return
	}
	e.done = true
	e.stop()
	if clean {
		e.conn.Raw().SetDeadline(time.Time{})
	} else {
		e.conn.MarkUnreusable()
	}
	e.conn.Release()
}
