package transport_test

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/areq-dev/areq/internal/dialer"
	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/netpool"
	"github.com/areq-dev/areq/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// server accepts loopback connections and answers each request with
// respond(seq), where seq numbers the requests on that connection from 0.
type server struct {
	t        *testing.T
	ln       net.Listener
	respond  func(seq int) string
	accepted atomic.Int32
	wg       sync.WaitGroup
}

func newServer(t *testing.T, respond func(seq int) string) *server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &server{t: t, ln: ln, respond: respond}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *server) serve(c net.Conn) {
	defer s.wg.Done()
	defer c.Close()
	br := bufio.NewReader(c)
	for seq := 0; ; seq++ {
		if err := readHead(br); err != nil {
			return
		}
		resp := s.respond(seq)
		if resp == "" {
			// Hang without answering until the peer gives up.
			io.Copy(io.Discard, br)
			return
		}
		if _, err := io.WriteString(c, resp); err != nil {
			return
		}
	}
}

func readHead(br *bufio.Reader) error {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" {
			return nil
		}
	}
}

func (s *server) url() string {
	return "http://" + s.ln.Addr().String() + "/"
}

func newTransport(t *testing.T, pool *netpool.Group) *transport.Transport {
	t.Helper()
	if pool == nil {
		pool = netpool.NewGroup(4, 4, 0, nil)
	}
	t.Cleanup(pool.Close)
	return &transport.Transport{Dialer: &dialer.CoreDialer{ConnPool: pool}}
}

func prepare(t *testing.T, req *model.Request) *model.PreparedRequest {
	t.Helper()
	pr, err := req.Prepare()
	require.NoError(t, err)
	return pr
}

func poolKey(u string) netpool.Key {
	rest := strings.TrimPrefix(u, "http://")
	host, port, _ := strings.Cut(strings.TrimSuffix(rest, "/"), ":")
	var p int
	fmt.Sscanf(port, "%d", &p)
	return netpool.Key{Scheme: "http", Host: host, Port: p}
}

func TestRoundTripMaterialized(t *testing.T) {
	s := newServer(t, func(int) string {
		return "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"
	})
	pool := netpool.NewGroup(4, 4, 0, nil)
	tr := newTransport(t, pool)

	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url()}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello", string(resp.Content))
	assert.False(t, resp.IsStream())

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b), "body doubles as a reader over Content")

	assert.Equal(t, 1, pool.IdleCount(poolKey(s.url())), "connection parked after the exchange")
}

func TestRoundTripKeepAlive(t *testing.T) {
	s := newServer(t, func(int) string {
		return "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	})
	tr := newTransport(t, nil)

	for i := 0; i < 3; i++ {
		resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url()}))
		require.NoError(t, err)
		assert.Equal(t, "ok", string(resp.Content))
	}
	assert.Equal(t, int32(1), s.accepted.Load(), "all exchanges share one connection")
}

func TestRoundTripConnectionClose(t *testing.T) {
	s := newServer(t, func(int) string {
		return "HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 2\r\n\r\nok"
	})
	pool := netpool.NewGroup(4, 4, 0, nil)
	tr := newTransport(t, pool)

	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url()}))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Content))
	assert.Equal(t, 0, pool.IdleCount(poolKey(s.url())), "close responses are not pooled")
}

func TestRoundTripStream(t *testing.T) {
	s := newServer(t, func(int) string {
		return "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nfirst\r\n7\r\n second\r\n0\r\n\r\n"
	})
	pool := netpool.NewGroup(4, 4, 0, nil)
	tr := newTransport(t, pool)

	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url(), Stream: true}))
	require.NoError(t, err)
	assert.True(t, resp.IsStream())
	assert.Nil(t, resp.Content)
	assert.Equal(t, 0, pool.IdleCount(poolKey(s.url())), "connection stays leased while streaming")

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "first second", string(b))
	assert.Equal(t, 1, pool.IdleCount(poolKey(s.url())), "clean EOF releases the connection")
	require.NoError(t, resp.Body.Close())
}

func TestRoundTripStreamEarlyClose(t *testing.T) {
	s := newServer(t, func(int) string {
		return "HTTP/1.1 200 OK\r\nContent-Length: 1000\r\n\r\n" + strings.Repeat("x", 1000)
	})
	pool := netpool.NewGroup(4, 4, 0, nil)
	tr := newTransport(t, pool)

	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url(), Stream: true}))
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 0, pool.IdleCount(poolKey(s.url())), "an abandoned body poisons the connection")
}

func TestRoundTripStreamDecodes(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("compressed stream"))
	zw.Close()
	body := buf.String()

	s := newServer(t, func(int) string {
		return fmt.Sprintf(
			"HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: %d\r\n\r\n%s",
			len(body), body)
	})
	tr := newTransport(t, nil)

	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: s.url(), Stream: true}))
	require.NoError(t, err)
	assert.False(t, resp.Header.Has("Content-Encoding"))
	assert.Equal(t, int64(-1), resp.ContentLength)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "compressed stream", string(b))
	require.NoError(t, resp.Body.Close())
}

func TestRoundTripContextCancel(t *testing.T) {
	s := newServer(t, func(int) string { return "" })
	tr := newTransport(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.RoundTrip(ctx, prepare(t, &model.Request{URL: s.url()}))
	require.Error(t, err)
	assert.True(t, errcore.IsKind(err, errcore.Timeout), "got %v", err)
}

func TestRoundTripConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	tr := newTransport(t, nil)
	_, err = tr.RoundTrip(context.Background(), prepare(t, &model.Request{URL: "http://" + addr + "/"}))
	require.Error(t, err)
	assert.True(t, errcore.IsKind(err, errcore.ConnectError), "got %v", err)
}

func TestRoundTripRequestReachesServer(t *testing.T) {
	var mu sync.Mutex
	var firstLine string
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		mu.Lock()
		firstLine = line
		mu.Unlock()
		readHead(br)
		io.WriteString(c, "HTTP/1.1 204 No Content\r\n\r\n")
	}()
	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
	})

	tr := newTransport(t, nil)
	resp, err := tr.RoundTrip(context.Background(), prepare(t, &model.Request{
		URL:    "http://" + ln.Addr().String() + "/items",
		Params: [][2]string{{"page", "2"}},
	}))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "GET /items?page=2 HTTP/1.1\r\n", firstLine)
}
