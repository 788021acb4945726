package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/areq-dev/areq/internal/errcore"
)

type pool struct {
	mu                     sync.Mutex
	connTicket, idleTicket chan struct{}
	idle                   []*conn

	group *Group
}

func newPool(maxConn, maxIdle uint, g *Group) *pool {
	return &pool{
		connTicket: make(chan struct{}, maxConn),
		idleTicket: make(chan struct{}, maxIdle),
		group:      g,
	}
}

func (p *pool) connect(ctx context.Context, dial func(ctx context.Context) (net.Conn, error)) (Conn, error) {
	select {
	case p.connTicket <- struct{}{}:
	case <-ctx.Done():
		return nil, errcore.Wrap(errcore.Timeout, ctx.Err(), "waiting for a connection slot")
	}
	for {
		select {
		case <-p.idleTicket:
			p.mu.Lock()
			c := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()
			if p.expired(c) {
				c.Close()
				continue
			}
			if c.healthy() {
				return leased{p, c}, nil
			}
			c.Close()
		default:
			raw, err := dial(ctx)
			if err != nil {
				<-p.connTicket
				return nil, err
			}
			return leased{p, &conn{raw: raw}}, nil
		}
	}
}

func (p *pool) expired(c *conn) bool {
	age := p.group.maxIdleAge
	return age > 0 && p.group.clock.Since(c.lastIdle) > age
}

// release gives the live-connection ticket back and parks the
// connection idle when it is still usable and the pool has room.
func (p *pool) release(c *conn) {
	<-p.connTicket
	if !c.healthy() || p.group.isClosed() {
		if !c.isClosed.Load() {
			c.Close()
		}
		return
	}
	select {
	case p.idleTicket <- struct{}{}:
		c.lastIdle = p.group.clock.Now()
		p.mu.Lock()
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	default:
		c.Close()
	}
}

func (p *pool) closeIdle() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range idle {
		select {
		case <-p.idleTicket:
		default:
		}
		c.Close()
	}
}

func (p *pool) idleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Key partitions the pool: one sub-pool per (scheme, host, port).
type Key struct {
	Scheme string
	Host   string
	Port   int
}

// Group is the per-client connection pool.
type Group struct {
	mu    sync.RWMutex
	pools map[Key]*pool

	maxConnsPerHost, maxIdlePerHost uint
	maxIdleAge                      time.Duration
	clock                           clock.Clock
	closed                          bool
}

// NewGroup builds a pool group. A nil clk falls back to the wall
// clock; maxIdleAge <= 0 disables idle expiry.
func NewGroup(maxConnsPerHost, maxIdlePerHost uint, maxIdleAge time.Duration, clk clock.Clock) *Group {
	if clk == nil {
		clk = clock.New()
	}
	return &Group{
		pools:           map[Key]*pool{},
		maxConnsPerHost: maxConnsPerHost,
		maxIdlePerHost:  maxIdlePerHost,
		maxIdleAge:      maxIdleAge,
		clock:           clk,
	}
}

func (g *Group) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// Connect leases a connection for key, reusing an idle one when
// available and dialing otherwise.
func (g *Group) Connect(ctx context.Context, key Key, dial func(ctx context.Context) (net.Conn, error)) (Conn, error) {
	g.mu.RLock()
	closed, p := g.closed, g.pools[key]
	g.mu.RUnlock()
	if closed {
		return nil, errcore.New(errcore.PoolClosed, "client is closed")
	}
	if p == nil {
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return nil, errcore.New(errcore.PoolClosed, "client is closed")
		}
		if p = g.pools[key]; p == nil {
			p = newPool(g.maxConnsPerHost, g.maxIdlePerHost, g)
			g.pools[key] = p
		}
		g.mu.Unlock()
	}
	return p.connect(ctx, dial)
}

// Close shuts the group down: all idle connections are closed and any
// later Connect fails with PoolClosed. Leased connections are closed
// as they come back.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	pools := make([]*pool, 0, len(g.pools))
	for _, p := range g.pools {
		pools = append(pools, p)
	}
	g.mu.Unlock()
	for _, p := range pools {
		p.closeIdle()
	}
}

// IdleCount reports the idle connections parked for key.
func (g *Group) IdleCount(key Key) int {
	g.mu.RLock()
	p := g.pools[key]
	g.mu.RUnlock()
	if p == nil {
		return 0
	}
	return p.idleCount()
}
