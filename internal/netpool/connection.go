// Package netpool keeps idle connections per origin for reuse across
// round trips. Capacity is enforced with ticket channels: one ticket
// per live connection, one per idle slot.
package netpool

import (
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"
)

type conn struct {
	raw        net.Conn
	isClosed   atomic.Bool
	unreusable atomic.Bool
	lastIdle   time.Time
}

func (c *conn) Write(p []byte) (n int, err error) {
	n, err = c.raw.Write(p)
	if err != nil {
		if err != io.EOF {
			log.Printf("netpool: error on write. %v\n", err)
		}
		c.Close()
	}
	return
}

func (c *conn) Read(p []byte) (n int, err error) {
	n, err = c.raw.Read(p)
	if err != nil {
		if err != io.EOF {
			log.Printf("netpool: error on read. %v\n", err)
		}
		c.Close()
	}
	return
}

func (c *conn) Close() error {
	err := c.raw.Close()
	c.isClosed.Store(true)
	return err
}

func (c *conn) healthy() bool {
	return !c.isClosed.Load() && !c.unreusable.Load()
}

// Conn is a pooled connection leased to exactly one borrower. Release
// hands it back for reuse (or closes it when marked unreusable);
// Close discards it. Either must be called exactly once.
type Conn interface {
	io.ReadWriteCloser

	// Raw exposes the underlying net.Conn for deadline control and
	// TLS state inspection.
	Raw() net.Conn

	// MarkUnreusable makes Release close the connection instead of
	// parking it idle.
	MarkUnreusable()

	// Release returns the connection to its pool.
	Release()
}

type leased struct {
	p *pool
	c *conn
}

func (l leased) Read(p []byte) (int, error)  { return l.c.Read(p) }
func (l leased) Write(p []byte) (int, error) { return l.c.Write(p) }
func (l leased) Raw() net.Conn               { return l.c.raw }
func (l leased) MarkUnreusable()             { l.c.unreusable.Store(true) }

func (l leased) Close() error {
	err := l.c.Close()
	l.p.release(l.c)
	return err
}

func (l leased) Release() {
	l.p.release(l.c)
}
