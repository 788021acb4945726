package dialer

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/netpool"
)

var zeroDialer net.Dialer

// Dial leases a connection to the request origin, dialing TCP and
// performing the TLS handshake for https origins when the pool has no
// idle connection to hand out.
func (d *CoreDialer) Dial(ctx context.Context, r *model.PreparedRequest) (netpool.Conn, error) {
	key := netpool.Key{Scheme: r.U.Scheme, Host: r.U.Host, Port: r.U.Port}
	return d.ConnPool.Connect(ctx, key, func(ctx context.Context) (net.Conn, error) {
		conn, err := d.dialTCP(ctx, r.U.Host, r.U.Port)
		if err != nil {
			return nil, errcore.Wrap(errcore.ConnectError, err, "dialing "+r.U.Address())
		}
		if r.U.Scheme != "https" {
			return conn, nil
		}
		tc, err := d.handshake(ctx, conn, r.U.Host)
		if err != nil {
			conn.Close()
			return nil, errcore.Wrap(errcore.TLSError, err, "tls handshake with "+r.U.Host)
		}
		return tc, nil
	})
}

func (d *CoreDialer) dialTCP(ctx context.Context, host string, port int) (net.Conn, error) {
	network, address := d.ResolveConfig.target(host, port)
	dialer := net.Dialer{Resolver: d.ResolveConfig.resolver()}
	return dialer.DialContext(ctx, network, address)
}

func (d *CoreDialer) handshake(ctx context.Context, conn net.Conn, host string) (*tls.Conn, error) {
	config := d.TLSConfig.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = host
	}
	if d.SkipVerify {
		config.InsecureSkipVerify = true
	}
	if w := d.keylog.writer(d.KeylogFilename); w != nil && config.KeyLogWriter == nil {
		config.KeyLogWriter = w
	}
	tc := tls.Client(conn, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tc, nil
}
