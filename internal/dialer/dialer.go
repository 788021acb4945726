// Package dialer opens the byte streams requests are written to and
// responses are read from: TCP, optionally wrapped in TLS, leased
// through the per-client connection pool.
package dialer

import (
	"context"
	"crypto/tls"

	"github.com/areq-dev/areq/internal/model"
	"github.com/areq-dev/areq/internal/netpool"
)

// Dialer implementations handle everything related to the actual
// connection: resolver configuration, TLS parameters, pooling. A
// Dialer must not hold per-request state so it can be swapped out of
// a Client without pain.
type Dialer interface {
	// Dial returns a pooled stream for writing the request and
	// reading the response.
	Dial(ctx context.Context, r *model.PreparedRequest) (netpool.Conn, error)
	Unwrap() Dialer
}

// CoreDialer is the default Dialer.
type CoreDialer struct {
	ResolveConfig *ResolveConfig

	// TLSConfig is the base config for https origins; it is cloned
	// per connection with the SNI set to the request host.
	TLSConfig *tls.Config

	// SkipVerify maps to InsecureSkipVerify on the cloned config.
	// Certificate and hostname verification stay on by default.
	SkipVerify bool

	// KeylogFilename appends TLS session secrets in NSS key-log
	// format. The SSLKEYLOGFILE environment variable is honored when
	// this is empty.
	KeylogFilename string

	ConnPool *netpool.Group

	keylog keylogState
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig:  d.ResolveConfig.Clone(),
		TLSConfig:      d.TLSConfig.Clone(),
		SkipVerify:     d.SkipVerify,
		KeylogFilename: d.KeylogFilename,
		ConnPool:       d.ConnPool,
	}
}

func (d *CoreDialer) Unwrap() Dialer {
	return nil
}
