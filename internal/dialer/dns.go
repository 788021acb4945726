package dialer

import (
	"context"
	"net"
	"strconv"
)

// ResolveConfig overrides name resolution for a CoreDialer. The zero
// value resolves through the system default.
type ResolveConfig struct {
	// DNSServer, a "host:port" address, pins lookups to one server
	// instead of the system resolver.
	DNSServer string

	// Network restricts resolution to "ip4" or "ip6". Empty allows
	// both families.
	Network string

	// StaticHosts maps names to addresses before any lookup, like
	// /etc/hosts.
	StaticHosts map[string]string
}

func (c *ResolveConfig) Clone() *ResolveConfig {
	if c == nil {
		return nil
	}
	return &ResolveConfig{
		DNSServer:   c.DNSServer,
		Network:     c.Network,
		StaticHosts: c.StaticHosts,
	}
}

// target applies the static host table and picks the dial network for
// an origin.
func (c *ResolveConfig) target(host string, port int) (network, address string) {
	network = "tcp"
	if c != nil {
		switch c.Network {
		case "ip4":
			network = "tcp4"
		case "ip6":
			network = "tcp6"
		}
		if static, ok := c.StaticHosts[host]; ok {
			host = static
		}
	}
	return network, net.JoinHostPort(host, strconv.Itoa(port))
}

// resolver returns a Go resolver pinned to DNSServer, or nil for the
// system default.
func (c *ResolveConfig) resolver() *net.Resolver {
	if c == nil || c.DNSServer == "" {
		return nil
	}
	server := c.DNSServer
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return zeroDialer.DialContext(ctx, network, server)
		},
	}
}

// LookupHost resolves host the way Dial would: the static table wins,
// then the pinned server, restricted to the configured family. Dialers
// wrapping a CoreDialer can use it to inspect or pick addresses before
// redialing.
func (d *CoreDialer) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	cfg := d.ResolveConfig
	if cfg != nil {
		if static, ok := cfg.StaticHosts[host]; ok {
			if ip := net.ParseIP(static); ip != nil {
				return []net.IP{ip}, nil
			}
			host = static
		}
	}
	family := "ip"
	if cfg != nil && cfg.Network != "" {
		family = cfg.Network
	}
	r := cfg.resolver()
	if r == nil {
		r = net.DefaultResolver
	}
	return r.LookupIP(ctx, family, host)
}
