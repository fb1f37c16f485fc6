package bufferevent

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-reactor/reactor"
)

// Resolver is the seam an external collaborator plugs a DNS resolver
// into; an asynchronous resolver is out of scope for this core, which
// instead treats resolution as something a caller plugs in.
// SocketConnectHostname accepts one to avoid hard-wiring any particular
// resolution strategy.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// stdlibResolver adapts net.DefaultResolver; used when
// SocketConnectHostname is called with a nil Resolver. It performs a
// blocking lookup, which is the synchronous baseline this core can offer
// on its own — a true non-blocking resolver is left to an external
// collaborator.
type stdlibResolver struct{}

func (stdlibResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, network, host)
}

// DefaultResolver is the Resolver SocketConnectHostname falls back to
// when resolver is nil.
var DefaultResolver Resolver = stdlibResolver{}

// SocketConnectHostname resolves host (via resolver, or DefaultResolver
// if nil) to an IP of the given family ("ip4" or "ip6"; "" accepts
// either), creates a nonblocking socket, and begins a connect to the
// first resolved address on port.
func SocketConnectHostname(ctx context.Context, base *reactor.Base, resolver Resolver, family, host string, port int) (*BufferEvent, error) {
	if resolver == nil {
		resolver = DefaultResolver
	}
	network := "ip"
	switch family {
	case "ip4", "ip6":
		network = family
	}

	ips, err := resolver.LookupIP(ctx, network, host)
	if err != nil {
		return nil, fmt.Errorf("bufferevent: resolve %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("bufferevent: resolve %q: no addresses", host)
	}
	ip := ips[0]

	var (
		domain int
		sa     unix.Sockaddr
	)
	if v4 := ip.To4(); v4 != nil {
		domain = unix.AF_INET
		var addr [4]byte
		copy(addr[:], v4)
		sa = &unix.SockaddrInet4{Port: port, Addr: addr}
	} else {
		domain = unix.AF_INET6
		var addr [16]byte
		copy(addr[:], ip.To16())
		sa = &unix.SockaddrInet6{Port: port, Addr: addr}
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("bufferevent: socket: %w", err)
	}

	be := NewSocket(base, -1)
	be.SetCloseOnFree(true)
	if err := be.SocketConnect(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return be, nil
}
