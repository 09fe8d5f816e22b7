// Package privnet tells whether a host name resolves to a loopback,
// link-local or otherwise private address, so that redirect probes cannot be
// pointed at the machine running the monitor or its neighbours.
package privnet

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/mycok/mastolinks/linkcheck"
)

var _ linkcheck.PrivateNetworkDetector = (*Detector)(nil)

var defaultPrivateCIDRs = []string{
	// Loopback.
	"127.0.0.0/8",
	"::1/128",
	// RFC1918 and IPv6 unique local.
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
	// Link-local, including cloud metadata endpoints.
	"169.254.0.0/16",
	"fe80::/10",
	// Carrier-grade NAT.
	"100.64.0.0/10",
	"0.0.0.0/8",
	"255.255.255.255/32",
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Detector classifies hosts against a list of private prefixes.
type Detector struct {
	prefixes []netip.Prefix
	resolver Resolver
}

// NewDetector returns a Detector for the default private ranges using the
// system resolver.
func NewDetector() (*Detector, error) {
	return NewDetectorFromCIDRs(defaultPrivateCIDRs...)
}

// NewDetectorFromCIDRs returns a Detector that treats the given CIDR blocks
// as private.
func NewDetectorFromCIDRs(cidrs ...string) (*Detector, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("privnet: %w", err)
		}

		prefixes = append(prefixes, prefix.Masked())
	}

	return &Detector{prefixes: prefixes, resolver: net.DefaultResolver}, nil
}

// WithResolver returns a copy of d that resolves host names with r.
func (d *Detector) WithResolver(r Resolver) *Detector {
	return &Detector{prefixes: d.prefixes, resolver: r}
}

// IsNetworkPrivate reports whether address, an IP literal or a host name,
// resolves to a private address. A host with several addresses is private
// if any one of them is. The lookup is bounded by ctx.
func (d *Detector) IsNetworkPrivate(ctx context.Context, address string) (bool, error) {
	if addr, err := netip.ParseAddr(address); err == nil {
		return d.contains(addr), nil
	}

	addrs, err := d.resolver.LookupNetIP(ctx, "ip", address)
	if err != nil {
		return false, err
	}

	for _, addr := range addrs {
		if d.contains(addr) {
			return true, nil
		}
	}

	return false, nil
}

// DialControl rejects connections to private addresses. It is meant for
// net.Dialer.Control, which runs after name resolution, so it also covers
// redirect targets and hosts whose records change after IsNetworkPrivate.
func (d *Detector) DialControl(_, address string, _ syscall.RawConn) error {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("privnet: %w", err)
	}

	if d.contains(addrPort.Addr()) {
		return fmt.Errorf("%w: %s", linkcheck.ErrPrivateNetwork, addrPort.Addr())
	}

	return nil
}

func (d *Detector) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range d.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}
