//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/ooni/netem/blob/061c5671b52a2c064cac1de5d464bb056f7ccaa8/unetstack.go
//

package dnsping

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"slices"

	"github.com/bassosimone/runtimex"
)

// DialerResolver is the resolver expected by [*Dialer].
//
// The [*net.Resolver] type implements this interface.
type DialerResolver interface {
	LookupHost(ctx context.Context, name string) ([]string, error)
}

// Dialer implements [NetDialer] for resolver endpoints that may be
// given as host names, such as "dns.google:53".
//
// Construct using [NewDialer].
//
// IP literals are dialed directly. Host names are resolved and the
// resulting addresses are tried in order, IPv4 first.
type Dialer struct {
	// reso resolves resolver host names.
	reso DialerResolver

	// udialer is the underlying dialer.
	udialer NetDialer
}

// Ensure that [*Dialer] implements [NetDialer].
var _ NetDialer = &Dialer{}

// NewDialer creates a new [*Dialer] instance.
func NewDialer(udialer NetDialer, reso DialerResolver) *Dialer {
	return &Dialer{reso: reso, udialer: udialer}
}

// DialContext implements [NetDialer].
func (d *Dialer) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	// 1. separate the host and the port
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	// 2. map the host to a list of IP addresses
	addrs, err := d.lookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	runtimex.Assert(len(addrs) >= 1)

	// 3. try each address until one works
	errv := make([]error, 0, len(addrs))
	for _, addr := range addrs {
		conn, err := d.udialer.DialContext(ctx, network, net.JoinHostPort(addr, port))
		if err != nil {
			errv = append(errv, err)
			continue
		}
		return conn, nil
	}
	return nil, errors.Join(errv...)
}

// lookupHost short circuits IP literals and sorts IPv4 addresses first.
func (d *Dialer) lookupHost(ctx context.Context, host string) ([]string, error) {
	if _, err := netip.ParseAddr(host); err == nil {
		return []string{host}, nil
	}
	addrs, err := d.reso.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) <= 0 {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	slices.SortStableFunc(addrs, func(a, b string) int {
		return ipv4Rank(a) - ipv4Rank(b)
	})
	return addrs, nil
}

// ipv4Rank returns 0 for IPv4 addresses and 1 otherwise.
func ipv4Rank(s string) int {
	if addr, err := netip.ParseAddr(s); err == nil && addr.Unmap().Is4() {
		return 0
	}
	return 1
}
