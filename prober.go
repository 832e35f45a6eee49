//
// SPDX-License-Identifier: BSD-3-Clause
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/dns/dnscore/doudp.go
// Adapted from: https://github.com/ooni/probe-engine/blob/v0.23.0/netx/resolver/dnsoverudp.go
//

package dnsping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bassosimone/dnscodec"
)

// DefaultProbeTimeout is the default time we wait for a response.
const DefaultProbeTimeout = 5 * time.Second

// MaxResponseSize is the largest response we accept. Larger datagrams
// are reported as [ErrTruncatedResponse].
//
// This is the 1232 bytes EDNS0-era UDP limit rather than the classic
// 512 bytes, so that large A answers are measured instead of rejected.
const MaxResponseSize = dnscodec.QueryMaxResponseSizeUDP

// Additional errors emitted by [*Prober].
var (
	// ErrInvalidResponse means that the message is not a response
	// or does not match the query transaction ID. Such datagrams are
	// discarded while waiting for the real response.
	ErrInvalidResponse = errors.New("invalid DNS response")

	// ErrTruncatedResponse means the response did not fit into [MaxResponseSize].
	ErrTruncatedResponse = errors.New("response exceeds maximum size")
)

// NetDialer abstracts over [*net.Dialer].
type NetDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober measures DNS query round trips with a resolver over UDP.
//
// Construct using [NewProber].
type Prober struct {
	// Dialer is the [NetDialer] to use to create connections.
	//
	// Set by [NewProber] to the user-provided value.
	Dialer NetDialer

	// Endpoint is the resolver address in host:port format.
	//
	// Set by [NewProber] to the user-provided value.
	Endpoint string

	// Timeout bounds the wait for each response.
	//
	// Set by [NewProber] to [DefaultProbeTimeout].
	Timeout time.Duration

	// ObserveRawQuery is an optional hook called with a copy of the raw DNS query.
	ObserveRawQuery func([]byte)

	// ObserveRawResponse is an optional hook called with a copy of the raw DNS response.
	ObserveRawResponse func([]byte)
}

// NewProber creates a new [*Prober].
func NewProber(dialer NetDialer, endpoint string) *Prober {
	return &Prober{
		Dialer:   dialer,
		Endpoint: endpoint,
		Timeout:  DefaultProbeTimeout,
	}
}

// Dial creates a [net.Conn] with the configured endpoint.
//
// Use this method to reuse a single socket across many probes
// with [*Prober.ProbeWithConn].
func (p *Prober) Dial(ctx context.Context) (net.Conn, error) {
	return p.Dialer.DialContext(ctx, "udp", p.Endpoint)
}

// Probe dials a new connection, runs a single probe, and closes the connection.
//
// A dial failure is reported as [OutcomeSendFailed].
func (p *Prober) Probe(ctx context.Context, name Name) Outcome {
	conn, err := p.Dial(ctx)
	if err != nil {
		return Outcome{Kind: OutcomeSendFailed, Err: err}
	}
	defer conn.Close()
	return p.ProbeWithConn(ctx, conn, name)
}

// ProbeWithConn sends an A query for name using conn and waits for the response.
//
// It is like [*Prober.ProbeQueryWithConn] with a query built by [NewQuery].
func (p *Prober) ProbeWithConn(ctx context.Context, conn net.Conn, name Name) Outcome {
	return p.ProbeQueryWithConn(ctx, conn, NewQuery(name))
}

// ProbeQueryWithConn sends query using conn and waits for the response.
//
// Failures are classified into the returned [Outcome] rather than returned
// as errors. The latency is measured from just before writing the query to
// just after reading the response.
//
// Datagrams that are not a response to query, such as a late response to
// a previous query sent over the same conn, are discarded and we keep
// waiting until the deadline.
func (p *Prober) ProbeQueryWithConn(ctx context.Context, conn net.Conn, query *Query) Outcome {
	// 1. Bound the lifetime of the whole round trip.
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	// 2. Serialize the query.
	rawQuery := query.Pack()
	if p.ObserveRawQuery != nil {
		p.ObserveRawQuery(bytes.Clone(rawQuery))
	}

	// 3. Send the query.
	t0 := time.Now()
	if _, err := conn.Write(rawQuery); err != nil {
		return Outcome{Kind: OutcomeSendFailed, Err: err}
	}

	// 4. Read responses using one extra byte to detect truncation.
	buff := make([]byte, MaxResponseSize+1)
	for {
		count, err := conn.Read(buff)
		if err != nil {
			return Outcome{Kind: OutcomeTimeout, Err: err}
		}
		latency := time.Since(t0)
		rawResp := buff[:count]
		if p.ObserveRawResponse != nil {
			p.ObserveRawResponse(bytes.Clone(rawResp))
		}

		// 5. Parse and validate the response.
		resp, err := p.parse(query, rawResp)
		if errors.Is(err, ErrInvalidResponse) {
			continue
		}
		if err != nil {
			return Outcome{Kind: OutcomeParseError, Latency: latency, Size: count, Err: err}
		}
		return Outcome{Kind: OutcomeSuccess, Latency: latency, Size: count, Resolved: resp.String()}
	}
}

// parse validates and parses rawResp as a response to query.
func (p *Prober) parse(query *Query, rawResp []byte) (*Response, error) {
	if err := validateResponseHeader(query, rawResp); err != nil {
		return nil, err
	}
	if len(rawResp) > MaxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTruncatedResponse, MaxResponseSize)
	}
	return ParseResponse(rawResp)
}

// validateResponseHeader checks the QR bit and the transaction ID.
func validateResponseHeader(query *Query, rawResp []byte) error {
	cur := newCursor(rawResp, 0)
	id, err := cur.uint16()
	if err != nil {
		return err
	}
	flags, err := cur.uint16()
	if err != nil {
		return err
	}
	if flags&flagQR == 0 {
		return fmt.Errorf("%w: not a response", ErrInvalidResponse)
	}
	if id != query.ID {
		return fmt.Errorf("%w: id %#04x does not match query id %#04x", ErrInvalidResponse, id, query.ID)
	}
	return nil
}
