// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnsping measures DNS resolution latency over UDP.
//
// The DNS wire format is implemented by hand and deliberately covers a
// small subset: [ParseName] and [DecodeName] implement the name codec
// including compression pointers, [NewQuery] builds an A/IN query, and
// [ParseResponse] walks the answer section of a possibly adversarial
// response extracting A addresses and CNAME chains. Every offset is
// bounds checked and pointer chasing is bounded.
//
// The [*Prober] owns a single UDP round trip. It is modeled after a
// DNS-over-UDP transport: you can [*Prober.Dial] once and then call
// [*Prober.ProbeWithConn] many times to reuse the same socket. Each
// probe yields an [Outcome] classified as success, send failure, timeout
// or parse error.
//
// A [*Session] runs a sequence of probes against one resolver and a
// [*Comparison] runs a session per resolver. Use [Aggregate] to reduce
// outcomes into min/avg/max/stddev and loss [*Statistics].
//
// For example, to ping a resolver ten times:
//
//	session := dnsping.NewDefaultSession("8.8.8.8:53")
//	result, err := session.Run(context.Background(), "dns.google")
//
// The cmd/dnsping command wraps this package into a CLI.
package dnsping
