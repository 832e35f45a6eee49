// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import "time"

// OutcomeKind classifies the result of a single probe.
type OutcomeKind int

const (
	// OutcomeSuccess means we received and parsed a usable response.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeSendFailed means we could not send the query.
	OutcomeSendFailed

	// OutcomeTimeout means no response arrived in time or reading failed.
	OutcomeTimeout

	// OutcomeParseError means the response arrived but was not usable.
	OutcomeParseError
)

// String implements [fmt.Stringer].
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single probe.
type Outcome struct {
	// Seq is the zero-based probe sequence number within a session.
	Seq int

	// Kind classifies the outcome.
	Kind OutcomeKind

	// Latency is the time between sending the query and receiving the
	// response. It is zero unless Kind is [OutcomeSuccess] or [OutcomeParseError].
	Latency time.Duration

	// Size is the size of the response in bytes, if any.
	Size int

	// Resolved is the rendered resolution chain on success.
	Resolved string

	// Err is the underlying error unless Kind is [OutcomeSuccess].
	Err error
}

// Succeeded reports whether the outcome carries a usable latency sample.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// LatencyMillis returns the latency in milliseconds.
func (o Outcome) LatencyMillis() float64 {
	return durationMillis(o.Latency)
}

// durationMillis converts d to fractional milliseconds.
func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
