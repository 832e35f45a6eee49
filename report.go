// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// plotWidth is the length of the longest bar drawn by [WritePlot].
const plotWidth = 40

// WriteOutcome writes a ping-like line describing outcome.
func WriteOutcome(w io.Writer, result *Result, outcome Outcome) error {
	var err error
	switch outcome.Kind {
	case OutcomeSuccess:
		_, err = fmt.Fprintf(w, "%d bytes from %s seq=%d time=%.3fms - %s -> %s\n",
			outcome.Size, result.Endpoint, outcome.Seq, outcome.LatencyMillis(),
			result.Domain, outcome.Resolved)
	case OutcomeSendFailed:
		_, err = fmt.Fprintf(w, "seq=%-10d failed to send query: %v\n", outcome.Seq, outcome.Err)
	case OutcomeTimeout:
		_, err = fmt.Fprintf(w, "seq=%-10d failed to receive response: %v\n", outcome.Seq, outcome.Err)
	default:
		_, err = fmt.Fprintf(w, "seq=%-10d failed to parse response: %v\n", outcome.Seq, outcome.Err)
	}
	return err
}

// WritePingReport writes the summary of a single resolver session.
func WritePingReport(w io.Writer, result *Result) error {
	var sb strings.Builder
	stats := result.Stats
	fmt.Fprintf(&sb, "\n--- %s dns query statistics ---\n", result.Domain)
	fmt.Fprintf(&sb, "%d queries transmitted, %d responses received, %.1f%% data loss\n",
		stats.Transmitted, stats.Received, stats.LossPercent)
	latency, err := stats.Latency()
	switch {
	case errors.Is(err, ErrEmptyStatistics):
		fmt.Fprintf(&sb, "Response time min/avg/max/stddev = %s\n", err.Error())
	default:
		fmt.Fprintf(&sb, "Response time min/avg/max/stddev = %.3f/%.3f/%.3f/%.3f ms\n",
			latency.Min, latency.Avg, latency.Max, latency.Stddev)
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// WriteCompareHeader writes the header of the comparison table.
func WriteCompareHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%-25s %-10s %-10s %-10s %-12s %-10s\n%s\n",
		"server", "min(ms)", "avg(ms)", "max(ms)", "stddev(ms)", "lost(%)",
		strings.Repeat("-", 77))
	return err
}

// WriteCompareRow writes the comparison table row for result.
func WriteCompareRow(w io.Writer, result *Result) error {
	stats := result.Stats
	latency, err := stats.Latency()
	if errors.Is(err, ErrEmptyStatistics) {
		_, err = fmt.Fprintf(w, "%-25s %-45s %-10.1f\n", result.Endpoint, err.Error(), stats.LossPercent)
		return err
	}
	_, err = fmt.Fprintf(w, "%-25s %-10.3f %-10.3f %-10.3f %-12.3f %-10.1f\n",
		result.Endpoint, latency.Min, latency.Avg, latency.Max, latency.Stddev, stats.LossPercent)
	return err
}

// WritePlot writes a horizontal bar chart of the latencies in outcomes.
//
// Outcomes without a latency sample are drawn as failures.
func WritePlot(w io.Writer, outcomes []Outcome) error {
	var maxMillis float64
	for _, o := range outcomes {
		if o.Succeeded() {
			maxMillis = math.Max(maxMillis, o.LatencyMillis())
		}
	}
	var sb strings.Builder
	for idx, o := range outcomes {
		if !o.Succeeded() {
			fmt.Fprintf(&sb, "%3d: x %s\n", idx+1, o.Kind)
			continue
		}
		bar := 0
		if maxMillis > 0 {
			bar = int(math.Round(o.LatencyMillis() / maxMillis * plotWidth))
		}
		fmt.Fprintf(&sb, "%3d: %s %.3f ms\n", idx+1, strings.Repeat("#", bar), o.LatencyMillis())
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
