// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"errors"
	"math"
)

// ErrEmptyStatistics indicates that no probe succeeded and therefore
// there is no latency sample to summarize.
var ErrEmptyStatistics = errors.New("all probes failed")

// Latency summarizes latency samples in milliseconds.
type Latency struct {
	Min    float64
	Avg    float64
	Max    float64
	Stddev float64
}

// Statistics summarizes the outcomes of a session.
//
// Construct using [Aggregate].
type Statistics struct {
	// Transmitted is the number of probes.
	Transmitted int

	// Received is the number of successful probes.
	Received int

	// LossPercent is the percentage of probes that did not succeed.
	LossPercent float64

	// latency is nil when no probe succeeded.
	latency *Latency
}

// Aggregate reduces outcomes into [*Statistics].
//
// Only [OutcomeSuccess] outcomes contribute latency samples. Every other
// outcome, including [OutcomeParseError], counts as lost. The standard
// deviation is the population one.
func Aggregate(outcomes []Outcome) *Statistics {
	stats := &Statistics{Transmitted: len(outcomes)}

	// 1. collect the samples
	samples := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded() {
			samples = append(samples, o.LatencyMillis())
		}
	}
	stats.Received = len(samples)

	// 2. compute the loss
	if stats.Transmitted > 0 {
		lost := stats.Transmitted - stats.Received
		stats.LossPercent = float64(lost) / float64(stats.Transmitted) * 100
	}

	// 3. summarize the latency
	if len(samples) <= 0 {
		return stats
	}
	summary := &Latency{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, s := range samples {
		summary.Min = min(summary.Min, s)
		summary.Max = max(summary.Max, s)
		sum += s
	}
	summary.Avg = sum / float64(len(samples))
	var sqsum float64
	for _, s := range samples {
		sqsum += (s - summary.Avg) * (s - summary.Avg)
	}
	summary.Stddev = math.Sqrt(sqsum / float64(len(samples)))
	stats.latency = summary
	return stats
}

// Latency returns the latency summary or [ErrEmptyStatistics].
func (s *Statistics) Latency() (Latency, error) {
	if s.latency == nil {
		return Latency{}, ErrEmptyStatistics
	}
	return *s.latency, nil
}
