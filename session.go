// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCount is the default number of probes per session.
	DefaultCount = 10

	// DefaultInterval is the default pause between probes.
	DefaultInterval = time.Second
)

// Session runs a sequence of probes against a single resolver.
//
// Construct using [NewSession] or [NewDefaultSession].
type Session struct {
	// Prober is the [*Prober] to use.
	//
	// Set by [NewSession] to the user-provided value.
	Prober *Prober

	// Count is the number of probes to send.
	//
	// Set by [NewSession] to [DefaultCount].
	Count int

	// Interval is the pause between two consecutive probes.
	//
	// Set by [NewSession] to [DefaultInterval].
	Interval time.Duration

	// Logger is the logger to use.
	//
	// Set by [NewSession] to [zap.NewNop].
	Logger *zap.Logger

	// OnOutcome is an optional hook called after each probe.
	OnOutcome func(Outcome)
}

// NewSession creates a new [*Session] instance.
func NewSession(prober *Prober) *Session {
	return &Session{
		Prober:   prober,
		Count:    DefaultCount,
		Interval: DefaultInterval,
		Logger:   zap.NewNop(),
	}
}

// NewDefaultSession creates a [*Session] for endpoint using a [*net.Dialer]
// and the [net.DefaultResolver] to resolve host names.
func NewDefaultSession(endpoint string) *Session {
	dialer := NewDialer(&net.Dialer{}, net.DefaultResolver)
	return NewSession(NewProber(dialer, endpoint))
}

// Result is the result of a [*Session].
type Result struct {
	// Endpoint is the resolver address.
	Endpoint string

	// Domain is the queried domain.
	Domain string

	// Outcomes contains one [Outcome] per probe in order.
	Outcomes []Outcome

	// Stats summarizes Outcomes.
	Stats *Statistics
}

// Run sends Count queries for domain, one at a time, pausing Interval
// between them, and returns the collected outcomes.
//
// Per-probe failures never stop the session. An invalid domain is reported
// before any I/O. A dial failure marks every probe as [OutcomeSendFailed].
// When ctx is done, Run returns the partial result along with ctx.Err().
func (s *Session) Run(ctx context.Context, domain string) (*Result, error) {
	// 1. reject invalid domains before touching the network
	name, err := ParseName(domain)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Endpoint: s.Prober.Endpoint,
		Domain:   name.String(),
		Outcomes: make([]Outcome, 0, max(s.Count, 0)),
	}

	// 2. open the socket we'll use for the whole session
	conn, err := s.Prober.Dial(ctx)
	if err != nil {
		s.Logger.Warn("cannot dial resolver",
			zap.String("endpoint", s.Prober.Endpoint),
			zap.Error(err),
		)
		for seq := 0; seq < s.Count; seq++ {
			s.record(result, Outcome{Seq: seq, Kind: OutcomeSendFailed, Err: err})
		}
		result.Stats = Aggregate(result.Outcomes)
		return result, ctx.Err()
	}

	// 3. make sure we react to the context being canceled early and
	// that we release the socket when the session ends
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer conn.Close()
		<-ctx.Done()
	}()

	// 4. probe sequentially
	for seq := 0; seq < s.Count; seq++ {
		if seq > 0 {
			if err := s.wait(ctx); err != nil {
				result.Stats = Aggregate(result.Outcomes)
				return result, err
			}
		}
		outcome := s.Prober.ProbeQueryWithConn(ctx, conn, s.newQuery(name, seq))
		outcome.Seq = seq
		s.record(result, outcome)
	}

	// 5. summarize
	result.Stats = Aggregate(result.Outcomes)
	s.Logger.Debug("session done",
		zap.String("endpoint", result.Endpoint),
		zap.String("domain", result.Domain),
		zap.Int("transmitted", result.Stats.Transmitted),
		zap.Int("received", result.Stats.Received),
	)
	return result, ctx.Err()
}

// newQuery returns the query for the seq-th probe. Each probe uses its own
// transaction ID so a late response to a previous probe is not mistaken
// for the response to the current one.
func (s *Session) newQuery(name Name, seq int) *Query {
	query := NewQuery(name)
	query.ID = DefaultQueryID + uint16(seq)
	return query
}

// record appends outcome to result, logs it and invokes the hook.
func (s *Session) record(result *Result, outcome Outcome) {
	result.Outcomes = append(result.Outcomes, outcome)
	if ce := s.Logger.Check(zap.DebugLevel, "probe done"); ce != nil {
		ce.Write(
			zap.String("endpoint", result.Endpoint),
			zap.Int("seq", outcome.Seq),
			zap.Stringer("kind", outcome.Kind),
			zap.Duration("latency", outcome.Latency),
			zap.String("resolved", outcome.Resolved),
			zap.Error(outcome.Err),
		)
	}
	if s.OnOutcome != nil {
		s.OnOutcome(outcome)
	}
}

// wait pauses for Interval or until ctx is done.
func (s *Session) wait(ctx context.Context) error {
	timer := time.NewTimer(s.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Comparison runs a [*Session] for each resolver in a list.
//
// Construct using [NewComparison].
type Comparison struct {
	// NewSession returns the [*Session] to use for an endpoint.
	//
	// Set by [NewComparison] to the user-provided value.
	NewSession func(endpoint string) *Session

	// Parallelism is the maximum number of concurrent sessions.
	//
	// Set by [NewComparison] to 1, which runs sessions sequentially.
	Parallelism int

	// Logger is the logger to use.
	//
	// Set by [NewComparison] to [zap.NewNop].
	Logger *zap.Logger

	// OnResult is an optional hook called with each [*Result] in
	// the same order as the endpoints, regardless of Parallelism.
	OnResult func(*Result)
}

// NewComparison creates a new [*Comparison] instance.
func NewComparison(newSession func(endpoint string) *Session) *Comparison {
	return &Comparison{
		NewSession:  newSession,
		Parallelism: 1,
		Logger:      zap.NewNop(),
	}
}

// Run runs a session for each endpoint and returns the results in the
// same order as endpoints. The first session error (an invalid domain or
// a canceled context) stops the comparison.
func (c *Comparison) Run(ctx context.Context, domain string, endpoints []string) ([]*Result, error) {
	// 1. reject invalid domains before touching the network
	if _, err := ParseName(domain); err != nil {
		return nil, err
	}

	// 2. prepare for delivering results in order
	results := make([]*Result, len(endpoints))
	var (
		mu    sync.Mutex
		ready = make([]bool, len(endpoints))
		next  = 0
	)
	deliver := func(idx int, result *Result) {
		mu.Lock()
		defer mu.Unlock()
		results[idx] = result
		ready[idx] = true
		for next < len(endpoints) && ready[next] {
			if c.OnResult != nil {
				c.OnResult(results[next])
			}
			next++
		}
	}

	// 3. run the sessions
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(max(c.Parallelism, 1))
	for idx, endpoint := range endpoints {
		group.Go(func() error {
			c.Logger.Debug("comparison session start",
				zap.Int("index", idx),
				zap.String("endpoint", endpoint),
			)
			result, err := c.NewSession(endpoint).Run(gctx, domain)
			if err != nil {
				return err
			}
			deliver(idx, result)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
