// SPDX-License-Identifier: GPL-3.0-or-later

package dnsping

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/dnstest"
	"github.com/bassosimone/netstub"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// newStubSession returns a session whose dialer always returns conn.
func newStubSession(conn net.Conn, count int) *Session {
	prober := NewProber(&netstub.FuncDialer{
		DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
			return conn, nil
		},
	}, "192.0.2.53:53")
	session := NewSession(prober)
	session.Count = count
	session.Interval = 0
	return session
}

func TestNewSessionDefaults(t *testing.T) {
	session := NewSession(NewProber(&net.Dialer{}, "8.8.8.8:53"))
	assert.Equal(t, DefaultCount, session.Count)
	assert.Equal(t, DefaultInterval, session.Interval)
	assert.NotNil(t, session.Logger)
	assert.Nil(t, session.OnOutcome)
}

func TestSessionRunWithUDPServer(t *testing.T) {
	config := dnstest.NewHandlerConfig()
	config.AddNetipAddr("example.com", netip.MustParseAddr("93.184.216.34"))
	server := dnstest.MustNewUDPServer(&net.ListenConfig{}, "127.0.0.1:0", dnstest.NewHandler(config))
	t.Cleanup(server.Close)

	session := NewDefaultSession(server.Address())
	session.Count = 3
	session.Interval = 0

	var seen []int
	session.OnOutcome = func(o Outcome) {
		seen = append(seen, o.Seq)
	}

	result, err := session.Run(context.Background(), "example.com")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, server.Address(), result.Endpoint)
	assert.Equal(t, "example.com", result.Domain)
	assert.Equal(t, []int{0, 1, 2}, seen)
	require.Len(t, result.Outcomes, 3)
	for idx, outcome := range result.Outcomes {
		assert.Equal(t, idx, outcome.Seq)
		assert.Equal(t, OutcomeSuccess, outcome.Kind, "%v", outcome.Err)
		assert.Equal(t, "93.184.216.34", outcome.Resolved)
	}
	assert.Equal(t, 3, result.Stats.Transmitted)
	assert.Equal(t, 3, result.Stats.Received)
	assert.Zero(t, result.Stats.LossPercent)
	_, err = result.Stats.Latency()
	assert.NoError(t, err)
}

func TestSessionRunInvalidDomain(t *testing.T) {
	dialed := false
	prober := NewProber(&netstub.FuncDialer{
		DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
			dialed = true
			return nil, errors.New("should not be called")
		},
	}, "192.0.2.53:53")
	session := NewSession(prober)

	result, err := session.Run(context.Background(), "a..b")

	require.ErrorIs(t, err, ErrInvalidName)
	assert.Nil(t, result)
	assert.False(t, dialed)
}

func TestSessionRunDialFailure(t *testing.T) {
	expectedErr := errors.New("dial failed")
	prober := NewProber(&netstub.FuncDialer{
		DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
			return nil, expectedErr
		},
	}, "192.0.2.53:53")
	session := NewSession(prober)
	session.Count = 4
	session.Interval = 0

	result, err := session.Run(context.Background(), "example.com")

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)
	for idx, outcome := range result.Outcomes {
		assert.Equal(t, idx, outcome.Seq)
		assert.Equal(t, OutcomeSendFailed, outcome.Kind)
		assert.ErrorIs(t, outcome.Err, expectedErr)
	}
	assert.Equal(t, 100.0, result.Stats.LossPercent)
	_, err = result.Stats.Latency()
	assert.ErrorIs(t, err, ErrEmptyStatistics)
}

func TestSessionRunAllTimeouts(t *testing.T) {
	conn := newConnStub(t, func([]byte) ([]byte, error) {
		return nil, os.ErrDeadlineExceeded
	})
	session := newStubSession(conn, 5)

	result, err := session.Run(context.Background(), "example.com")

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 5)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, OutcomeTimeout, outcome.Kind)
	}
	assert.Equal(t, 5, result.Stats.Transmitted)
	assert.Equal(t, 0, result.Stats.Received)
	assert.Equal(t, 100.0, result.Stats.LossPercent)
	_, err = result.Stats.Latency()
	assert.ErrorIs(t, err, ErrEmptyStatistics)
}

func TestSessionRunFailuresDoNotStopSession(t *testing.T) {
	calls := 0
	conn := newConnStub(t, func(rawQuery []byte) ([]byte, error) {
		calls++
		if calls%2 == 0 {
			return nil, os.ErrDeadlineExceeded
		}
		return buildRawResponseFromQuery(t, rawQuery), nil
	})
	session := newStubSession(conn, 4)

	result, err := session.Run(context.Background(), "example.com")

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 4)
	kinds := make([]OutcomeKind, 0, 4)
	for _, outcome := range result.Outcomes {
		kinds = append(kinds, outcome.Kind)
	}
	expect := []OutcomeKind{OutcomeSuccess, OutcomeTimeout, OutcomeSuccess, OutcomeTimeout}
	assert.Equal(t, expect, kinds)
	assert.Equal(t, 2, result.Stats.Received)
	assert.Equal(t, 50.0, result.Stats.LossPercent)
}

func TestSessionRunReusesConnAndClosesIt(t *testing.T) {
	dials := 0
	closed := make(chan struct{})
	conn := newConnStub(t, func(rawQuery []byte) ([]byte, error) {
		return buildRawResponseFromQuery(t, rawQuery), nil
	})
	conn.CloseFunc = func() error {
		close(closed)
		return nil
	}
	prober := NewProber(&netstub.FuncDialer{
		DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
			dials++
			return conn, nil
		},
	}, "192.0.2.53:53")
	session := NewSession(prober)
	session.Count = 3
	session.Interval = time.Millisecond

	_, err := session.Run(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("connection not closed")
	}
}

func TestSessionRunIgnoresLateResponses(t *testing.T) {
	// the first query is answered after it timed out and the second
	// query is never answered, so the late answer sits in the socket
	var (
		writes [][]byte
		queue  [][]byte
		reads  int
	)
	conn := &netstub.FuncConn{
		WriteFunc: func(b []byte) (int, error) {
			writes = append(writes, append([]byte{}, b...))
			return len(b), nil
		},
		ReadFunc: func(b []byte) (int, error) {
			reads++
			if reads == 1 {
				queue = append(queue, buildRawResponseFromQuery(t, writes[0]))
				return 0, os.ErrDeadlineExceeded
			}
			if len(queue) <= 0 {
				return 0, os.ErrDeadlineExceeded
			}
			raw := queue[0]
			queue = queue[1:]
			return copy(b, raw), nil
		},
		SetDeadlineFunc: func(time.Time) error {
			return nil
		},
		CloseFunc: func() error {
			return nil
		},
	}
	session := newStubSession(conn, 2)

	result, err := session.Run(context.Background(), "example.com")

	require.NoError(t, err)
	require.Len(t, writes, 2)
	assert.NotEqual(t, writes[0][:2], writes[1][:2])
	require.Len(t, result.Outcomes, 2)
	for _, outcome := range result.Outcomes {
		assert.Equal(t, OutcomeTimeout, outcome.Kind)
		assert.Zero(t, outcome.Latency)
	}
	assert.Equal(t, 0, result.Stats.Received)
	assert.Empty(t, queue)
}

func TestSessionRunIgnoresLateResponsesWithUDPServer(t *testing.T) {
	pconn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pconn.Close() })

	// answer the first query too late and never answer the second one
	go func() {
		buff := make([]byte, 1024)
		count, addr, err := pconn.ReadFrom(buff)
		if err != nil {
			return
		}
		query := &dns.Msg{}
		if err := query.Unpack(buff[:count]); err != nil {
			return
		}
		resp := &dns.Msg{}
		resp.SetReply(query)
		resp.Answer = append(resp.Answer, newA("example.com", "192.0.2.1"))
		raw, err := resp.Pack()
		if err != nil {
			return
		}
		time.Sleep(300 * time.Millisecond)
		_, _ = pconn.WriteTo(raw, addr)
		_, _, _ = pconn.ReadFrom(buff)
	}()

	session := NewSession(NewProber(&net.Dialer{}, pconn.LocalAddr().String()))
	session.Prober.Timeout = 100 * time.Millisecond
	session.Interval = 400 * time.Millisecond
	session.Count = 2

	result, err := session.Run(context.Background(), "example.com")

	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, OutcomeTimeout, result.Outcomes[0].Kind)
	assert.Equal(t, OutcomeTimeout, result.Outcomes[1].Kind)
	assert.Equal(t, 0, result.Stats.Received)
}

func TestSessionRunCanceled(t *testing.T) {
	conn := newConnStub(t, func(rawQuery []byte) ([]byte, error) {
		return buildRawResponseFromQuery(t, rawQuery), nil
	})
	session := newStubSession(conn, 3)
	session.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session.OnOutcome = func(Outcome) {
		cancel()
	}

	result, err := session.Run(ctx, "example.com")

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 1, result.Stats.Transmitted)
}

func TestSessionRunLogsEachProbe(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	conn := newConnStub(t, func(rawQuery []byte) ([]byte, error) {
		return buildRawResponseFromQuery(t, rawQuery), nil
	})
	session := newStubSession(conn, 2)
	session.Logger = zap.New(core)

	_, err := session.Run(context.Background(), "example.com")
	require.NoError(t, err)

	probes := logs.FilterMessage("probe done").AllUntimed()
	require.Len(t, probes, 2)
	assert.Equal(t, int64(1), probes[1].ContextMap()["seq"])
	assert.Equal(t, "success", probes[1].ContextMap()["kind"])
	assert.Equal(t, 1, logs.FilterMessage("session done").Len())
}

func TestComparisonRunPreservesOrder(t *testing.T) {
	endpoints := []string{"192.0.2.1:53", "192.0.2.2:53", "192.0.2.3:53"}

	// the first endpoint is the slowest to answer
	newSession := func(endpoint string) *Session {
		conn := newConnStub(t, func(rawQuery []byte) ([]byte, error) {
			if endpoint == endpoints[0] {
				time.Sleep(100 * time.Millisecond)
			}
			return buildRawResponseFromQuery(t, rawQuery), nil
		})
		prober := NewProber(&netstub.FuncDialer{
			DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
				return conn, nil
			},
		}, endpoint)
		session := NewSession(prober)
		session.Count = 2
		session.Interval = 0
		return session
	}

	for _, parallelism := range []int{0, 1, 3} {
		comparison := NewComparison(newSession)
		comparison.Parallelism = parallelism

		var (
			mu        sync.Mutex
			delivered []string
		)
		comparison.OnResult = func(r *Result) {
			mu.Lock()
			delivered = append(delivered, r.Endpoint)
			mu.Unlock()
		}

		results, err := comparison.Run(context.Background(), "example.com", endpoints)
		require.NoError(t, err)
		require.Len(t, results, len(endpoints))
		for idx, result := range results {
			assert.Equal(t, endpoints[idx], result.Endpoint)
			assert.Equal(t, 2, result.Stats.Received)
		}
		assert.Equal(t, endpoints, delivered)
	}
}

func TestComparisonRunDialFailureIsNotFatal(t *testing.T) {
	endpoints := []string{"192.0.2.1:53", "192.0.2.2:53"}
	newSession := func(endpoint string) *Session {
		prober := NewProber(&netstub.FuncDialer{
			DialContextFunc: func(context.Context, string, string) (net.Conn, error) {
				if endpoint == endpoints[0] {
					return nil, errors.New("network unreachable")
				}
				return newConnStub(t, func(rawQuery []byte) ([]byte, error) {
					return buildRawResponseFromQuery(t, rawQuery), nil
				}), nil
			},
		}, endpoint)
		session := NewSession(prober)
		session.Count = 1
		session.Interval = 0
		return session
	}

	results, err := NewComparison(newSession).Run(context.Background(), "example.com", endpoints)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Stats.Received)
	assert.Equal(t, 1, results[1].Stats.Received)
}

func TestComparisonRunInvalidDomain(t *testing.T) {
	called := false
	comparison := NewComparison(func(string) *Session {
		called = true
		return nil
	})

	results, err := comparison.Run(context.Background(), "", []string{"8.8.8.8:53"})

	require.ErrorIs(t, err, ErrInvalidName)
	assert.Nil(t, results)
	assert.False(t, called)
}

func TestComparisonRunEmptyList(t *testing.T) {
	comparison := NewComparison(func(string) *Session {
		t.Fatal("should not be called")
		return nil
	})
	results, err := comparison.Run(context.Background(), "example.com", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
