// SPDX-License-Identifier: GPL-3.0-or-later

// Command dnsping measures DNS resolution latency over UDP.
//
// Usage:
//
//	dnsping ping [flags] <domain> <server>
//	dnsping compare [flags] <domain>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bassosimone/dnsping"
	"go.uber.org/zap"
)

const usage = `usage:
  dnsping ping [flags] <domain> <server>
  dnsping compare [flags] <domain>

run 'dnsping <command> -h' for the flags of each command
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches to the subcommand and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "ping":
		return runPing(ctx, args[1:], stdout, stderr)
	case "compare":
		return runCompare(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// commonFlags are shared by all subcommands.
type commonFlags struct {
	count    int
	interval time.Duration
	timeout  time.Duration
	verbose  bool
}

func (cf *commonFlags) register(fset *flag.FlagSet) {
	fset.IntVar(&cf.count, "count", dnsping.DefaultCount, "Number of queries per server")
	fset.DurationVar(&cf.interval, "interval", dnsping.DefaultInterval, "Pause between queries")
	fset.DurationVar(&cf.timeout, "timeout", dnsping.DefaultProbeTimeout, "Per-query timeout")
	fset.BoolVar(&cf.verbose, "v", false, "Enable debug logging")
}

// newSession returns a session factory honoring the flags.
func (cf *commonFlags) newSession(logger *zap.Logger) func(string) *dnsping.Session {
	return func(endpoint string) *dnsping.Session {
		session := dnsping.NewDefaultSession(endpoint)
		session.Count = cf.count
		session.Interval = cf.interval
		session.Prober.Timeout = cf.timeout
		session.Logger = logger
		return session
	}
}

// newLogger creates the logger writing to stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return config.Build()
}

func runPing(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cf commonFlags
	fset := flag.NewFlagSet("dnsping ping", flag.ContinueOnError)
	fset.SetOutput(stderr)
	cf.register(fset)
	plot := fset.Bool("plot", false, "Plot the response times")
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() != 2 || cf.count < 1 {
		fmt.Fprintln(stderr, "usage: dnsping ping [flags] <domain> <server>")
		fset.PrintDefaults()
		return 2
	}
	name, err := dnsping.ParseName(fset.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "dnsping: %s\n", err)
		return 2
	}
	domain := name.String()
	endpoint, err := dnsping.NormalizeEndpoint(fset.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "dnsping: %s\n", err)
		return 2
	}

	logger, err := newLogger(cf.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "dnsping: %s\n", err)
		return 1
	}
	defer logger.Sync()

	session := cf.newSession(logger)(endpoint)
	session.OnOutcome = func(outcome dnsping.Outcome) {
		_ = dnsping.WriteOutcome(stdout, &dnsping.Result{
			Endpoint: endpoint,
			Domain:   domain,
		}, outcome)
	}
	result, err := session.Run(ctx, domain)
	if result == nil {
		logger.Error("ping failed", zap.Error(err))
		return 1
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ping interrupted", zap.Error(err))
	}

	_ = dnsping.WritePingReport(stdout, result)
	if *plot {
		_ = dnsping.WritePlot(stdout, result.Outcomes)
	}
	if result.Stats.Received <= 0 {
		return 1
	}
	return 0
}

func runCompare(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cf commonFlags
	fset := flag.NewFlagSet("dnsping compare", flag.ContinueOnError)
	fset.SetOutput(stderr)
	cf.register(fset)
	servers := fset.String("servers", "", "File with one server per line (default: built-in list)")
	parallel := fset.Int("parallel", 1, "Number of servers to measure concurrently")
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() != 1 || cf.count < 1 {
		fmt.Fprintln(stderr, "usage: dnsping compare [flags] <domain>")
		fset.PrintDefaults()
		return 2
	}
	domain := fset.Arg(0)

	logger, err := newLogger(cf.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "dnsping: %s\n", err)
		return 1
	}
	defer logger.Sync()

	endpoints, err := dnsping.LoadServerList(*servers)
	if err != nil {
		logger.Error("cannot load server list", zap.String("path", *servers), zap.Error(err))
		return 1
	}

	comparison := dnsping.NewComparison(cf.newSession(logger))
	comparison.Parallelism = *parallel
	comparison.Logger = logger
	comparison.OnResult = func(result *dnsping.Result) {
		_ = dnsping.WriteCompareRow(stdout, result)
	}
	_ = dnsping.WriteCompareHeader(stdout)
	if _, err := comparison.Run(ctx, domain, endpoints); err != nil {
		if errors.Is(err, dnsping.ErrInvalidName) {
			fmt.Fprintf(stderr, "dnsping: %s\n", err)
			return 2
		}
		logger.Error("compare failed", zap.Error(err))
		return 1
	}
	return 0
}
