// Command databus runs Lua scripts against an event bus.
//
// Usage:
//
//	databus [flags] script.lua...
//
// Each script sees a global "bus" table with subscribe, unsubscribe, once,
// trigger, triggerSync and triggerAsync. Flags may also be set through
// DATABUS_* environment variables.
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

	"github.com/peterbourgon/ff/v3"
)

// Version information (set via ldflags during build).
var version = "dev"

// options holds the parsed command line.
type options struct {
	configPath  string
	debug       bool
	watch       bool
	metricsAddr string
	logLevel    string
	stats       bool
	emits       emitList
	scripts     []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(realMain(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := run(ctx, opts, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options
	var showVersion bool

	fs := flag.NewFlagSet("databus", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a .toml or .yaml bus configuration file")
	fs.BoolVar(&opts.debug, "debug", false, "log every listener failure")
	fs.BoolVar(&opts.watch, "watch", false, "re-run the scripts when they or the config file change")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.stats, "stats", false, "print bus statistics as JSON on exit")
	fs.Var(&opts.emits, "emit", "trigger channel=JSON synchronously after the scripts load; repeatable")
	fs.BoolVar(&showVersion, "version", false, "print the version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: databus [flags] script.lua...\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("DATABUS")); err != nil {
		return nil, err
	}

	if showVersion {
		fmt.Fprintf(stderr, "databus %s\n", version)
		return nil, flag.ErrHelp
	}

	switch opts.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.logLevel)
	}

	opts.scripts = fs.Args()
	if len(opts.scripts) == 0 && len(opts.emits) == 0 {
		fs.Usage()
		return nil, errors.New("no scripts given")
	}
	return &opts, nil
}
