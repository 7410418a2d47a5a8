/*
dnsblast: a DNS load generator
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

func usage() {
	fmt.Fprint(os.Stderr, strings.Join([]string{
		"Send pseudo-random DNS queries to a resolver at a controlled rate.",
		"",
		"Usage: dnsblast [option ...] [fuzz] <host> [<count>] [<pps>] [<port>]",
		"",
		"A count or pps of 0 means unlimited. Options may appear before or after",
		"the positional arguments; everything after \"--\" is positional.",
		"",
	}, "\n"))
	flag.PrintDefaults()
}

func main() {
	configFile := flag.String("config", "", "Configuration file (yaml, json or toml)")
	genConfig := flag.String("gen-config", "", "Write an example configuration file and exit")

	// Option flags are registered against a scratch config; values that were
	// set explicitly are copied over the loaded configuration.
	flags := DefaultConfig()
	flag.StringVar(&flags.Interface, "interface", "", "Send from this interface's address (\"auto\" for the default route)")
	flag.StringVar(&flags.NameMode, "names", flags.NameMode, "Name source: random, fake, file or fixed")
	flag.StringVar(&flags.NamesFile, "names-file", "", "File with names to query, one per line (implies -names file)")
	flag.StringVar(&flags.Name, "name", "", "Single name to query (implies -names fixed)")
	flag.StringVar(&flags.NameSuffix, "suffix", flags.NameSuffix, "Suffix for random names")
	flag.Int64Var(&flags.Seed, "seed", 0, "Random seed (0 picks one from the clock)")
	flag.DurationVar(&flags.StatsInterval, "interval", flags.StatsInterval, "Status update interval")
	flag.DurationVar(&flags.DrainTimeout, "drain-timeout", 0, "Give up waiting for replies after this long (0 waits forever)")
	flag.IntVar(&flags.SocketBuffer, "sockbuf", flags.SocketBuffer, "Socket send/receive buffer size in bytes")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output")
	flag.BoolVar(&flags.Quiet, "quiet", false, "Only print the final totals")
	flag.BoolVar(&flags.TUI, "tui", false, "Use the interactive display instead of the status line")
	flag.StringVar(&flags.StatsdAddr, "statsd", "", "Push stats to this statsd address")
	flag.StringVar(&flags.MetricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flag.Usage = usage
	args, err := parseInterspersed(flag.CommandLine, os.Args[1:])
	if err != nil {
		// The command line flag set exits on its own parse errors.
		os.Exit(2)
	}

	if *genConfig != "" {
		if err := GenerateExampleConfig(*genConfig); err != nil {
			appLogger.Fatal("Error writing example config: %v", err)
		}
		fmt.Printf("Example configuration written to %s\n", *genConfig)
		return
	}

	config := DefaultConfig()
	if *configFile != "" {
		loaded, err := LoadConfigFile(*configFile)
		if err != nil {
			appLogger.Fatal("Error loading config: %v", err)
		}
		config = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		applyFlag(config, flags, f.Name)
	})

	if err := config.ApplyArgs(args); err != nil {
		appLogger.Error("%v", err)
		usage()
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration: %v", err)
	}

	switch {
	case config.LogLevel != "":
		appLogger.SetLevel(LogLevelFromString(config.LogLevel))
	case config.Verbose:
		appLogger.SetLevel(DEBUG)
	case config.Quiet:
		appLogger.SetLevel(WARN)
	}

	if err := run(config); err != nil {
		appLogger.Fatal("%v", err)
	}
}

// parseInterspersed parses fs from args, letting options follow positional
// arguments, and returns the positional arguments in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		// fs.Parse consumes a "--" terminator; whatever follows it is
		// positional.
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// applyFlag copies one explicitly set flag from flags into config.
func applyFlag(config, flags *Config, name string) {
	switch name {
	case "interface":
		config.Interface = flags.Interface
	case "names":
		config.NameMode = flags.NameMode
	case "names-file":
		config.NamesFile = flags.NamesFile
		config.NameMode = NameModeFile
	case "name":
		config.Name = flags.Name
		config.NameMode = NameModeFixed
	case "suffix":
		config.NameSuffix = flags.NameSuffix
	case "seed":
		config.Seed = flags.Seed
	case "interval":
		config.StatsInterval = flags.StatsInterval
	case "drain-timeout":
		config.DrainTimeout = flags.DrainTimeout
	case "sockbuf":
		config.SocketBuffer = flags.SocketBuffer
	case "log-level":
		config.LogLevel = flags.LogLevel
	case "verbose":
		config.Verbose = flags.Verbose
	case "quiet":
		config.Quiet = flags.Quiet
	case "tui":
		config.TUI = flags.TUI
	case "statsd":
		config.StatsdAddr = flags.StatsdAddr
	case "metrics":
		config.MetricsAddr = flags.MetricsAddr
	}
}

func run(config *Config) error {
	startTime := time.Now()

	dst, err := net.ResolveUDPAddr("udp", net.JoinHostPort(config.Host, config.Port))
	if err != nil {
		return WrapErrorWithContext("resolve", err, config.Host+":"+config.Port)
	}

	sockOpts := SocketOptions{BufferSize: config.SocketBuffer}
	if config.Interface != "" {
		sockOpts.Source, err = sourceAddress(config.Interface, dst.IP)
		if err != nil {
			return err
		}
	}
	conn, to, err := openSocket(dst, sockOpts)
	if err != nil {
		return err
	}
	defer conn.Close()

	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(uint64(config.Seed)))

	types, err := NewTypeSelector(config.Types, config.TypeScale, rng)
	if err != nil {
		return err
	}
	names, err := newNameSource(config, rng)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := NewStatusLine(os.Stdout, config.Count, config.Quiet)
	var sinks []StatsSink
	if config.TUI {
		// Warnings would scribble over the alternate screen.
		appLogger.RaiseLevel(ERROR)
		sinks = append(sinks, NewTUISink(dst.String(), config.Count, cancel))
	} else {
		appLogger.SetStatusLine(status)
		sinks = append(sinks, status)
	}
	if config.StatsdAddr != "" {
		sd, err := NewStatsdSink(config.StatsdAddr, dst.String())
		if err != nil {
			return err
		}
		sinks = append(sinks, sd)
	}

	session := NewSession(conn, to, rng, SessionOptions{
		PPS:            config.PPS,
		Fuzz:           config.Fuzz,
		RefuzzChance:   config.RefuzzChance,
		ReportInterval: config.StatsInterval,
		BufferSize:     config.BufferSize,
	})

	var metricsSink *MetricsSink
	if config.MetricsAddr != "" {
		metricsSink = NewMetricsSink(dst.String(), session.Sending)
		sinks = append(sinks, metricsSink)
	}
	reporter := NewReporter(sinks...)
	session.reporter = reporter

	blaster := NewBlaster(session, names, types, reporter)
	blaster.Count = config.Count
	blaster.DrainTimeout = config.DrainTimeout

	mode := "normal"
	if config.Fuzz {
		mode = "fuzz"
	}
	appLogger.Info("Blasting %s (%s mode, count %s, rate %s pps, seed %d)",
		dst, mode, unlimited(config.Count), unlimited(config.PPS), config.Seed)
	appLogger.Debug("Query types: %s", types)

	g, gctx := errgroup.WithContext(ctx)
	if metricsSink != nil {
		g.Go(func() error {
			return metricsSink.Serve(gctx, config.MetricsAddr)
		})
	}
	g.Go(func() error {
		// The metrics server only stops once the run is over.
		defer cancel()
		return blaster.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if summary := blaster.Errors().GetSummary(); summary != "" {
		fmt.Fprint(os.Stderr, summary)
	}

	final := session.Snapshot()
	duration := time.Since(startTime).Seconds()
	fmt.Printf("Total execution time: %.2f seconds\n", duration)
	fmt.Printf("Average query rate: %.2f qps\n", final.SendRate())
	return nil
}

func unlimited(n uint64) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
