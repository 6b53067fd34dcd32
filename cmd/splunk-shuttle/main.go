package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	shuttle "github.com/heroku/splunk-shuttle"
	"github.com/heroku/splunk-shuttle/cmd/splunk-shuttle/internal"
	"github.com/pebbe/util"
	"github.com/pkg/errors"
)

// Default loggers to stdout and stderr
var (
	logger    = log.New(os.Stdout, "splunk-shuttle: ", log.LstdFlags)
	errLogger = log.New(os.Stderr, "splunk-shuttle: ", log.LstdFlags)

	logToSyslog bool
)

var version = "" // splunk-shuttle version, set with linker

// useStdin determines if we're using the terminal's stdin or not
func useStdin() bool {
	return !util.IsTerminal(os.Stdin)
}

// parseFlags overrides the properties of the given config using the provided
// command-line flags. Any option not overridden by a flag will be untouched.
// It also returns the -config value, a comma separated list of properties files.
func parseFlags(c shuttle.Config) (shuttle.Config, string, error) {
	var printVersion bool
	var propsFile string
	var gzip bool

	flag.StringVar(&propsFile, "config", "", "Comma separated YAML files of output properties (url, compress, event_key, ...), one per collector.")

	flag.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable verbose debug info.")
	flag.BoolVar(&c.SkipVerify, "skip-verify", c.SkipVerify, "Skip the verification of HTTPS server certificate.")
	flag.BoolVar(&gzip, "gzip", false, "POST using gzip compression.")
	flag.BoolVar(&c.SendRaw, "send-raw", c.SendRaw, "Use the raw endpoint, one JSON value per line.")
	flag.BoolVar(&logToSyslog, "log-to-syslog", logToSyslog, "Log to syslog instead of stderr.")
	flag.BoolVar(&printVersion, "version", printVersion, "Print splunk-shuttle version & exit.")

	flag.StringVar(&c.LogsURL, "url", c.LogsURL, "The base URL of the HTTP Event Collector.")
	flag.StringVar(&c.EventKey, "event-key", c.EventKey, "Send only the value at this key path, e.g. $log or $kubernetes['pod_name'].")
	flag.StringVar(&c.SplunkToken, "splunk-token", c.SplunkToken, "HEC token, sent as 'Authorization: Splunk <token>'.")
	flag.StringVar(&c.Channel, "channel", c.Channel, "Value of the X-Splunk-Request-Channel header.")
	flag.StringVar(&c.StatsSource, "stats-source", c.StatsSource, "When emitting stats, add splunk_shuttle_stats_source=<stats-source> to the stats.")

	flag.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "How often to emit/reset stats.")
	flag.DurationVar(&c.WaitDuration, "wait", c.WaitDuration, "Duration to wait to flush records to the collector.")
	flag.DurationVar(&c.Timeout, "timeout", c.Timeout, "Duration to wait for a response from the collector.")
	flag.DurationVar(&c.RetrySleep, "retry-sleep", c.RetrySleep, "Base delay between attempts, multiplied by the attempt number.")

	flag.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "Max number of attempts per batch.")
	flag.IntVar(&c.MaxConns, "max-conns", c.MaxConns, "Max number of concurrent requests.")
	flag.IntVar(&c.NumBatchers, "num-batchers", c.NumBatchers, "The number of batchers to run.")
	flag.IntVar(&c.NumOutlets, "num-outlets", c.NumOutlets, "The number of outlets to run.")
	flag.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "Number of records to pack into a collector request.")
	flag.IntVar(&c.FrontBuff, "front-buff", c.FrontBuff, "Number of envelopes to buffer in splunk-shuttle's input channel.")
	flag.IntVar(&c.BackBuff, "back-buff", c.BackBuff, "Number of batches to buffer before dropping.")

	flag.Parse()

	if printVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if gzip {
		c.Compress = "gzip"
	}

	return c, propsFile, nil
}

// getConfigs builds one config per properties file, or a single one when no
// file was given. Each is, in increasing priority, the defaults, the
// properties file and the flags. $SPLUNK_URL is used when neither names a url.
func getConfigs() ([]shuttle.Config, error) {
	defaults := shuttle.NewConfig()
	flagged, propsFiles, err := parseFlags(defaults)
	if err != nil {
		return nil, err
	}

	paths := []string{""}
	if propsFiles != "" {
		paths = strings.Split(propsFiles, ",")
	}

	configs := make([]shuttle.Config, 0, len(paths))
	for _, path := range paths {
		props, err := internal.LoadProperties(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		base := defaults
		if err := base.Merge(props); err != nil {
			return nil, errors.Wrapf(err, "properties file %q", path)
		}
		c := overlayFlags(base, flagged)

		c.LogsURL = internal.DetermineLogsURL(os.Getenv("SPLUNK_URL"), flagged.LogsURL, base.LogsURL, errLogger)
		if _, err := internal.ValidateURL(c.LogsURL); err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, nil
}

// overlayFlags applies the flags that were explicitly set on top of base.
func overlayFlags(base, flagged shuttle.Config) shuttle.Config {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "verbose":
			base.Verbose = flagged.Verbose
		case "skip-verify":
			base.SkipVerify = flagged.SkipVerify
		case "gzip":
			base.Compress = flagged.Compress
		case "send-raw":
			base.SendRaw = flagged.SendRaw
		case "event-key":
			base.EventKey = flagged.EventKey
		case "splunk-token":
			base.SplunkToken = flagged.SplunkToken
		case "channel":
			base.Channel = flagged.Channel
		case "stats-source":
			base.StatsSource = flagged.StatsSource
		case "stats-interval":
			base.StatsInterval = flagged.StatsInterval
		case "wait":
			base.WaitDuration = flagged.WaitDuration
		case "timeout":
			base.Timeout = flagged.Timeout
		case "retry-sleep":
			base.RetrySleep = flagged.RetrySleep
		case "max-attempts":
			base.MaxAttempts = flagged.MaxAttempts
		case "max-conns":
			base.MaxConns = flagged.MaxConns
		case "num-batchers":
			base.NumBatchers = flagged.NumBatchers
		case "num-outlets":
			base.NumOutlets = flagged.NumOutlets
		case "batch-size":
			base.BatchSize = flagged.BatchSize
		case "front-buff":
			base.FrontBuff = flagged.FrontBuff
		case "back-buff":
			base.BackBuff = flagged.BackBuff
		}
	})
	return base
}

func main() {
	configs, err := getConfigs()
	if err != nil {
		errLogger.Fatalf("error=%q\n", err)
	}

	if !useStdin() {
		errLogger.Fatalln(`error="No stdin detected."`)
	}

	ms := shuttle.NewMultiShuttle()
	reporters := make([]*shuttle.MetricsReporter, 0, len(configs))
	for _, config := range configs {
		if version != "" {
			config.ID = version
		}
		s := shuttle.NewShuttle(config)

		// Setup the loggers before doing anything else
		if err := setupLogging(logToSyslog || config.LogToSyslog, s, logger, errLogger); err != nil {
			errLogger.Fatalln(err)
		}
		ms.AddShuttle(s)
		reporters = append(reporters, shuttle.NewMetricsReporter(s, config.StatsSource, s.Logger))
	}

	if err := ms.Launch(); err != nil {
		errLogger.Fatalf("error=%q\n", err)
	}
	for i, r := range reporters {
		go r.Emit(configs[i].StatsInterval)
	}

	os.Exit(run(ms, os.Stdin, reporters))
}

// run reads input until it is closed, then lands the shuttles. What was read
// before a read error is still delivered, but the exit code is 1.
func run(ms *shuttle.MultiShuttle, input io.ReadCloser, reporters []*shuttle.MetricsReporter) int {
	readErr := ms.ReadEnvelopes(input)

	ms.Land()
	for _, r := range reporters {
		r.Stop()
	}

	if readErr != nil {
		return 1
	}
	return 0
}
