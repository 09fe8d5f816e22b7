package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mycok/mastolinks/dedup"
	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/linkcheck/privnet"
	"github.com/mycok/mastolinks/mastodon/stream"
	"github.com/mycok/mastolinks/metrics"
	"github.com/mycok/mastolinks/report"
	"github.com/mycok/mastolinks/rules"
	"github.com/mycok/mastolinks/service"
	"github.com/mycok/mastolinks/service/metricsserver"
	"github.com/mycok/mastolinks/service/monitor"
)

var (
	appName = "mastolinks"
	appSHA  = "latest-app-git-sha" // Populated by the compiler at the linking stage.
	logger  *logrus.Entry
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetOutput(os.Stderr)
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSHA,
		"host": host,
	})

	if err := configureAppEnv().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to an error")
		_ = os.Stderr.Sync()

		os.Exit(1)
	}
}

func configureAppEnv() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSHA
	app.Usage = "print the links posted to a Mastodon public timeline, unshortened and without tracking parameters"
	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "instance",
			Value:   cli.NewStringSlice("mastodon.social"),
			EnvVars: []string{"MASTOLINKS_INSTANCE"},
			Usage:   "Domain of a Mastodon instance whose public timeline is monitored. Repeat the flag, or separate values with commas, to monitor several",
		},
		&cli.StringFlag{
			Name:    "transport",
			Value:   stream.ModeEventStream,
			EnvVars: []string{"MASTOLINKS_TRANSPORT"},
			Usage:   "Streaming transport to use. Supported values are 'event-stream' and 'socket'",
		},
		&cli.StringFlag{
			Name:    "rules",
			EnvVars: []string{"MASTOLINKS_RULES"},
			Usage:   "Path to a YAML file with the account blocklist and tracking parameter filters",
		},
		&cli.IntFlag{
			Name:    "probe-workers",
			Value:   runtime.NumCPU(),
			EnvVars: []string{"MASTOLINKS_PROBE_WORKERS"},
			Usage:   "Maximum number of concurrent redirect probes per post",
		},
		&cli.DurationFlag{
			Name:    "probe-timeout",
			Value:   10 * time.Second,
			EnvVars: []string{"MASTOLINKS_PROBE_TIMEOUT"},
			Usage:   "Upper bound for a single redirect probe, redirects included",
		},
		&cli.IntFlag{
			Name:    "max-in-flight-posts",
			Value:   runtime.NumCPU(),
			EnvVars: []string{"MASTOLINKS_MAX_IN_FLIGHT_POSTS"},
			Usage:   "Maximum number of posts processed concurrently",
		},
		&cli.IntFlag{
			Name:    "dedup-size",
			Value:   10000,
			EnvVars: []string{"MASTOLINKS_DEDUP_SIZE"},
			Usage:   "Number of recent status ids remembered to skip duplicates",
		},
		&cli.DurationFlag{
			Name:    "dedup-ttl",
			Value:   time.Hour,
			EnvVars: []string{"MASTOLINKS_DEDUP_TTL"},
			Usage:   "How long a status id is remembered",
		},
		&cli.StringFlag{
			Name:    "format",
			Value:   report.FormatText,
			EnvVars: []string{"MASTOLINKS_FORMAT"},
			Usage:   "Output format. Supported values are 'text' and 'json'",
		},
		&cli.StringFlag{
			Name:    "color",
			Value:   report.ColorAuto,
			EnvVars: []string{"MASTOLINKS_COLOR"},
			Usage:   "Colour the text output. Supported values are 'auto', 'always' and 'never'",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Value:   ":6060",
			EnvVars: []string{"MASTOLINKS_METRICS_ADDR"},
			Usage:   "Address for exposing the /metrics and pprof endpoints. Empty disables them",
		},
		&cli.DurationFlag{
			Name:    "reconnect-delay",
			Value:   5 * time.Second,
			EnvVars: []string{"MASTOLINKS_RECONNECT_DELAY"},
			Usage:   "Time to wait before reconnecting after the stream fails",
		},
		&cli.StringFlag{
			Name:    "media-match",
			Value:   "contains",
			EnvVars: []string{"MASTOLINKS_MEDIA_MATCH"},
			Usage:   "How links are compared with media attachment URLs. Supported values are 'contains' and 'equals'",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   logrus.InfoLevel.String(),
			EnvVars: []string{"MASTOLINKS_LOG_LEVEL"},
			Usage:   "Minimum level of the JSON logs written to stderr",
		},
	}

	app.Action = execute

	return app
}

func execute(appCtx *cli.Context) error {
	level, err := logrus.ParseLevel(appCtx.String("log-level"))
	if err != nil {
		return err
	}
	logger.Logger.SetLevel(level)

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	instances := appCtx.StringSlice("instance")
	if len(instances) == 0 {
		return fmt.Errorf("at least one instance is required")
	}

	ruleSet, err := rules.Load(appCtx.String("rules"))
	if err != nil {
		return err
	}

	mediaMatch, err := parseMediaMatch(appCtx.String("media-match"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	recorder, err := metrics.New(registry)
	if err != nil {
		return err
	}

	resolver, err := newResolver(appCtx, recorder)
	if err != nil {
		return err
	}

	// Shared by every instance, so a federated post is reported once.
	cache, err := dedup.New(appCtx.Int("dedup-size"), appCtx.Duration("dedup-ttl"))
	if err != nil {
		return err
	}

	printer, err := report.NewPrinter(os.Stdout, appCtx.String("format"), appCtx.String("color"))
	if err != nil {
		return err
	}

	var (
		group         service.Group
		blocklist     = ruleSet.NewBlocklist()
		classifier    = linkcheck.NewClassifier(mediaMatch)
		canonicalizer = ruleSet.NewCanonicalizer()
	)

	for _, instance := range instances {
		instanceLogger := logger.WithField("instance", instance)

		extractor, err := linkcheck.NewExtractor(linkcheck.Config{
			Instance:      instance,
			Blocklist:     blocklist,
			Classifier:    classifier,
			Resolver:      resolver,
			Canonicalizer: canonicalizer,
			Recorder:      recorder,
			Logger:        instanceLogger.WithField("component", "extractor"),
		})
		if err != nil {
			return err
		}

		streamer, err := stream.New(
			appCtx.String("transport"), instance,
			stream.WithLogger(instanceLogger.WithField("component", "stream")),
		)
		if err != nil {
			return err
		}

		monitorSvc, err := monitor.New(monitor.Config{
			Streamer:         streamer,
			Extractor:        extractor,
			Reporter:         printer,
			Dedup:            cache,
			Metrics:          recorder,
			Clock:            clock.WallClock,
			ReconnectDelay:   appCtx.Duration("reconnect-delay"),
			MaxInFlightPosts: appCtx.Int("max-in-flight-posts"),
			Logger:           instanceLogger.WithField("service", "monitor"),
		})
		if err != nil {
			return err
		}
		group = append(group, monitorSvc)
	}

	if addr := appCtx.String("metrics-addr"); addr != "" {
		metricsSvc, err := metricsserver.New(metricsserver.Config{
			ListenAddr: addr,
			Gatherer:   registry,
			Logger:     logger.WithField("service", "metrics"),
		})
		if err != nil {
			return err
		}
		group = append(group, metricsSvc)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)

		select {
		case s := <-sigChan:
			logger.WithField("signal", s.String()).Info("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()

	logger.WithFields(logrus.Fields{
		"instances": instances,
		"transport": appCtx.String("transport"),
		"blocklist": len(ruleSet.Blocklist),
	}).Info("monitoring public timeline")

	return group.Execute(ctx)
}

// newResolver returns the redirect resolver shared by every instance. Its
// HTTP transport refuses to connect to private addresses, whichever hop of a
// redirect chain they appear at.
func newResolver(appCtx *cli.Context, recorder *metrics.Metrics) (*linkcheck.Resolver, error) {
	detector, err := privnet.NewDetector()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   detector.DialControl,
	}).DialContext

	probeTimeout := appCtx.Duration("probe-timeout")

	return linkcheck.NewResolver(linkcheck.ResolverConfig{
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   probeTimeout,
		},
		PrivateNetworkDetector: detector,
		Workers:                appCtx.Int("probe-workers"),
		ProbeTimeout:           probeTimeout,
		Recorder:               recorder,
		Logger:                 logger.WithField("component", "resolver"),
	})
}

func parseMediaMatch(mode string) (linkcheck.MediaMatch, error) {
	switch mode {
	case "contains":
		return linkcheck.MediaContains, nil
	case "equals":
		return linkcheck.MediaEquals, nil
	default:
		return 0, fmt.Errorf("unsupported media match mode %q", mode)
	}
}
