/*
Package monitor runs the per-post pipeline over a feed of stream events:

 1. Drop delete events, after forgetting their id, and repeated updates.
 2. Extract, resolve and clean the links of each remaining status, with up
    to MaxInFlightPosts statuses in flight at once.
 3. Report every status that still has links.

Statuses are processed concurrently, so results are reported in completion
order rather than arrival order.
*/
package monitor

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
	"github.com/mycok/mastolinks/pipeline"
)

// Config configures a Monitor.
type Config struct {
	Extractor Extractor
	Reporter  Reporter

	// Remembers statuses across reconnects and across monitors sharing it.
	// If not specified, duplicates are not filtered.
	Dedup Deduper

	Metrics Recorder

	// Maximum number of statuses whose links are being resolved at the same
	// time. Defaults to the number of CPUs.
	MaxInFlightPosts int

	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error

	if cfg.Extractor == nil {
		err = multierror.Append(err, fmt.Errorf("link extractor not provided"))
	}

	if cfg.Reporter == nil {
		err = multierror.Append(err, fmt.Errorf("reporter not provided"))
	}

	if cfg.MaxInFlightPosts < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for max in-flight posts, must be >= 0"))
	} else if cfg.MaxInFlightPosts == 0 {
		cfg.MaxInFlightPosts = runtime.NumCPU()
	}

	if cfg.Dedup == nil {
		cfg.Dedup = nopDeduper{}
	}

	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Monitor executes the per-post pipeline.
type Monitor struct {
	cfg Config
	p   *pipeline.Pipeline
}

// New returns a Monitor for cfg.
func New(cfg Config) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("monitor: config validation failed: %w", err)
	}

	return &Monitor{cfg: cfg, p: assemblePipeline(cfg)}, nil
}

func assemblePipeline(cfg Config) *pipeline.Pipeline {
	return pipeline.New(
		pipeline.NewFIFO(&dedupFilter{
			instance: cfg.Extractor.Instance(),
			dedup:    cfg.Dedup,
			recorder: cfg.Metrics,
			logger:   cfg.Logger,
		}),
		pipeline.NewDynamicWorkerPool(
			&linkExtractor{
				extractor: cfg.Extractor,
				recorder:  cfg.Metrics,
				logger:    cfg.Logger,
			},
			cfg.MaxInFlightPosts,
		),
	)
}

// Run consumes events until the channel is closed, ctx is cancelled or the
// reporter fails, and returns the number of statuses reported. Calls to Run
// block until every in-flight status has been handled. Run must not be
// called concurrently.
func (m *Monitor) Run(ctx context.Context, events <-chan mastodon.Event) (int, error) {
	sink := &reportingSink{reporter: m.cfg.Reporter, recorder: m.cfg.Metrics}

	err := m.p.Execute(ctx, &eventSource{events: events}, sink)

	return sink.count, err
}
