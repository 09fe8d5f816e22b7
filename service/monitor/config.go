package monitor

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/mycok/mastolinks/mastodon/stream Streamer

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon/stream"
	monitor_pipeline "github.com/mycok/mastolinks/monitor"
)

const defaultReconnectDelay = 5 * time.Second

// Config defines configurations for the monitor service.
type Config struct {
	// Feed transport. A new connection is opened after every failure.
	Streamer stream.Streamer

	// Link pipeline applied to every status.
	Extractor monitor_pipeline.Extractor

	// Destination for results.
	Reporter monitor_pipeline.Reporter

	// Remembers status ids across reconnects. Optional.
	Dedup monitor_pipeline.Deduper

	// Post outcome counters. Optional.
	Metrics monitor_pipeline.Recorder

	// A clock instance for generating time-related events. If not specified,
	// the default wall-clock will be used instead.
	Clock clock.Clock

	// Time to wait before reconnecting after a stream error. Defaults to 5s.
	ReconnectDelay time.Duration

	// Maximum number of statuses processed concurrently. Defaults to the
	// number of CPUs.
	MaxInFlightPosts int

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Streamer == nil {
		err = multierror.Append(err, fmt.Errorf("streamer not provided"))
	}

	if config.Extractor == nil {
		err = multierror.Append(err, fmt.Errorf("link extractor not provided"))
	}

	if config.Reporter == nil {
		err = multierror.Append(err, fmt.Errorf("reporter not provided"))
	}

	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	if config.ReconnectDelay < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for reconnect delay, must be >= 0"))
	} else if config.ReconnectDelay == 0 {
		config.ReconnectDelay = defaultReconnectDelay
	}

	if config.MaxInFlightPosts < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for max in-flight posts, must be >= 0"))
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}
