// Package monitor wraps the per-post pipeline into a service that keeps a
// feed connection open for as long as the application runs.
package monitor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
	monitor_pipeline "github.com/mycok/mastolinks/monitor"
)

// Service streams statuses into the monitor pipeline. It satisfies the
// service.Service interface.
type Service struct {
	config  Config
	monitor *monitor_pipeline.Monitor
}

// New creates and returns a fully configured monitor service instance.
func New(config Config) (*Service, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("monitor service: config validation failed: %w", err)
	}

	m, err := monitor_pipeline.New(monitor_pipeline.Config{
		Extractor:        config.Extractor,
		Reporter:         config.Reporter,
		Dedup:            config.Dedup,
		Metrics:          config.Metrics,
		MaxInFlightPosts: config.MaxInFlightPosts,
		Logger:           config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("monitor service: %w", err)
	}

	return &Service{config: config, monitor: m}, nil
}

// Name returns the name of the service, which includes the instance it
// monitors.
func (svc *Service) Name() string {
	return "monitor[" + svc.config.Extractor.Instance() + "]"
}

// Run executes the service and blocks until the context gets cancelled
// or the reporter fails. Stream failures are logged and followed by a new
// connection after ReconnectDelay.
func (svc *Service) Run(ctx context.Context) error {
	svc.config.Logger.WithField(
		"reconnect_delay", svc.config.ReconnectDelay.String(),
	).Info("starting service")
	defer svc.config.Logger.Info("stopped service")

	for {
		if err := svc.runConnection(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-svc.config.Clock.After(svc.config.ReconnectDelay):
		}
	}
}

// runConnection feeds one stream connection through the monitor until
// either side stops. Only a monitor failure is returned.
func (svc *Service) runConnection(ctx context.Context) error {
	connCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	events := make(chan mastodon.Event)
	streamErrChan := make(chan error, 1)

	go func() {
		defer close(events)

		streamErrChan <- svc.config.Streamer.Stream(connCtx, events)
	}()

	startedAt := svc.config.Clock.Now()
	reported, err := svc.monitor.Run(connCtx, events)

	// Stop the stream if the monitor gave up first.
	cancelFn()
	streamErr := <-streamErrChan

	svc.config.Logger.WithFields(logrus.Fields{
		"reported_posts": reported,
		"elapsed_time":   svc.config.Clock.Now().Sub(startedAt).String(),
	}).Info("stream connection closed")

	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	if ctx.Err() == nil {
		svc.config.Logger.WithField("err", streamErr).Warn("stream disconnected, reconnecting")
	}

	return nil
}
