// Package metricsserver exposes Prometheus metrics and pprof endpoints over
// HTTP.
package metricsserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Config defines configurations for the metrics service.
type Config struct {
	// Address to listen on, e.g. ":6060".
	ListenAddr string

	// Source of the exposed metrics.
	Gatherer prometheus.Gatherer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.ListenAddr == "" {
		err = multierror.Append(err, fmt.Errorf("listen address not provided"))
	}

	if config.Gatherer == nil {
		err = multierror.Append(err, fmt.Errorf("metrics gatherer not provided"))
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Service serves /metrics and /debug/pprof. It satisfies the
// service.Service interface.
type Service struct {
	config Config
	router chi.Router

	// Set once the listener is bound. Used by tests.
	boundAddr chan net.Addr
}

// New creates and returns a fully configured metrics service instance.
func New(config Config) (*Service, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("metrics service: config validation failed: %w", err)
	}

	svc := &Service{
		config:    config,
		router:    chi.NewRouter(),
		boundAddr: make(chan net.Addr, 1),
	}

	svc.router.Use(middleware.Recoverer)
	svc.router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	svc.router.Mount("/debug", middleware.Profiler())

	return svc, nil
}

// Name returns the name of the service.
func (svc *Service) Name() string { return "metrics" }

// Run executes the service and blocks until the context gets cancelled
// or an error occurs.
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.config.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	select {
	case svc.boundAddr <- l.Addr():
	default:
	}

	srv := &http.Server{
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		_ = srv.Shutdown(shutdownCtx)
	}()

	svc.config.Logger.WithField("addr", l.Addr().String()).Info("started service")
	defer svc.config.Logger.Info("stopped service")

	if err = srv.Serve(l); errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	return err
}
