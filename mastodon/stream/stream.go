// Package stream connects to the public timeline of a Mastodon instance and
// delivers decoded events on a channel.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
)

// Supported transports.
const (
	ModeEventStream = "event-stream"
	ModeSocket      = "socket"
)

var (
	// ErrUnknownMode is returned by New for an unsupported transport name.
	ErrUnknownMode = errors.New("unknown stream transport")

	// ErrStreamClosed is returned when the server ends the stream.
	ErrStreamClosed = errors.New("stream closed by server")
)

// Streamer is implemented by feed transports.
type Streamer interface {
	// Stream sends events to out until ctx is cancelled, in which case it
	// returns ctx.Err(), or until the connection fails.
	Stream(ctx context.Context, out chan<- mastodon.Event) error
}

type options struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *logrus.Entry
}

// Option configures a transport returned by New.
type Option func(*options)

// WithBaseURL overrides the scheme and host the transport connects to, e.g.
// "http://127.0.0.1:8080" for an event stream or "ws://127.0.0.1:8080" for a
// socket.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithHTTPClient sets the client used by the event stream transport. It must
// not set a Timeout, which would cut the stream.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithDialer sets the dialer used by the socket transport.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *options) { o.dialer = dialer }
}

// WithLogger sets the logger used to report skipped frames.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// New returns the transport named by mode for instance.
func New(mode, instance string, opts ...Option) (Streamer, error) {
	if instance == "" {
		return nil, fmt.Errorf("stream: instance not provided")
	}

	o := options{
		httpClient: http.DefaultClient,
		dialer:     websocket.DefaultDialer,
		logger:     logrus.NewEntry(&logrus.Logger{Out: io.Discard}),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.WithFields(logrus.Fields{
		"instance":  instance,
		"transport": mode,
	})

	switch mode {
	case ModeEventStream:
		base := o.baseURL
		if base == "" {
			base = "https://" + instance
		}

		return &EventStream{
			url:    base + "/api/v1/streaming/public",
			client: o.httpClient,
			logger: logger,
		}, nil

	case ModeSocket:
		base := o.baseURL
		if base == "" {
			base = "wss://" + instance
		}

		return &Socket{
			url:    base + "/api/v1/streaming?stream=public",
			dialer: o.dialer,
			logger: logger,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// emit decodes a raw frame and forwards it. Frames that fail to decode are
// logged and skipped; it only fails when ctx is cancelled.
func emit(ctx context.Context, logger *logrus.Entry, out chan<- mastodon.Event, name string, payload []byte) error {
	evt, err := mastodon.DecodeEvent(name, payload)
	if errors.Is(err, mastodon.ErrUnknownEvent) {
		logger.WithField("event", name).Debug("skipping unhandled stream event")

		return nil
	} else if err != nil {
		logger.WithError(err).WithField("event", name).Warn("skipping malformed stream event")

		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- evt:
		return nil
	}
}
