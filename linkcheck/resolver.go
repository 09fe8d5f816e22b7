package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/pipeline"
)

// Probe failure reasons.
var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrPrivateNetwork    = errors.New("host resolves to a private network")
	ErrProbePanic        = errors.New("probe panicked")
	ErrProbeIncomplete   = errors.New("probe did not complete")
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultUserAgent    = "mastolinks/1.0 (+https://github.com/mycok/mastolinks)"
	maxRedirects        = 10
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// HTTP client used for probes. Redirects are expected to be followed by
	// the client itself. If not specified, an *http.Client with Timeout set
	// to ProbeTimeout is used. An *http.Client is copied and every redirect
	// hop it follows is checked like the original link.
	HTTPClient HTTPDoer

	// Optional guard against probing hosts on private networks. It is
	// consulted for the link and for every redirect target.
	PrivateNetworkDetector PrivateNetworkDetector

	// Maximum number of concurrent probes for a single call to Resolve.
	// Defaults to the number of CPUs.
	Workers int

	// Upper bound for a single probe, redirects included. Defaults to 10s.
	ProbeTimeout time.Duration

	UserAgent string

	Recorder Recorder
	Logger   *logrus.Entry
}

func (cfg *ResolverConfig) validate() error {
	var err error

	if cfg.Workers < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for probe workers, must be >= 0"))
	} else if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}

	if cfg.ProbeTimeout < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for probe timeout, must be >= 0"))
	} else if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Resolver discovers the final destination of links with one HEAD probe per
// link, running at most Workers probes at a time.
type Resolver struct {
	cfg ResolverConfig
}

var _ LinkResolver = (*Resolver)(nil)

// NewResolver returns a Resolver for cfg.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("resolver: config validation failed: %w", err)
	}

	r := &Resolver{cfg: cfg}

	switch client := cfg.HTTPClient.(type) {
	case nil:
		r.cfg.HTTPClient = r.guardRedirects(&http.Client{Timeout: cfg.ProbeTimeout})
	case *http.Client:
		r.cfg.HTTPClient = r.guardRedirects(client)
	}

	return r, nil
}

// guardRedirects returns a copy of client that vets every redirect target
// before following it.
func (r *Resolver) guardRedirects(client *http.Client) *http.Client {
	guarded := *client
	next := client.CheckRedirect

	guarded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if err := r.checkTarget(req.Context(), req.URL); err != nil {
			return err
		}

		if next != nil {
			return next(req, via)
		}

		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}

		return nil
	}

	return &guarded
}

// checkTarget fails for URLs that must not be requested.
func (r *Resolver) checkTarget(ctx context.Context, target *url.URL) error {
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, target.Scheme)
	}

	if r.cfg.PrivateNetworkDetector == nil {
		return nil
	}

	host := target.Hostname()
	isPrivate, err := r.cfg.PrivateNetworkDetector.IsNetworkPrivate(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve host %q: %w", host, err)
	}

	if isPrivate {
		return fmt.Errorf("%w: %s", ErrPrivateNetwork, host)
	}

	return nil
}

// Resolve probes every link and returns them with Status, HrefCanonical and
// Probe set. The result always has one entry per input link, at the same
// position. Probe failures are recorded on the link and never abort the
// other probes; links left unprobed because ctx expired are marked as
// failed with ctx.Err().
func (r *Resolver) Resolve(ctx context.Context, links []Link) []Link {
	if len(links) == 0 {
		return nil
	}

	workers := r.cfg.Workers
	if workers > len(links) {
		workers = len(links)
	}

	src := &linkSource{links: links}
	sink := &indexedSink{
		results: make([]Link, len(links)),
		filled:  make([]bool, len(links)),
	}

	p := pipeline.New(pipeline.NewFixedWorkerPool(&prober{r: r}, workers))
	if err := p.Execute(ctx, src, sink); err != nil {
		r.cfg.Logger.WithError(err).Error("redirect probe pool exited with an error")
	}

	reason := ctx.Err()
	if reason == nil {
		reason = ErrProbeIncomplete
	}

	for i, ok := range sink.filled {
		if !ok {
			sink.results[i] = links[i].withProbe(ProbeOutcome{Kind: ProbeFailed, Err: reason})
		}
	}

	return sink.results
}

// probe sends a single HEAD request for href and classifies the outcome.
func (r *Resolver) probe(ctx context.Context, href string) ProbeOutcome {
	target, err := url.Parse(href)
	if err != nil {
		return failedProbe(fmt.Errorf("%w: %v", ErrUnparsableURL, err))
	}

	ctx, cancelFn := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancelFn()

	if err := r.checkTarget(ctx, target); err != nil {
		return failedProbe(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, href, nil)
	if err != nil {
		return failedProbe(fmt.Errorf("%w: %v", ErrUnparsableURL, err))
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return failedProbe(err)
	}
	_ = resp.Body.Close()

	if resp.Request == nil || resp.Request.URL == nil {
		return ProbeOutcome{Kind: ProbeNotRedirected, Status: resp.StatusCode}
	}

	final := resp.Request.URL.String()
	if final == href || final == target.String() {
		return ProbeOutcome{Kind: ProbeNotRedirected, Status: resp.StatusCode}
	}

	return ProbeOutcome{Kind: ProbeRedirected, Status: resp.StatusCode, URL: final}
}

func failedProbe(err error) ProbeOutcome {
	return ProbeOutcome{Kind: ProbeFailed, Err: err}
}

// prober is the worker pool processor. It never returns an error or drops a
// payload, so every link reaches the sink.
type prober struct {
	r *Resolver
}

func (p *prober) Process(ctx context.Context, payload pipeline.Payload) (out pipeline.Payload, err error) {
	pp := payload.(*probePayload)
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			p.r.cfg.Logger.WithFields(logrus.Fields{
				"href":  pp.link.Href,
				"panic": rec,
			}).Error("redirect probe panicked")

			pp.link = pp.link.withProbe(failedProbe(fmt.Errorf("%w: %v", ErrProbePanic, rec)))
			out, err = pp, nil
		}

		p.r.cfg.Recorder.ObserveProbe(pp.link.Probe.Kind, time.Since(started))
	}()

	outcome := p.r.probe(ctx, pp.link.Href)
	if outcome.Kind == ProbeFailed {
		p.r.cfg.Logger.WithFields(logrus.Fields{
			"href": pp.link.Href,
			"err":  outcome.Err,
		}).Debug("redirect probe failed")
	}

	pp.link = pp.link.withProbe(outcome)

	return pp, nil
}

var (
	_ pipeline.Payload = (*probePayload)(nil)
	_ pipeline.Source  = (*linkSource)(nil)
	_ pipeline.Sink    = (*indexedSink)(nil)

	probePayloadPool = sync.Pool{
		New: func() interface{} { return new(probePayload) },
	}
)

// probePayload carries one link and its position in the batch.
type probePayload struct {
	index int
	link  Link
}

func (p *probePayload) Clone() pipeline.Payload {
	clone := probePayloadPool.Get().(*probePayload)
	clone.index = p.index
	clone.link = p.link

	return clone
}

func (p *probePayload) MarkAsProcessed() {
	p.index = 0
	p.link = Link{}
	probePayloadPool.Put(p)
}

type linkSource struct {
	links []Link
	next  int
}

func (s *linkSource) Next(ctx context.Context) bool {
	if ctx.Err() != nil || s.next >= len(s.links) {
		return false
	}

	s.next++

	return true
}

func (s *linkSource) Payload() pipeline.Payload {
	p := probePayloadPool.Get().(*probePayload)
	p.index = s.next - 1
	p.link = s.links[p.index]

	return p
}

func (s *linkSource) Error() error { return nil }

// indexedSink stores each resolved link at its original position. The
// pipeline calls Consume from a single goroutine and every index is written
// at most once.
type indexedSink struct {
	results []Link
	filled  []bool
}

func (s *indexedSink) Consume(_ context.Context, payload pipeline.Payload) error {
	p := payload.(*probePayload)
	s.results[p.index] = p.link
	s.filled[p.index] = true

	return nil
}
