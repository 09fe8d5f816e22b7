// Package metrics exposes Prometheus collectors for the link monitor.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mycok/mastolinks/linkcheck"
)

const namespace = "mastolinks"

// Post outcomes.
const (
	PostReported  = "reported"
	PostBlocked   = "blocked"
	PostDuplicate = "duplicate"
	PostEmpty     = "empty"
	PostFailed    = "failed"
)

// Metrics holds the collectors. It implements linkcheck.Recorder.
type Metrics struct {
	posts         *prometheus.CounterVec
	probes        *prometheus.CounterVec
	links         *prometheus.CounterVec
	probeDuration prometheus.Histogram
}

var _ linkcheck.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Feed posts handled, by outcome.",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Redirect probes, by outcome.",
		}, []string{"outcome"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Links seen at each pipeline stage.",
		}, []string{"stage"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Time spent on a single redirect probe.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{m.posts, m.probes, m.links, m.probeDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}

	return m, nil
}

// ObservePost counts a post with the given outcome.
func (m *Metrics) ObservePost(outcome string) {
	m.posts.WithLabelValues(outcome).Inc()
}

// ObserveProbe implements linkcheck.Recorder.
func (m *Metrics) ObserveProbe(kind linkcheck.ProbeKind, elapsed time.Duration) {
	m.probes.WithLabelValues(kind.String()).Inc()
	m.probeDuration.Observe(elapsed.Seconds())
}

// ObserveLinks implements linkcheck.Recorder.
func (m *Metrics) ObserveLinks(stage string, n int) {
	if n <= 0 {
		return
	}

	m.links.WithLabelValues(stage).Add(float64(n))
}
