package monitor

import (
	"context"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/mastodon"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/mycok/mastolinks/monitor Extractor,Reporter

// Extractor is implemented by objects that turn a status into its list of
// reportable links. *linkcheck.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, status *mastodon.Status) ([]linkcheck.Link, error)

	// Instance returns the domain used to qualify local account handles.
	Instance() string
}

// Reporter is implemented by objects that present results. A monitor calls
// Report from a single goroutine; a Reporter shared by several monitors must
// be safe for concurrent use.
type Reporter interface {
	Report(ctx context.Context, result Result) error
}

// Deduper is implemented by objects that remember statuses. A status is
// marked with a key shared by every instance that delivers it and an alias
// local to one instance, which is all a delete event carries.
// *dedup.Cache satisfies it, and may be shared by several monitors.
type Deduper interface {
	Seen(key, alias string) bool
	Forget(alias string)
}

// Recorder counts post outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObservePost(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePost(string) {}

// nopDeduper treats every status as new.
type nopDeduper struct{}

func (nopDeduper) Seen(string, string) bool { return false }
func (nopDeduper) Forget(string)            {}
