package linkcheck

import (
	"context"
	"net/http"
	"time"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/mycok/mastolinks/linkcheck HTTPDoer,PrivateNetworkDetector,LinkResolver

// HTTPDoer is implemented by HTTP clients able to send a redirect probe.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PrivateNetworkDetector is implemented by objects that can tell whether a
// host resolves to a private network address. Host name lookups must honour
// ctx.
type PrivateNetworkDetector interface {
	IsNetworkPrivate(ctx context.Context, address string) (bool, error)
}

// LinkResolver is implemented by objects that can resolve the final
// destination of a batch of links. The returned slice must have the same
// length and order as the input.
type LinkResolver interface {
	Resolve(ctx context.Context, links []Link) []Link
}

// Link counter stages reported to a Recorder.
const (
	StageExtracted     = "extracted"
	StageSelfReference = "self_reference"
	StageReported      = "reported"
)

// Recorder receives pipeline observations. The metrics package provides a
// Prometheus backed implementation.
type Recorder interface {
	ObserveProbe(kind ProbeKind, elapsed time.Duration)
	ObserveLinks(stage string, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProbe(ProbeKind, time.Duration) {}
func (nopRecorder) ObserveLinks(string, int)              {}
