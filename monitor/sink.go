package monitor

import (
	"context"
	"fmt"

	"github.com/mycok/mastolinks/metrics"
	"github.com/mycok/mastolinks/pipeline"
)

var _ pipeline.Sink = (*reportingSink)(nil)

// reportingSink hands every result to the Reporter. The pipeline calls
// Consume from a single goroutine.
type reportingSink struct {
	reporter Reporter
	recorder Recorder
	count    int
}

func (s *reportingSink) Consume(ctx context.Context, payload pipeline.Payload) error {
	p := payload.(*postPayload)

	if err := s.reporter.Report(ctx, p.Result); err != nil {
		return fmt.Errorf("report status %s: %w", p.Result.StatusID, err)
	}

	s.recorder.ObservePost(metrics.PostReported)
	s.count++

	return nil
}
