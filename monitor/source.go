package monitor

import (
	"context"

	"github.com/google/uuid"

	"github.com/mycok/mastolinks/mastodon"
	"github.com/mycok/mastolinks/pipeline"
)

var _ pipeline.Source = (*eventSource)(nil)

// eventSource feeds the pipeline from the stream's event channel until the
// channel is closed or ctx is cancelled.
type eventSource struct {
	events  <-chan mastodon.Event
	current mastodon.Event
}

func (s *eventSource) Next(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case evt, ok := <-s.events:
		if !ok {
			return false
		}

		s.current = evt

		return true
	}
}

func (s *eventSource) Payload() pipeline.Payload {
	p := payloadPool.Get().(*postPayload)
	p.TraceID = uuid.New()
	p.Event = s.current

	return p
}

func (s *eventSource) Error() error { return nil }
