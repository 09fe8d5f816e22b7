package monitor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mycok/mastolinks/mastodon"
	"github.com/mycok/mastolinks/pipeline"
)

var (
	_ pipeline.Payload = (*postPayload)(nil)

	payloadPool = sync.Pool{
		New: func() interface{} { return new(postPayload) },
	}
)

type postPayload struct {
	TraceID uuid.UUID      // populated by the event source.
	Event   mastodon.Event // populated by the event source.
	Result  Result         // populated by the link extractor.
}

// Clone returns a copy of the payload. Links are copied; the status is
// shared since no stage mutates it.
func (p *postPayload) Clone() pipeline.Payload {
	clone := payloadPool.Get().(*postPayload)

	clone.TraceID = p.TraceID
	clone.Event = p.Event
	clone.Result = p.Result
	clone.Result.Links = append(clone.Result.Links[:0:0], p.Result.Links...)

	return clone
}

// MarkAsProcessed resets the payload and returns it to the pool.
func (p *postPayload) MarkAsProcessed() {
	*p = postPayload{}

	payloadPool.Put(p)
}
