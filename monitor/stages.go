package monitor

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/mastodon"
	"github.com/mycok/mastolinks/metrics"
	"github.com/mycok/mastolinks/pipeline"
)

var (
	_ pipeline.Processor = (*dedupFilter)(nil)
	_ pipeline.Processor = (*linkExtractor)(nil)
)

// dedupFilter lets through each status update once. Delete events make the
// status eligible again and are dropped, as are duplicates.
type dedupFilter struct {
	instance string
	dedup    Deduper
	recorder Recorder
	logger   *logrus.Entry
}

func (f *dedupFilter) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*postPayload)

	switch p.Event.Kind {
	case mastodon.EventDelete:
		f.dedup.Forget(localKey(f.instance, p.Event.DeletedID))

		return nil, nil

	case mastodon.EventUpdate:
		if p.Event.Status == nil {
			return nil, nil
		}

		alias := localKey(f.instance, p.Event.Status.ID)

		key := p.Event.Status.URI
		if key == "" {
			key = alias
		}

		if f.dedup.Seen(key, alias) {
			f.recorder.ObservePost(metrics.PostDuplicate)
			f.logger.WithField("status_id", p.Event.Status.ID).Debug("dropping duplicate status")

			return nil, nil
		}

		return p, nil

	default:
		return nil, nil
	}
}

// localKey names a status by the instance that delivered it and its id
// there.
func localKey(instance, id string) string {
	return instance + "/" + id
}

// linkExtractor runs the link pipeline for one status. Posts that end up
// with no links are dropped.
type linkExtractor struct {
	extractor Extractor
	recorder  Recorder
	logger    *logrus.Entry
}

func (e *linkExtractor) Process(ctx context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*postPayload)
	status := p.Event.Status

	logger := e.logger.WithFields(logrus.Fields{
		"trace_id":  p.TraceID.String(),
		"status_id": status.ID,
	})

	links, err := e.extractor.Extract(ctx, status)
	switch {
	case errors.Is(err, linkcheck.ErrBlockedAccount):
		e.recorder.ObservePost(metrics.PostBlocked)
		logger.WithField("acct", status.Account.Acct).Debug("dropping status from blocklisted account")

		return nil, nil

	case err != nil:
		e.recorder.ObservePost(metrics.PostFailed)
		logger.WithError(err).Warn("link extraction failed")

		return nil, nil

	case len(links) == 0:
		e.recorder.ObservePost(metrics.PostEmpty)

		return nil, nil
	}

	p.Result = newResult(status, e.extractor.Instance(), links)
	logger.WithField("links", len(links)).Debug("status has links to report")

	return p, nil
}
