/*
Package linkcheck turns the rendered content of a status into a list of
clean, resolved links.

For every status the Extractor runs these steps:
 1. Drop the status entirely if its author is on the Blocklist.
 2. Extract anchors from the HTML content.
 3. Drop links that point back at the status' own tags, mentions or media.
 4. Resolve redirects with a bounded pool of HEAD probes.
 5. Strip tracking query parameters from the resolved destination.
 6. Drop links whose resolved destination turned out to be self-referential.
*/
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/mycok/mastolinks/mastodon"
)

// ErrBlockedAccount is returned by Extract for statuses whose author is on
// the blocklist.
var ErrBlockedAccount = errors.New("account is blocklisted")

// Config configures an Extractor.
type Config struct {
	// Domain of the instance the feed is read from. Used to qualify local
	// account handles.
	Instance string

	// Accounts whose posts are ignored. Nil blocks nobody.
	Blocklist *Blocklist

	// Self-reference classifier. Defaults to substring media matching.
	Classifier *Classifier

	// Redirect resolver.
	Resolver LinkResolver

	// Tracking parameter stripper. Defaults to the built-in filter table.
	Canonicalizer *Canonicalizer

	Recorder Recorder
	Logger   *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error

	if cfg.Instance == "" {
		err = multierror.Append(err, fmt.Errorf("instance not provided"))
	}

	if cfg.Resolver == nil {
		err = multierror.Append(err, fmt.Errorf("link resolver not provided"))
	}

	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier(MediaContains)
	}

	if cfg.Canonicalizer == nil {
		cfg.Canonicalizer = NewCanonicalizer(DefaultFilterTable())
	}

	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Extractor runs the link pipeline for one status at a time. It holds no
// per-status state and is safe for concurrent use.
type Extractor struct {
	cfg Config
}

// NewExtractor returns a configured Extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("extractor: config validation failed: %w", err)
	}

	return &Extractor{cfg: cfg}, nil
}

// Instance returns the instance domain used to qualify local accounts.
func (e *Extractor) Instance() string { return e.cfg.Instance }

// Extract returns the links of status that survive self-reference
// filtering, with redirects resolved and tracking parameters removed, in
// document order. A blocklisted author yields ErrBlockedAccount and no
// links; no other stage runs in that case.
func (e *Extractor) Extract(ctx context.Context, status *mastodon.Status) ([]Link, error) {
	if status == nil {
		return nil, fmt.Errorf("extractor: nil status")
	}

	if e.cfg.Blocklist.Blocks(status.Account.Acct, e.cfg.Instance) {
		return nil, ErrBlockedAccount
	}

	logger := e.cfg.Logger.WithField("status_id", status.ID)

	anchors := ExtractAnchors(status.Content)
	e.cfg.Recorder.ObserveLinks(StageExtracted, len(anchors))

	candidates := make([]Link, 0, len(anchors))
	for _, a := range anchors {
		if e.cfg.Classifier.IsSelfReferential(status, a.Href) {
			continue
		}

		candidates = append(candidates, linkFromAnchor(a))
	}

	dropped := len(anchors) - len(candidates)
	if len(candidates) == 0 {
		e.cfg.Recorder.ObserveLinks(StageSelfReference, dropped)

		return nil, nil
	}

	resolved := e.cfg.Resolver.Resolve(ctx, candidates)

	links := make([]Link, 0, len(resolved))
	for _, link := range resolved {
		link, err := e.cfg.Canonicalizer.Clean(link)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"href": link.HrefCanonical,
				"err":  err,
			}).Warn("passing link through without canonicalization")
		}

		if e.cfg.Classifier.IsSelfReferential(status, link.HrefCanonical) {
			dropped++

			continue
		}

		links = append(links, link)
	}

	e.cfg.Recorder.ObserveLinks(StageSelfReference, dropped)
	e.cfg.Recorder.ObserveLinks(StageReported, len(links))

	return links, nil
}
