package linkcheck

import (
	"regexp"
	"strings"

	"github.com/mycok/mastolinks/mastodon"
)

// MediaMatch selects how a candidate href is compared with the URLs of a
// status' media attachments.
type MediaMatch int

const (
	// MediaContains drops an href that contains any media URL. A resolved
	// link can embed the shorter declared URL, e.g. a CDN path with an
	// added extension or tracking suffix.
	MediaContains MediaMatch = iota

	// MediaEquals drops an href only on an exact match.
	MediaEquals
)

var (
	tagPathRegex  = regexp.MustCompile(`/tags?/`)
	tagQueryRegex = regexp.MustCompile(`[?&]tags?=`)
)

// Classifier decides whether a link merely points back at something its
// status already declares: a hashtag, a mentioned account or an attached
// media file.
type Classifier struct {
	media MediaMatch
}

// NewClassifier returns a Classifier using the given media comparison.
func NewClassifier(media MediaMatch) *Classifier {
	return &Classifier{media: media}
}

// IsSelfReferential reports whether href should be dropped for status. The
// checks run in order and stop at the first hit.
func (c *Classifier) IsSelfReferential(status *mastodon.Status, href string) bool {
	// Any hashtag page hosted on the author's domain counts, not only the
	// declared tags.
	if domain := status.Account.Domain(); domain != "" && strings.Contains(href, domain) {
		if tagPathRegex.MatchString(href) || tagQueryRegex.MatchString(href) {
			return true
		}
	}

	for _, tag := range status.Tags {
		if tag.URL == href {
			return true
		}
	}

	for _, mention := range status.Mentions {
		if mention.URL == href {
			return true
		}
	}

	for _, media := range status.MediaAttachments {
		for _, u := range media.URLs() {
			if c.matchesMedia(href, u) {
				return true
			}
		}
	}

	return false
}

func (c *Classifier) matchesMedia(href, mediaURL string) bool {
	if mediaURL == "" {
		return false
	}

	if c.media == MediaEquals {
		return href == mediaURL
	}

	return strings.Contains(href, mediaURL)
}
