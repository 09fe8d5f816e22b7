package monitor

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/mastodon"
)

const (
	unknownLanguage = "??"
	maxPreviewRunes = 100
)

var (
	blockBreakRegex    = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	repeatedSpaceRegex = regexp.MustCompile(`\s+`)

	policyPool = sync.Pool{
		New: func() interface{} { return bluemonday.StrictPolicy() },
	}
)

// Result is what the monitor reports for a post with at least one link.
type Result struct {
	StatusID string
	URL      string

	// Instance is the domain of the feed the post was read from.
	Instance string

	// Account is the author as user@domain.
	Account string

	// Language is the post's ISO 639 code, or "??" when the server did not
	// detect one.
	Language string

	Links []linkcheck.Link

	// Preview is the start of the post as plain text.
	Preview string
}

func newResult(status *mastodon.Status, instance string, links []linkcheck.Link) Result {
	lang := status.Language
	if lang == "" {
		lang = unknownLanguage
	}

	return Result{
		StatusID: status.ID,
		URL:      status.URL,
		Instance: instance,
		Account:  linkcheck.FullAcct(status.Account.Acct, instance),
		Language: lang,
		Links:    links,
		Preview:  preview(status.Content),
	}
}

// preview strips markup from content, collapses white space and truncates
// the text to maxPreviewRunes runes.
func preview(content string) string {
	policy := policyPool.Get().(*bluemonday.Policy)
	defer policyPool.Put(policy)

	text := policy.Sanitize(blockBreakRegex.ReplaceAllString(content, " "))
	text = strings.TrimSpace(repeatedSpaceRegex.ReplaceAllString(html.UnescapeString(text), " "))

	if utf8.RuneCountInString(text) <= maxPreviewRunes {
		return text
	}

	runes := []rune(text)

	return strings.TrimSpace(string(runes[:maxPreviewRunes])) + "…"
}
