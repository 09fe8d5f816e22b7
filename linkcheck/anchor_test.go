package linkcheck_test

import (
	check "gopkg.in/check.v1"

	"github.com/mycok/mastolinks/linkcheck"
)

var _ = check.Suite(new(anchorTestSuite))

type anchorTestSuite struct{}

func (s *anchorTestSuite) TestDocumentOrderAndSkippedHrefs(c *check.C) {
	markup := `<p>See <a href="https://a.example/x">A <b>bold</b> claim</a>,
<a href="">empty</a> <a>bare</a> and <a href="/relative">rel</a>.</p>
<div><p><a href="mailto:me@b.example">mail</a></p></div>`

	anchors := linkcheck.ExtractAnchors(markup)
	c.Assert(anchors, check.DeepEquals, []linkcheck.Anchor{
		{Href: "https://a.example/x", Text: "A bold claim"},
		{Href: "/relative", Text: "rel"},
		{Href: "mailto:me@b.example", Text: "mail"},
	})
}

func (s *anchorTestSuite) TestMastodonHashtagMarkup(c *check.C) {
	markup := `<p>Listening <a href="https://example.social/tags/music" class="mention hashtag" rel="tag">#<span>music</span></a> ` +
		`<a href="https://news.example/story" rel="nofollow noopener" target="_blank">` +
		`<span class="invisible">https://</span><span class="">news.example/story</span></a></p>`

	anchors := linkcheck.ExtractAnchors(markup)
	c.Assert(anchors, check.HasLen, 2)
	c.Assert(anchors[0].Text, check.Equals, "#music")
	c.Assert(anchors[1], check.DeepEquals, linkcheck.Anchor{
		Href: "https://news.example/story",
		Text: "https://news.example/story",
	})
}

func (s *anchorTestSuite) TestMalformedMarkup(c *check.C) {
	anchors := linkcheck.ExtractAnchors(`<p><a href="https://x.example/1">unclosed <em>tags`)
	c.Assert(anchors, check.DeepEquals, []linkcheck.Anchor{
		{Href: "https://x.example/1", Text: "unclosed tags"},
	})
}

func (s *anchorTestSuite) TestNoAnchors(c *check.C) {
	c.Assert(linkcheck.ExtractAnchors(""), check.HasLen, 0)
	c.Assert(linkcheck.ExtractAnchors("<p>just text</p>"), check.HasLen, 0)
}
