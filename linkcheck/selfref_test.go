package linkcheck_test

import (
	check "gopkg.in/check.v1"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/mastodon"
)

var _ = check.Suite(new(classifierTestSuite))

type classifierTestSuite struct {
	status *mastodon.Status
}

func (s *classifierTestSuite) SetUpTest(c *check.C) {
	s.status = &mastodon.Status{
		ID:      "1",
		Account: mastodon.Account{Acct: "alice@example.social"},
		Tags: []mastodon.Tag{
			{Name: "golang", URL: "https://other.example/tags/golang"},
		},
		Mentions: []mastodon.Mention{
			{Acct: "bob@other.example", URL: "https://other.example/@bob"},
		},
		MediaAttachments: []mastodon.MediaAttachment{
			{PreviewURL: "https://cdn.example/abc123"},
		},
	}
}

func (s *classifierTestSuite) TestAuthorDomainTagPage(c *check.C) {
	cl := linkcheck.NewClassifier(linkcheck.MediaContains)

	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/tags/music"), check.Equals, true)
	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/tag/music"), check.Equals, true)
	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/search?tag=music"), check.Equals, true)
	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/explore?q=1&tags=a"), check.Equals, true)

	// Not a tag page, or a tag page on someone else's domain.
	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/@alice/1"), check.Equals, false)
	c.Assert(cl.IsSelfReferential(s.status, "https://unrelated.example/tags/music"), check.Equals, false)
}

func (s *classifierTestSuite) TestLocalAuthorSkipsDomainRule(c *check.C) {
	s.status.Account.Acct = "alice"
	cl := linkcheck.NewClassifier(linkcheck.MediaContains)

	c.Assert(cl.IsSelfReferential(s.status, "https://example.social/tags/music"), check.Equals, false)
}

func (s *classifierTestSuite) TestDeclaredTagsAndMentions(c *check.C) {
	cl := linkcheck.NewClassifier(linkcheck.MediaContains)

	c.Assert(cl.IsSelfReferential(s.status, "https://other.example/tags/golang"), check.Equals, true)
	c.Assert(cl.IsSelfReferential(s.status, "https://other.example/@bob"), check.Equals, true)
	c.Assert(cl.IsSelfReferential(s.status, "https://other.example/@bob/2"), check.Equals, false)
}

func (s *classifierTestSuite) TestMediaMatching(c *check.C) {
	contains := linkcheck.NewClassifier(linkcheck.MediaContains)
	c.Assert(contains.IsSelfReferential(s.status, "https://cdn.example/abc123.jpg"), check.Equals, true)
	c.Assert(contains.IsSelfReferential(s.status, "https://cdn.example/abc123"), check.Equals, true)

	equals := linkcheck.NewClassifier(linkcheck.MediaEquals)
	c.Assert(equals.IsSelfReferential(s.status, "https://cdn.example/abc123.jpg"), check.Equals, false)
	c.Assert(equals.IsSelfReferential(s.status, "https://cdn.example/abc123"), check.Equals, true)
}

func (s *classifierTestSuite) TestEmptyMediaFieldsNeverMatch(c *check.C) {
	s.status.MediaAttachments = []mastodon.MediaAttachment{{ID: "m1"}}
	cl := linkcheck.NewClassifier(linkcheck.MediaContains)

	c.Assert(cl.IsSelfReferential(s.status, "https://news.example/story"), check.Equals, false)
}
