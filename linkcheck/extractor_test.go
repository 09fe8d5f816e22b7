package linkcheck_test

import (
	"context"
	"net/http"

	"github.com/golang/mock/gomock"
	check "gopkg.in/check.v1"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/linkcheck/mocks"
	"github.com/mycok/mastolinks/mastodon"
)

var _ = check.Suite(new(extractorTestSuite))

type extractorTestSuite struct {
	ctrl     *gomock.Controller
	resolver *mocks.MockLinkResolver
	recorder *recordingRecorder
	ex       *linkcheck.Extractor
}

func (s *extractorTestSuite) SetUpTest(c *check.C) {
	s.ctrl = gomock.NewController(c)
	s.resolver = mocks.NewMockLinkResolver(s.ctrl)
	s.recorder = new(recordingRecorder)

	ex, err := linkcheck.NewExtractor(linkcheck.Config{
		Instance:  "mastodon.social",
		Blocklist: linkcheck.NewBlocklist("spam@mastodon.social"),
		Resolver:  s.resolver,
		Recorder:  s.recorder,
	})
	c.Assert(err, check.IsNil)

	s.ex = ex
}

func (s *extractorTestSuite) TearDownTest(c *check.C) {
	s.ctrl.Finish()
}

func (s *extractorTestSuite) TestBlockedAccountShortCircuits(c *check.C) {
	status := &mastodon.Status{
		ID:      "1",
		Account: mastodon.Account{Acct: "spam"},
		Content: `<p><a href="https://news.example/a">a</a></p>`,
	}

	// No Resolve expectation: any probe fails the test.
	links, err := s.ex.Extract(context.TODO(), status)
	c.Assert(err, check.Equals, linkcheck.ErrBlockedAccount)
	c.Assert(links, check.HasLen, 0)
	c.Assert(s.recorder.links, check.HasLen, 0)
}

func (s *extractorTestSuite) TestFullFlow(c *check.C) {
	status := &mastodon.Status{
		ID:      "2",
		Account: mastodon.Account{Acct: "alice@example.social"},
		Content: `<p>` +
			`<a href="https://example.social/tags/music">#music</a> ` +
			`<a href="https://bit.ly/xyz">story</a> ` +
			`<a href="https://t.co/img">pic</a> ` +
			`<a href="https://example.com/plain?keep=1">plain</a>` +
			`</p>`,
		MediaAttachments: []mastodon.MediaAttachment{
			{URL: "https://cdn.example/abc123"},
		},
	}

	s.resolver.EXPECT().Resolve(gomock.Any(), []linkcheck.Link{
		{Href: "https://bit.ly/xyz", Text: "story", HrefCanonical: "https://bit.ly/xyz"},
		{Href: "https://t.co/img", Text: "pic", HrefCanonical: "https://t.co/img"},
		{Href: "https://example.com/plain?keep=1", Text: "plain", HrefCanonical: "https://example.com/plain?keep=1"},
	}).DoAndReturn(func(_ context.Context, links []linkcheck.Link) []linkcheck.Link {
		out := append([]linkcheck.Link(nil), links...)

		out[0].Status = http.StatusMovedPermanently
		out[0].HrefCanonical = "https://www.nytimes.com/2020/01/01/a.html?smid=tw&utm_source=x&keep=1"

		// A shortener that expands to the post's own media.
		out[1].Status = http.StatusFound
		out[1].HrefCanonical = "https://cdn.example/abc123.jpg"

		return out
	})

	links, err := s.ex.Extract(context.TODO(), status)
	c.Assert(err, check.IsNil)
	c.Assert(links, check.HasLen, 2)

	c.Assert(links[0].Href, check.Equals, "https://bit.ly/xyz")
	c.Assert(links[0].Status, check.Equals, http.StatusMovedPermanently)
	c.Assert(links[0].HrefClean, check.Equals, "https://www.nytimes.com/2020/01/01/a.html?keep=1")

	c.Assert(links[1].Href, check.Equals, "https://example.com/plain?keep=1")
	c.Assert(links[1].HrefClean, check.Equals, links[1].HrefCanonical)

	c.Assert(s.recorder.links[linkcheck.StageExtracted], check.Equals, 4)
	c.Assert(s.recorder.links[linkcheck.StageSelfReference], check.Equals, 2)
	c.Assert(s.recorder.links[linkcheck.StageReported], check.Equals, 2)
}

func (s *extractorTestSuite) TestAllLinksSelfReferentialSkipsResolver(c *check.C) {
	status := &mastodon.Status{
		ID:      "3",
		Account: mastodon.Account{Acct: "alice@example.social"},
		Content: `<a href="https://example.social/tags/go">#go</a>`,
	}

	links, err := s.ex.Extract(context.TODO(), status)
	c.Assert(err, check.IsNil)
	c.Assert(links, check.HasLen, 0)
}

func (s *extractorTestSuite) TestUnparsableDestinationIsKept(c *check.C) {
	status := &mastodon.Status{
		ID:      "4",
		Account: mastodon.Account{Acct: "alice"},
		Content: `<a href="http://[::1">broken</a>`,
	}

	s.resolver.EXPECT().Resolve(gomock.Any(), gomock.Len(1)).DoAndReturn(
		func(_ context.Context, links []linkcheck.Link) []linkcheck.Link { return links },
	)

	links, err := s.ex.Extract(context.TODO(), status)
	c.Assert(err, check.IsNil)
	c.Assert(links, check.HasLen, 1)
	c.Assert(links[0].HrefClean, check.Equals, "http://[::1")
}

func (s *extractorTestSuite) TestNilStatus(c *check.C) {
	_, err := s.ex.Extract(context.TODO(), nil)
	c.Assert(err, check.NotNil)
}

func (s *extractorTestSuite) TestConfigValidation(c *check.C) {
	_, err := linkcheck.NewExtractor(linkcheck.Config{})
	c.Assert(err, check.ErrorMatches, "(?s).*instance not provided.*link resolver not provided.*")
}
