package linkcheck_test

import (
	check "gopkg.in/check.v1"

	"github.com/mycok/mastolinks/linkcheck"
)

var _ = check.Suite(new(blocklistTestSuite))

type blocklistTestSuite struct{}

func (s *blocklistTestSuite) TestFullAcct(c *check.C) {
	c.Assert(linkcheck.FullAcct("alice", "mastodon.social"), check.Equals, "alice@mastodon.social")
	c.Assert(linkcheck.FullAcct("bob@other.example", "mastodon.social"), check.Equals, "bob@other.example")
}

func (s *blocklistTestSuite) TestBlocks(c *check.C) {
	bl := linkcheck.NewBlocklist("spam@mastodon.social", "bot@other.example")
	c.Assert(bl.Len(), check.Equals, 2)

	c.Assert(bl.Blocks("spam", "mastodon.social"), check.Equals, true)
	c.Assert(bl.Blocks("bot@other.example", "mastodon.social"), check.Equals, true)
	c.Assert(bl.Blocks("spam", "other.example"), check.Equals, false)
	c.Assert(bl.Blocks("Spam", "mastodon.social"), check.Equals, false)
}

func (s *blocklistTestSuite) TestNilBlocklistBlocksNobody(c *check.C) {
	var bl *linkcheck.Blocklist
	c.Assert(bl.Blocks("spam", "mastodon.social"), check.Equals, false)
	c.Assert(bl.Len(), check.Equals, 0)
}
