package linkcheck

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnparsableURL is returned when a link destination is not a valid URL.
var ErrUnparsableURL = errors.New("unparsable URL")

// FilterTable lists the tracking query parameters to strip. Domains maps a
// registrable domain (e.g. "nytimes.com") to parameters that only apply to
// it and its subdomains; Default applies to every URL.
type FilterTable struct {
	Domains map[string][]string
	Default []string
}

// DefaultFilterTable returns the built-in rule set.
func DefaultFilterTable() FilterTable {
	return FilterTable{
		Domains: map[string][]string{
			"nytimes.com":        {"smid", "smtyp"},
			"youtube.com":        {"app", "feature"},
			"thehill.com":        {"userid"},
			"twitter.com":        {"s"},
			"reuters.com":        {"feedtype", "feedname"},
			"zeit.de":            {"wt_zmc"},
			"washingtonpost.com": {"noredirect"},
			"dw.com":             {"maca"},
		},
		Default: []string{
			"utm_source", "utm_medium", "utm_term", "utm_campaign",
			"utm_content", "utm_name", "utm_cid", "utm_reader", "utm_viz_id",
			"utm_pubreferrer", "utm_swu", "utm_sq", "utm_int",
			"igshid", "fbclid", "gclid",
			"ocid", "ncid", "bcid", "bhid", "recid", "icid", "ito",
			"wkey", "wemail", "wtmc", "wt_mc", "nr_email_referer",
			"ref", "spm", "ftag", "recip",
			"ktm_source", "mkt_toc", "mkt_tok", "mc_cid", "mc_eid",
			"ns_source", "ns_mchannel", "ns_campaign", "ns_linkname", "ns_fee",
			"sr_share", "vero_conv", "vero_id",
			"_hsenc", "_hsmi", "hsctatracking",
			"__twitter_impression", "newsletterad", "sessid",
		},
	}
}

type paramSet map[string]struct{}

func newParamSet(names []string) paramSet {
	set := make(paramSet, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = struct{}{}
	}

	return set
}

// Canonicalizer strips tracking parameters from resolved link destinations.
// It is immutable once built and safe for concurrent use.
type Canonicalizer struct {
	domains  map[string]paramSet
	defaults paramSet
}

// NewCanonicalizer compiles table into a Canonicalizer. Domain keys and
// parameter names are matched case-insensitively.
func NewCanonicalizer(table FilterTable) *Canonicalizer {
	domains := make(map[string]paramSet, len(table.Domains))
	for domain, names := range table.Domains {
		domain = strings.ToLower(domain)
		set := newParamSet(names)

		// Keys differing only by case merge into one entry.
		for name := range domains[domain] {
			set[name] = struct{}{}
		}
		domains[domain] = set
	}

	return &Canonicalizer{
		domains:  domains,
		defaults: newParamSet(table.Default),
	}
}

// Clean populates link.HrefClean from link.HrefCanonical.
//
// Every dot-separated suffix of the hostname with at least two labels is
// looked up in the domain table, shortest first, and all matching rules
// apply. The default parameters are removed afterwards. Surviving
// parameters keep their original order and encoding; a URL with nothing to
// remove is returned byte for byte.
//
// If HrefCanonical cannot be parsed, the link is passed through with
// HrefClean = HrefCanonical and an error wrapping ErrUnparsableURL.
func (c *Canonicalizer) Clean(link Link) (Link, error) {
	link.HrefClean = link.HrefCanonical

	u, err := url.Parse(link.HrefCanonical)
	if err != nil {
		return link, fmt.Errorf("%w: %v", ErrUnparsableURL, err)
	}

	if u.RawQuery == "" {
		return link, nil
	}

	sets := c.matchingSets(u.Hostname())

	pairs := strings.Split(u.RawQuery, "&")
	kept := pairs[:0:0]
	for _, pair := range pairs {
		if !isTracked(queryKey(pair), sets) {
			kept = append(kept, pair)
		}
	}

	if len(kept) == len(pairs) {
		return link, nil
	}

	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	link.HrefClean = u.String()

	return link, nil
}

// matchingSets returns the parameter sets that apply to hostname: one per
// matching domain suffix, followed by the defaults.
func (c *Canonicalizer) matchingSets(hostname string) []paramSet {
	labels := strings.Split(strings.ToLower(hostname), ".")

	var sets []paramSet
	for i := len(labels) - 2; i >= 0; i-- {
		if set, ok := c.domains[strings.Join(labels[i:], ".")]; ok {
			sets = append(sets, set)
		}
	}

	return append(sets, c.defaults)
}

func isTracked(key string, sets []paramSet) bool {
	key = strings.ToLower(key)
	for _, set := range sets {
		if _, ok := set[key]; ok {
			return true
		}
	}

	return false
}

// queryKey returns the decoded name of a raw key=value query pair.
func queryKey(pair string) string {
	key, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(key); err == nil {
		return unescaped
	}

	return key
}
