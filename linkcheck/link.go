package linkcheck

import "fmt"

// Anchor is a hyperlink found in a status' rendered content.
type Anchor struct {
	// Href is the destination exactly as written in the markup. It may be
	// relative, malformed or use a non-HTTP scheme.
	Href string

	// Text is the concatenation of every text node below the anchor.
	Text string
}

// ProbeKind tags the outcome of a redirect probe.
type ProbeKind int

const (
	// ProbeNotRedirected means the probe completed and the final URL is the
	// probed URL.
	ProbeNotRedirected ProbeKind = iota

	// ProbeRedirected means the probe completed at a different URL.
	ProbeRedirected

	// ProbeFailed means no final URL could be determined.
	ProbeFailed
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeNotRedirected:
		return "not_redirected"
	case ProbeRedirected:
		return "redirected"
	case ProbeFailed:
		return "failed"
	default:
		return fmt.Sprintf("ProbeKind(%d)", int(k))
	}
}

// ProbeOutcome is the result of a single redirect probe.
type ProbeOutcome struct {
	Kind ProbeKind

	// Status is the HTTP status code of the final response, when there was
	// one. It is kept for both redirected and not redirected probes.
	Status int

	// URL is the final URL of a redirected probe.
	URL string

	// Err explains a failed probe.
	Err error
}

// Link is an anchor threaded through the pipeline. Every stage returns an
// updated copy; a Link is never shared between goroutines.
type Link struct {
	Href string
	Text string

	// Status is the probe's HTTP status code if, and only if, the probe was
	// redirected. Otherwise it is 0.
	Status int

	// HrefCanonical is the destination after following redirects. It equals
	// Href when the probe was not redirected or failed.
	HrefCanonical string

	// HrefClean is HrefCanonical with tracking query parameters removed.
	HrefClean string

	// Probe carries the tagged outcome of the redirect probe.
	Probe ProbeOutcome
}

func linkFromAnchor(a Anchor) Link {
	return Link{Href: a.Href, Text: a.Text, HrefCanonical: a.Href}
}

// withProbe applies a probe outcome. Only a redirect changes Status and
// HrefCanonical; both other outcomes collapse to Status=0, HrefCanonical=Href.
func (l Link) withProbe(o ProbeOutcome) Link {
	l.Probe = o
	l.Status = 0
	l.HrefCanonical = l.Href

	if o.Kind == ProbeRedirected {
		l.Status = o.Status
		l.HrefCanonical = o.URL
	}

	return l
}
