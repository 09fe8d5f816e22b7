package linkcheck_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/mock/gomock"
	check "gopkg.in/check.v1"

	"github.com/mycok/mastolinks/linkcheck"
	"github.com/mycok/mastolinks/linkcheck/mocks"
	"github.com/mycok/mastolinks/linkcheck/privnet"
)

var _ = check.Suite(new(resolverTestSuite))

type resolverTestSuite struct {
	srv *httptest.Server

	// Requests that reached the fake metadata endpoint.
	metadataHits int32
}

func (s *resolverTestSuite) SetUpSuite(c *check.C) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		_, port, _ := net.SplitHostPort(r.Host)
		http.Redirect(w, r, "http://localhost:"+port+"/latest/meta-data", http.StatusFound)
	})
	mux.HandleFunc("/latest/meta-data", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.metadataHits, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		w.WriteHeader(http.StatusOK)
	})

	s.srv = httptest.NewServer(mux)
}

func (s *resolverTestSuite) TearDownSuite(c *check.C) {
	s.srv.Close()
}

func (s *resolverTestSuite) TestNoRedirect(c *check.C) {
	r := s.newResolver(c, linkcheck.ResolverConfig{})
	href := s.srv.URL + "/a"

	links := r.Resolve(context.TODO(), []linkcheck.Link{{Href: href, HrefCanonical: href}})
	c.Assert(links, check.HasLen, 1)
	c.Assert(links[0].Status, check.Equals, 0)
	c.Assert(links[0].HrefCanonical, check.Equals, href)
	c.Assert(links[0].Probe.Kind, check.Equals, linkcheck.ProbeNotRedirected)
}

func (s *resolverTestSuite) TestRedirectFollowedByClient(c *check.C) {
	r := s.newResolver(c, linkcheck.ResolverConfig{})

	links := r.Resolve(context.TODO(), []linkcheck.Link{{Href: s.srv.URL + "/old"}})
	c.Assert(links, check.HasLen, 1)
	c.Assert(links[0].Probe.Kind, check.Equals, linkcheck.ProbeRedirected)
	c.Assert(links[0].Status, check.Equals, http.StatusOK)
	c.Assert(links[0].HrefCanonical, check.Equals, s.srv.URL+"/new")
}

func (s *resolverTestSuite) TestRedirectStatusAndFinalURL(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		c.Check(req.Method, check.Equals, http.MethodHead)
		c.Check(req.URL.String(), check.Equals, "https://bit.ly/xyz")
		c.Check(req.Header.Get("User-Agent"), check.Equals, "test-agent")

		return makeResponse(http.StatusMovedPermanently, "https://news.example/full-story"), nil
	})

	r := s.newResolver(c, linkcheck.ResolverConfig{HTTPClient: doer, UserAgent: "test-agent"})

	links := r.Resolve(context.TODO(), []linkcheck.Link{{Href: "https://bit.ly/xyz", Text: "story"}})
	c.Assert(links, check.HasLen, 1)
	c.Assert(links[0].Status, check.Equals, http.StatusMovedPermanently)
	c.Assert(links[0].HrefCanonical, check.Equals, "https://news.example/full-story")
	c.Assert(links[0].Text, check.Equals, "story")
}

func (s *resolverTestSuite) TestTransportErrorCollapsesToHref(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection reset"))

	r := s.newResolver(c, linkcheck.ResolverConfig{HTTPClient: doer})

	links := r.Resolve(context.TODO(), []linkcheck.Link{{Href: "https://down.example/a"}})
	c.Assert(links[0].Probe.Kind, check.Equals, linkcheck.ProbeFailed)
	c.Assert(links[0].Probe.Err, check.ErrorMatches, "connection reset")
	c.Assert(links[0].Status, check.Equals, 0)
	c.Assert(links[0].HrefCanonical, check.Equals, "https://down.example/a")
}

func (s *resolverTestSuite) TestUnsupportedSchemeIsNotProbed(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	r := s.newResolver(c, linkcheck.ResolverConfig{HTTPClient: mocks.NewMockHTTPDoer(ctrl)})

	links := r.Resolve(context.TODO(), []linkcheck.Link{
		{Href: "mailto:someone@example.com"},
		{Href: "/relative/path"},
	})
	c.Assert(links, check.HasLen, 2)
	for _, link := range links {
		c.Assert(link.Probe.Kind, check.Equals, linkcheck.ProbeFailed)
		c.Assert(errors.Is(link.Probe.Err, linkcheck.ErrUnsupportedScheme), check.Equals, true)
		c.Assert(link.HrefCanonical, check.Equals, link.Href)
	}
}

func (s *resolverTestSuite) TestPrivateNetworkIsNotProbed(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	detector := mocks.NewMockPrivateNetworkDetector(ctrl)
	detector.EXPECT().IsNetworkPrivate(gomock.Any(), "169.254.169.254").Return(true, nil)
	detector.EXPECT().IsNetworkPrivate(gomock.Any(), "example.com").Return(false, nil)

	doer := mocks.NewMockHTTPDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		c.Check(req.URL.Host, check.Equals, "example.com:8443")

		return makeResponse(http.StatusOK, req.URL.String()), nil
	})

	r := s.newResolver(c, linkcheck.ResolverConfig{
		HTTPClient:             doer,
		PrivateNetworkDetector: detector,
		Workers:                1,
	})

	links := r.Resolve(context.TODO(), []linkcheck.Link{
		{Href: "http://169.254.169.254/latest/meta-data"},
		{Href: "https://example.com:8443/a"},
	})
	c.Assert(errors.Is(links[0].Probe.Err, linkcheck.ErrPrivateNetwork), check.Equals, true)
	c.Assert(links[1].Probe.Kind, check.Equals, linkcheck.ProbeNotRedirected)
}

func (s *resolverTestSuite) TestRedirectToPrivateHostIsNotFollowed(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	detector := mocks.NewMockPrivateNetworkDetector(ctrl)
	detector.EXPECT().IsNetworkPrivate(gomock.Any(), "127.0.0.1").Return(false, nil).Times(2)
	detector.EXPECT().IsNetworkPrivate(gomock.Any(), "localhost").Return(true, nil).Times(2)

	clients := map[string]linkcheck.HTTPDoer{
		"default client":  nil,
		"supplied client": &http.Client{Timeout: time.Second},
	}

	for name, client := range clients {
		r := s.newResolver(c, linkcheck.ResolverConfig{
			HTTPClient:             client,
			PrivateNetworkDetector: detector,
		})

		href := s.srv.URL + "/short"
		out := r.Resolve(context.TODO(), []linkcheck.Link{{Href: href}})
		c.Assert(out, check.HasLen, 1)
		c.Assert(out[0].Probe.Kind, check.Equals, linkcheck.ProbeFailed, check.Commentf(name))
		c.Assert(errors.Is(out[0].Probe.Err, linkcheck.ErrPrivateNetwork), check.Equals, true, check.Commentf(name))
		c.Assert(out[0].HrefCanonical, check.Equals, href)
	}

	c.Assert(atomic.LoadInt32(&s.metadataHits), check.Equals, int32(0))
}

func (s *resolverTestSuite) TestHostLookupBoundedByProbeTimeout(c *check.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	detector, err := privnet.NewDetector()
	c.Assert(err, check.IsNil)

	r := s.newResolver(c, linkcheck.ResolverConfig{
		HTTPClient:             mocks.NewMockHTTPDoer(ctrl),
		PrivateNetworkDetector: detector.WithResolver(hangingResolver{}),
		ProbeTimeout:           50 * time.Millisecond,
	})

	done := make(chan []linkcheck.Link, 1)
	go func() {
		done <- r.Resolve(context.TODO(), []linkcheck.Link{{Href: "https://slow-dns.example/"}})
	}()

	select {
	case out := <-done:
		c.Assert(out[0].Probe.Kind, check.Equals, linkcheck.ProbeFailed)
		c.Assert(errors.Is(out[0].Probe.Err, context.DeadlineExceeded), check.Equals, true)
	case <-time.After(2 * time.Second):
		c.Fatal("host lookup was not bounded by the probe timeout")
	}
}

func (s *resolverTestSuite) TestEveryLinkReturnedInOrder(c *check.C) {
	in := make([]linkcheck.Link, 23)
	for i := range in {
		in[i] = linkcheck.Link{Href: fmt.Sprintf("%s/page?i=%d", s.srv.URL, i)}
	}

	for _, workers := range []int{1, 2, 7, len(in), 64} {
		rec := new(recordingRecorder)
		r := s.newResolver(c, linkcheck.ResolverConfig{Workers: workers, Recorder: rec})

		out := r.Resolve(context.TODO(), in)
		c.Assert(out, check.HasLen, len(in), check.Commentf("workers: %d", workers))
		for i, link := range out {
			c.Assert(link.Href, check.Equals, in[i].Href)
			c.Assert(link.Probe.Kind, check.Equals, linkcheck.ProbeNotRedirected)
		}

		c.Assert(rec.probes[linkcheck.ProbeNotRedirected], check.Equals, len(in))
	}
}

func (s *resolverTestSuite) TestPanickingProbeIsIsolated(c *check.C) {
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "boom") {
			panic("boom")
		}

		return makeResponse(http.StatusOK, req.URL.String()), nil
	})

	r := s.newResolver(c, linkcheck.ResolverConfig{HTTPClient: doer, Workers: 2})

	out := r.Resolve(context.TODO(), []linkcheck.Link{
		{Href: "https://ok.example/1"},
		{Href: "https://ok.example/boom"},
		{Href: "https://ok.example/3"},
	})
	c.Assert(out, check.HasLen, 3)
	c.Assert(out[0].Probe.Kind, check.Equals, linkcheck.ProbeNotRedirected)
	c.Assert(errors.Is(out[1].Probe.Err, linkcheck.ErrProbePanic), check.Equals, true)
	c.Assert(out[1].HrefCanonical, check.Equals, "https://ok.example/boom")
	c.Assert(out[2].Probe.Kind, check.Equals, linkcheck.ProbeNotRedirected)
}

func (s *resolverTestSuite) TestProbeTimeout(c *check.C) {
	doer := doerFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()

		return nil, req.Context().Err()
	})

	r := s.newResolver(c, linkcheck.ResolverConfig{HTTPClient: doer, ProbeTimeout: 10 * time.Millisecond})

	out := r.Resolve(context.TODO(), []linkcheck.Link{{Href: "https://slow.example/"}})
	c.Assert(out[0].Probe.Kind, check.Equals, linkcheck.ProbeFailed)
	c.Assert(errors.Is(out[0].Probe.Err, context.DeadlineExceeded), check.Equals, true)
}

func (s *resolverTestSuite) TestCancelledContextFillsEveryLink(c *check.C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := s.newResolver(c, linkcheck.ResolverConfig{})

	out := r.Resolve(ctx, []linkcheck.Link{{Href: "https://a.example/"}, {Href: "https://b.example/"}})
	c.Assert(out, check.HasLen, 2)
	for i, link := range out {
		c.Assert(link.Href, check.Equals, []string{"https://a.example/", "https://b.example/"}[i])
		c.Assert(link.Probe.Kind, check.Equals, linkcheck.ProbeFailed)
		c.Assert(errors.Is(link.Probe.Err, context.Canceled), check.Equals, true)
	}
}

func (s *resolverTestSuite) TestEmptyInput(c *check.C) {
	r := s.newResolver(c, linkcheck.ResolverConfig{})
	c.Assert(r.Resolve(context.TODO(), nil), check.HasLen, 0)
}

func (s *resolverTestSuite) TestConfigValidation(c *check.C) {
	_, err := linkcheck.NewResolver(linkcheck.ResolverConfig{Workers: -1, ProbeTimeout: -time.Second})
	c.Assert(err, check.ErrorMatches, "(?s)resolver: config validation failed:.*probe workers.*probe timeout.*")
}

func (s *resolverTestSuite) newResolver(c *check.C, cfg linkcheck.ResolverConfig) *linkcheck.Resolver {
	r, err := linkcheck.NewResolver(cfg)
	c.Assert(err, check.IsNil)

	return r
}

// hangingResolver blocks every lookup until its context is done.
type hangingResolver struct{}

func (hangingResolver) LookupNetIP(ctx context.Context, _, _ string) ([]netip.Addr, error) {
	<-ctx.Done()

	return nil, ctx.Err()
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// makeResponse returns a response whose final request URL is finalURL, the
// way *http.Client reports it after following redirects.
func makeResponse(code int, finalURL string) *http.Response {
	final, _ := url.Parse(finalURL)

	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    &http.Request{Method: http.MethodHead, URL: final},
	}
}

type recordingRecorder struct {
	mu     sync.Mutex
	probes map[linkcheck.ProbeKind]int
	links  map[string]int
}

func (r *recordingRecorder) ObserveProbe(kind linkcheck.ProbeKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.probes == nil {
		r.probes = make(map[linkcheck.ProbeKind]int)
	}
	r.probes[kind]++
}

func (r *recordingRecorder) ObserveLinks(stage string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.links == nil {
		r.links = make(map[string]int)
	}
	r.links[stage] += n
}
