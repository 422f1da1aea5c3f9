package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ccollins476ad/slurp/download"
	"github.com/ccollins476ad/slurp/media"
	"github.com/ccollins476ad/slurp/media/fallback"
	"github.com/ccollins476ad/slurp/media/gfycat"
	"github.com/ccollins476ad/slurp/media/imgur"
	"github.com/ccollins476ad/slurp/reddit"
)

// site fakes the internet: every request, whatever its host, is served by a
// single test server whose handlers are keyed by "host/path".
type site struct {
	srv      *httptest.Server
	handlers map[string]http.HandlerFunc
	down     map[string]bool

	mtx      sync.Mutex
	requests []string // "METHOD url"
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{
		handlers: map[string]http.HandlerFunc{},
		down:     map[string]bool{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := s.handlers[r.Host+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *site) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mtx.Lock()
	s.requests = append(s.requests, req.Method+" "+req.URL.String())
	s.mtx.Unlock()

	if s.down[req.URL.Hostname()] {
		return nil, fmt.Errorf("dial tcp: lookup %s: no such host", req.URL.Hostname())
	}

	out := req.Clone(req.Context())
	out.Host = req.URL.Host
	out.URL.Scheme = "http"
	out.URL.Host = s.srv.Listener.Addr().String()
	return http.DefaultTransport.RoundTrip(out)
}

func (s *site) client() *http.Client {
	return &http.Client{Transport: s, Timeout: 5 * time.Second}
}

func (s *site) count(method string) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	n := 0
	for _, r := range s.requests {
		if strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

func (s *site) serve(hostPath string, contentType string, body string) {
	s.handlers[hostPath] = func(w http.ResponseWriter, r *http.Request) {
		if contentType == "" {
			w.Header()["Content-Type"] = nil
		} else {
			w.Header().Set("Content-Type", contentType)
		}
		w.Write([]byte(body))
	}
}

func (s *site) redirect(hostPath string, location string) {
	s.handlers[hostPath] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", location)
		w.WriteHeader(http.StatusMovedPermanently)
	}
}

func newProcessor(s *site, dir string) *Processor {
	hc := s.client()
	chain := media.Chain{
		imgur.NewResolver(hc, ""),
		gfycat.NewResolver(hc),
		fallback.NewResolver(),
	}
	return NewProcessor(hc, chain, download.NewFetcher(dir, hc), 0)
}

func testPost(u string) *reddit.Post {
	return &reddit.Post{
		Title:   "my cat",
		Author:  "alice",
		Created: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		URL:     u,
	}
}

func TestProcess_ImgurDirect(t *testing.T) {
	s := newSite(t)
	s.serve("imgur.com/abc123", "text/html; charset=utf-8", "<html>imgur page</html>")
	payload := strings.Repeat("J", 4096)
	s.serve("i.imgur.com/abc123.jpg", "image/jpeg", payload)

	dir := t.TempDir()
	pr := newProcessor(s, dir)
	p := testPost("https://imgur.com/abc123")

	out, err := pr.Process(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.URL != "https://i.imgur.com/abc123.jpg" || p.URL != out.URL {
		t.Errorf("url = %q (post %q), want i.imgur.com rewrite", out.URL, p.URL)
	}
	if out.Class != media.TerminalImage {
		t.Errorf("class = %v", out.Class)
	}
	want := "2024-05-06T07:08:09_alice_my_cat.jpg"
	if out.Record.Filename != want {
		t.Errorf("filename = %q, want %q", out.Record.Filename, want)
	}
	if out.Record.Bytes != int64(len(payload)) {
		t.Errorf("bytes = %d, want %d", out.Record.Bytes, len(payload))
	}

	b, err := os.ReadFile(filepath.Join(dir, want))
	if err != nil || string(b) != payload {
		t.Errorf("file content mismatch: err=%v", err)
	}
}

func TestProcess_RedirectsAreTransitive(t *testing.T) {
	s := newSite(t)
	s.redirect("a.test/start", "https://b.test/middle")
	s.redirect("b.test/middle", "/final.png")
	s.serve("b.test/final.png", "image/png", "PNGDATA")

	viaRedirect := t.TempDir()
	out1, err := newProcessor(s, viaRedirect).Process(context.Background(), testPost("https://a.test/start"))
	if err != nil {
		t.Fatalf("redirect chain: unexpected error: %v", err)
	}
	if out1.Hops != 2 {
		t.Errorf("hops = %d, want 2", out1.Hops)
	}

	direct := t.TempDir()
	out2, err := newProcessor(s, direct).Process(context.Background(), testPost("https://b.test/final.png"))
	if err != nil {
		t.Fatalf("direct: unexpected error: %v", err)
	}

	if out1.URL != out2.URL || out1.Record.Filename != out2.Record.Filename {
		t.Errorf("outcomes differ: %+v vs %+v", out1, out2)
	}
	b1, _ := os.ReadFile(filepath.Join(viaRedirect, out1.Record.Filename))
	b2, _ := os.ReadFile(filepath.Join(direct, out2.Record.Filename))
	if string(b1) != "PNGDATA" || string(b1) != string(b2) {
		t.Errorf("file contents differ: %q vs %q", b1, b2)
	}
}

func TestProcess_GfycatPrefersWebm(t *testing.T) {
	s := newSite(t)
	s.serve("gfycat.com/HappyDog", "text/html;charset=utf-8", `<html><body>
<main class="component-container"><video>
  <source type="video/mp4" src="https://zippy.gfycat.com/HappyDog.mp4">
  <source type="video/webm" src="https://zippy.gfycat.com/HappyDog.webm">
</video></main></body></html>`)
	s.serve("zippy.gfycat.com/HappyDog.webm", "video/webm", "WEBM")
	s.serve("zippy.gfycat.com/HappyDog.mp4", "video/mp4", "MP4")

	dir := t.TempDir()
	out, err := newProcessor(s, dir).Process(context.Background(), testPost("https://gfycat.com/HappyDog"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "https://zippy.gfycat.com/HappyDog.webm" {
		t.Errorf("url = %q, want webm source", out.URL)
	}
	if !strings.HasSuffix(out.Record.Filename, ".webm") {
		t.Errorf("filename = %q, want .webm", out.Record.Filename)
	}
}

func TestProcess_StatusFallback(t *testing.T) {
	s := newSite(t)
	s.handlers["gfycat.com/HappyDog"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	s.serve("giant.gfycat.com/HappyDog.webm", "video/webm", "WEBM")

	out, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://gfycat.com/HappyDog"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.URL != "https://giant.gfycat.com/HappyDog.webm" {
		t.Errorf("url = %q", out.URL)
	}
}

func TestProcess_StatusError(t *testing.T) {
	s := newSite(t)

	_, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://a.test/missing"))
	var se *download.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 StatusError", err)
	}
}

func TestProcess_UnknownContentType(t *testing.T) {
	s := newSite(t)
	s.serve("a.test/doc.pdf", "application/pdf", "%PDF")

	dir := t.TempDir()
	_, err := newProcessor(s, dir).Process(context.Background(), testPost("https://a.test/doc.pdf"))
	if !errors.Is(err, ErrUnknownContentType) {
		t.Fatalf("err = %v, want ErrUnknownContentType", err)
	}
	if s.count(http.MethodGet) != 0 {
		t.Errorf("GET requests = %d, want 0", s.count(http.MethodGet))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("unexpected files: %v", entries)
	}
}

func TestProcess_MissingContentType(t *testing.T) {
	s := newSite(t)
	s.serve("a.test/blob", "", "")

	_, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://a.test/blob"))
	if !errors.Is(err, ErrMissingContentType) {
		t.Fatalf("err = %v, want ErrMissingContentType", err)
	}
}

func TestProcess_ConnectionError(t *testing.T) {
	s := newSite(t)
	s.down["unreachable.test"] = true

	_, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://unreachable.test/x.jpg"))
	if !errors.Is(err, download.ErrConnection) {
		t.Fatalf("err = %v, want ErrConnection", err)
	}
	if !strings.Contains(err.Error(), "unreachable.test") {
		t.Errorf("err = %v, want host in message", err)
	}
	if n := len(s.requests); n != 1 {
		t.Errorf("requests = %d, want 1 (no retry)", n)
	}
}

func TestProcess_RedirectLoop(t *testing.T) {
	s := newSite(t)
	s.redirect("a.test/ping", "/pong")
	s.redirect("a.test/pong", "/ping")

	_, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://a.test/ping"))
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("err = %v, want ErrTooManyRedirects", err)
	}
	if n := s.count(http.MethodHead); n != DefaultMaxHops+1 {
		t.Errorf("HEAD requests = %d, want %d", n, DefaultMaxHops+1)
	}
}

// mapResolver resolves pages by looking up the current url in a fixed table.
type mapResolver map[string]string

func (m mapResolver) Name() string {
	return "map"
}

func (m mapResolver) Match(u string) bool {
	_, ok := m[u]
	return ok
}

func (m mapResolver) Resolve(ctx context.Context, p *reddit.Post) (string, error) {
	return m[p.URL], nil
}

func newMapProcessor(s *site, dir string, m mapResolver) *Processor {
	hc := s.client()
	return NewProcessor(hc, media.Chain{m}, download.NewFetcher(dir, hc), 0)
}

func TestProcess_ResolvesToItself(t *testing.T) {
	s := newSite(t)
	s.serve("page.test/self", "text/html; charset=utf-8", "<html></html>")

	m := mapResolver{"https://page.test/self": "https://page.test/self"}
	_, err := newMapProcessor(s, t.TempDir(), m).Process(context.Background(), testPost("https://page.test/self"))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
	if !strings.Contains(err.Error(), "resolved to itself") {
		t.Errorf("err = %v, want self resolution", err)
	}
	if n := s.count(http.MethodHead); n != 1 {
		t.Errorf("HEAD requests = %d, want 1", n)
	}
}

func TestProcess_ResolutionLoop(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *site)
		m     mapResolver
	}{
		{
			name: "resolve only",
			setup: func(s *site) {
				s.serve("page.test/ping", "text/html; charset=utf-8", "<html></html>")
				s.serve("page.test/pong", "text/html; charset=utf-8", "<html></html>")
			},
			m: mapResolver{
				"https://page.test/ping": "https://page.test/pong",
				"https://page.test/pong": "https://page.test/ping",
			},
		},
		{
			name: "redirect then resolve",
			setup: func(s *site) {
				s.redirect("page.test/ping", "https://page.test/pong")
				s.serve("page.test/pong", "text/html; charset=utf-8", "<html></html>")
			},
			m: mapResolver{
				"https://page.test/pong": "https://page.test/ping",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSite(t)
			tt.setup(s)

			_, err := newMapProcessor(s, t.TempDir(), tt.m).Process(context.Background(), testPost("https://page.test/ping"))
			if !errors.Is(err, ErrTooManyRedirects) {
				t.Fatalf("err = %v, want ErrTooManyRedirects", err)
			}
			if n := s.count(http.MethodHead); n != DefaultMaxHops+1 {
				t.Errorf("HEAD requests = %d, want %d", n, DefaultMaxHops+1)
			}
			if n := s.count(http.MethodGet); n != 0 {
				t.Errorf("GET requests = %d, want 0", n)
			}
		})
	}
}

func TestProcess_ResolutionFailure(t *testing.T) {
	s := newSite(t)
	s.serve("blog.test/post", "text/html; charset=utf-8", "<html>just words</html>")

	_, err := newProcessor(s, t.TempDir()).Process(context.Background(), testPost("https://blog.test/post"))
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
	if !errors.Is(err, media.ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved cause", err)
	}
}

func TestProcess_MetadataFallback(t *testing.T) {
	s := newSite(t)
	s.redirect("v.redd.it/abc", "https://www.reddit.com/r/x/comments/abc/")
	s.serve("www.reddit.com/r/x/comments/abc/", "text/html; charset=utf-8", "<html></html>")
	s.serve("v.redd.it/abc/DASH_720.mp4", "video/mp4", "MP4DATA")

	p := testPost("https://v.redd.it/abc")
	p.Media = &reddit.Media{RedditVideo: &reddit.Video{FallbackURL: "https://v.redd.it/abc/DASH_720.mp4"}}

	out, err := newProcessor(s, t.TempDir()).Process(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Class != media.TerminalVideo || !strings.HasSuffix(out.Record.Filename, ".mp4") {
		t.Errorf("outcome = %+v", out)
	}
}

func TestProcess_AlreadyHave(t *testing.T) {
	s := newSite(t)
	s.serve("i.imgur.com/abc123.jpg", "image/jpeg", "JPEG")

	dir := t.TempDir()
	existing := filepath.Join(dir, "2024-05-06T07:08:09_alice_my_cat.jpg")
	if err := os.WriteFile(existing, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := newProcessor(s, dir).Process(context.Background(), testPost("https://i.imgur.com/abc123.jpg"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Record.Skipped {
		t.Error("expected skip")
	}
	if n := s.count(http.MethodGet); n != 0 {
		t.Errorf("GET requests = %d, want 0", n)
	}
}

func TestProcess_Canceled(t *testing.T) {
	s := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newProcessor(s, t.TempDir()).Process(ctx, testPost("https://a.test/x.jpg"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, download.ErrConnection) {
		t.Error("cancellation should not be reported as a connection error")
	}
}
