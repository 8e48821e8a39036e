package api

import (
	"bytes"
	"cmp"
	"compress/gzip"
	"fmt"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/feed"
	"github.com/icco/writing/app/observability"
	"github.com/icco/writing/app/origin"
	"github.com/icco/writing/app/site"
)

const testPublicURL = "https://writing.natwelch.com"

type fakeSource struct {
	posts []origin.Post
	err   error
}

func (f *fakeSource) RecentPosts(ctx context.Context) ([]origin.Post, error) {
	return f.posts, f.err
}

func (f *fakeSource) PostIDs(ctx context.Context) ([]origin.Post, error) {
	return f.posts, f.err
}

type fakeRenderer struct {
	status      int
	contentType string
	body        []byte
	calls       int
	page        string
	query       url.Values
	method      string
}

func (f *fakeRenderer) Render(w http.ResponseWriter, r *http.Request, page string, query url.Values) {
	f.calls++
	f.page = page
	f.query = query
	f.method = r.Method

	w.Header().Set("X-Powered-By", "Next.js")
	w.Header().Set("Content-Type", cmp.Or(f.contentType, "text/html; charset=utf-8"))
	w.WriteHeader(f.status)
	if f.body != nil {
		w.Write(f.body)
		return
	}
	io.WriteString(w, "rendered "+page)
}

type panickingRenderer struct{}

func (panickingRenderer) Render(w http.ResponseWriter, r *http.Request, page string, query url.Values) {
	panic("render failed")
}

type testServer struct {
	engine   *gin.Engine
	logs     *bytes.Buffer
	renderer *fakeRenderer
}

type testConfig struct {
	source        feed.PostSource
	graphqlOrigin string
	settings      *site.Settings
	staticDir     string
	opts          func(*ServerOptions)
}

func newTestServer(t *testing.T, tc testConfig) *testServer {
	t.Helper()

	if tc.source == nil {
		tc.source = &fakeSource{}
	}
	if tc.graphqlOrigin == "" {
		tc.graphqlOrigin = "https://graphql.natwelch.com"
	}
	if tc.settings == nil {
		tc.settings = site.Default(testPublicURL)
	}
	if tc.staticDir == "" {
		tc.staticDir = t.TempDir()
	}

	logs := &bytes.Buffer{}
	renderer := &fakeRenderer{status: http.StatusOK}

	opts := ServerOptions{
		GraphQLOrigin: tc.graphqlOrigin,
		GoogleProject: "icco-cloud",
		TrustProxy:    true,
		DevMode:       false,
		Logger:        observability.NewLogger(logs, slog.LevelInfo, false),
	}
	if tc.opts != nil {
		tc.opts(&opts)
	}

	builder := feed.NewBuilder(tc.source, tc.settings.Feed, testPublicURL)
	handler := NewHandler(builder, renderer, tc.settings, tc.staticDir)

	engine, err := NewServer(handler, opts)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	return &testServer{engine: engine, logs: logs, renderer: renderer}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) accessStatuses() []string {
	var statuses []string
	for _, line := range strings.Split(s.logs.String(), "\n") {
		if !strings.Contains(line, `"httpRequest"`) {
			continue
		}
		start := strings.Index(line, `"status":`) + len(`"status":`)
		end := start + strings.IndexAny(line[start:], ",}")
		statuses = append(statuses, line[start:end])
	}
	return statuses
}

func assertSingleAccessRecord(t *testing.T, s *testServer, status string) {
	t.Helper()
	statuses := s.accessStatuses()
	if len(statuses) != 1 {
		t.Fatalf("Expected exactly 1 access record, got %d: %s", len(statuses), s.logs.String())
	}
	if statuses[0] != status {
		t.Errorf("Expected access record status %s, got %s", status, statuses[0])
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig{})
	w := s.get("/healthz")

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Expected application/json, got %s", ct)
	}
	if body := w.Body.String(); body != `{"status":"ok"}` {
		t.Errorf("Expected status body, got %s", body)
	}
	if !strings.Contains(s.logs.String(), `"latency":{"seconds":0`) {
		t.Errorf("Expected latency in access record, got %s", s.logs.String())
	}
	assertSingleAccessRecord(t, s, "200")
}

func TestTagsRedirect(t *testing.T) {
	s := newTestServer(t, testConfig{})
	w := s.get("/tags/42")

	if w.Code != http.StatusFound {
		t.Errorf("Expected 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "/tag/42" {
		t.Errorf("Expected Location /tag/42, got %s", location)
	}
	if s.renderer.calls != 0 {
		t.Error("Expected renderer not to be called for a redirect")
	}
}

func TestRenderedPages(t *testing.T) {
	tests := []struct {
		path string
		page string
	}{
		{"/post/7", "/post"},
		{"/tag/go", "/tag"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s := newTestServer(t, testConfig{})
			w := s.get(tt.path)

			if w.Code != http.StatusOK {
				t.Errorf("Expected 200, got %d", w.Code)
			}
			if s.renderer.page != tt.page {
				t.Errorf("Expected page %s, got %s", tt.page, s.renderer.page)
			}
			if want := tt.path[len(tt.page)+1:]; s.renderer.query.Get("id") != want {
				t.Errorf("Expected id %s, got %s", want, s.renderer.query.Get("id"))
			}
		})
	}
}

func TestFeedRSS(t *testing.T) {
	s := newTestServer(t, testConfig{source: &fakeSource{posts: []origin.Post{
		{ID: "1", Title: "A", Datetime: "2024-01-02T03:04:05Z", Summary: "s"},
	}}})
	w := s.get("/feed.rss")

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Expected application/rss+xml, got %s", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "<link>https://writing.natwelch.com/post/1</link>") {
		t.Errorf("Expected post link in feed, got:\n%s", body)
	}
	if !strings.Contains(body, "<pubDate>Tue, 02 Jan 2024 03:04:05 GMT</pubDate>") {
		t.Errorf("Expected GMT pubDate in feed, got:\n%s", body)
	}
}

func TestFeedAtomOriginTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	s := newTestServer(t, testConfig{source: origin.NewClient(slow.URL, 50*time.Millisecond)})
	w := s.get("/feed.atom")

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/atom+xml") {
		t.Errorf("Expected application/atom+xml, got %s", ct)
	}
	if strings.Contains(w.Body.String(), "<entry>") {
		t.Error("Expected zero entries when the origin times out")
	}
	if !strings.Contains(s.logs.String(), `"severity":"ERROR"`) {
		t.Errorf("Expected an error-level log record, got: %s", s.logs.String())
	}
	assertSingleAccessRecord(t, s, "200")
}

func TestSitemapPrecedesStaticFile(t *testing.T) {
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "sitemap.xml"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	s := newTestServer(t, testConfig{
		source:    &fakeSource{posts: []origin.Post{{ID: "1"}}},
		staticDir: staticDir,
	})
	w := s.get("/sitemap.xml")

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Expected application/xml, got %s", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=6000" {
		t.Errorf("Expected sitemap cache hint, got %s", cc)
	}
	body := w.Body.String()
	if strings.Contains(body, "stale") {
		t.Error("Expected generated sitemap, got the static file")
	}
	if !strings.Contains(body, "<loc>https://writing.natwelch.com/post/1</loc>") {
		t.Errorf("Expected post URL in sitemap, got:\n%s", body)
	}
}

func TestGraphQLProxy(t *testing.T) {
	var gotHost, gotPath, gotCookie, gotAuth, gotConnection string
	originServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
		gotConnection = r.Header.Get("X-Hop")

		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.Header().Set("X-Powered-By", "Express")
		w.WriteHeader(http.StatusAccepted)
		w.Write(body)
	}))
	defer originServer.Close()

	s := newTestServer(t, testConfig{graphqlOrigin: originServer.URL})

	req := httptest.NewRequest(http.MethodPost, "http://writing.natwelch.com/graphql", strings.NewReader(`{"query":"{__typename}"}`))
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Connection", "X-Hop")
	req.Header.Set("X-Hop", "strip-me")
	w := s.do(req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected origin status 202, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"query":"{__typename}"}` {
		t.Errorf("Expected origin body byte-for-byte, got %s", body)
	}

	originURL, _ := url.Parse(originServer.URL)
	if gotHost != originURL.Host {
		t.Errorf("Expected Host %s, got %s", originURL.Host, gotHost)
	}
	if gotPath != "/graphql" {
		t.Errorf("Expected path /graphql, got %s", gotPath)
	}
	if gotCookie != "session=abc" || gotAuth != "Bearer token" {
		t.Errorf("Expected cookies and authorization to pass through, got %q and %q", gotCookie, gotAuth)
	}
	if gotConnection != "" {
		t.Error("Expected headers listed in Connection to be stripped")
	}
	if w.Header().Get("Keep-Alive") != "" {
		t.Error("Expected Keep-Alive to be stripped from the response")
	}
	if w.Header().Get("X-Powered-By") != "" {
		t.Error("Expected X-Powered-By to be stripped from the response")
	}
	if s.renderer.calls != 0 {
		t.Error("Expected renderer not to be called for proxied paths")
	}
}

func TestProxyPrefixes(t *testing.T) {
	var paths []string
	originServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
	}))
	defer originServer.Close()

	s := newTestServer(t, testConfig{graphqlOrigin: originServer.URL})

	requests := []struct{ method, path string }{
		{http.MethodGet, "/login"},
		{http.MethodGet, "/logout"},
		{http.MethodGet, "/callback/github"},
		{http.MethodDelete, "/admin/posts/1"},
		{http.MethodPut, "/admin"},
	}
	for _, r := range requests {
		s.do(httptest.NewRequest(r.method, r.path, nil))
	}

	if len(paths) != len(requests) {
		t.Fatalf("Expected %d proxied requests, got %v", len(requests), paths)
	}
	for i, r := range requests {
		if want := r.method + " " + r.path; paths[i] != want {
			t.Errorf("Expected %s, got %s", want, paths[i])
		}
	}

	s.get("/administrator")
	if s.renderer.calls != 1 {
		t.Error("Expected a path that only shares a prefix to reach the renderer")
	}
}

func TestProxyOriginDown(t *testing.T) {
	originServer := httptest.NewServer(http.NotFoundHandler())
	target := originServer.URL
	originServer.Close()

	s := newTestServer(t, testConfig{graphqlOrigin: target})
	w := s.do(httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{}")))

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
	if !strings.Contains(s.logs.String(), `"severity":"ERROR"`) {
		t.Error("Expected an error-level log record")
	}
	assertSingleAccessRecord(t, s, "502")
}

func TestFallbackRender(t *testing.T) {
	s := newTestServer(t, testConfig{})
	s.renderer.status = http.StatusTeapot

	w := s.get("/unknown/path?x=1")

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected renderer status to pass through, got %d", w.Code)
	}
	if s.renderer.page != "/unknown/path" || s.renderer.query.Get("x") != "1" {
		t.Errorf("Expected parsed URL to reach the renderer, got %s %v", s.renderer.page, s.renderer.query)
	}
	assertSingleAccessRecord(t, s, "418")
}

func TestUnmatchedMethodFallsThrough(t *testing.T) {
	s := newTestServer(t, testConfig{})
	s.do(httptest.NewRequest(http.MethodPost, "/healthz", nil))

	if s.renderer.calls != 1 || s.renderer.page != "/healthz" || s.renderer.method != http.MethodPost {
		t.Errorf("Expected POST /healthz to reach the renderer, got %d calls for %s %s",
			s.renderer.calls, s.renderer.method, s.renderer.page)
	}
}

func TestHeadRequests(t *testing.T) {
	s := newTestServer(t, testConfig{})
	w := s.do(httptest.NewRequest(http.MethodHead, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for HEAD, got %d", w.Code)
	}
	if s.renderer.calls != 0 {
		t.Error("Expected HEAD /healthz to be served by the health route")
	}
}

func TestStaticFiles(t *testing.T) {
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "robots.txt"), []byte("User-agent: *\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := newTestServer(t, testConfig{staticDir: staticDir})

	w := s.get("/robots.txt")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != "User-agent: *\n" {
		t.Errorf("Expected robots.txt contents, got %q", w.Body.String())
	}

	w = s.get("/favicon.ico")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing static file, got %d", w.Code)
	}
	if s.renderer.calls != 0 {
		t.Error("Expected static files not to reach the renderer")
	}
}

func TestRedirectMap(t *testing.T) {
	settings := site.Default(testPublicURL)
	settings.Redirects["/old-post"] = "/post/1"

	s := newTestServer(t, testConfig{settings: settings})
	w := s.get("/old-post")

	if w.Code != http.StatusFound {
		t.Errorf("Expected 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "/post/1" {
		t.Errorf("Expected Location /post/1, got %s", location)
	}
	if s.renderer.calls != 0 {
		t.Error("Expected redirect to short-circuit the renderer")
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, testConfig{})

	for _, path := range []string{"/healthz", "/feed.rss", "/unknown", "/tags/1"} {
		t.Run(path, func(t *testing.T) {
			w := s.get(path)

			for _, h := range hardeningHeaders {
				if got := w.Header().Get(h[0]); got != h[1] {
					t.Errorf("Expected %s: %s, got %q", h[0], h[1], got)
				}
			}
			if w.Header().Get("Content-Security-Policy") == "" {
				t.Error("Expected Content-Security-Policy header")
			}
			if w.Header().Get("Report-To") == "" {
				t.Error("Expected Report-To header")
			}
			if _, ok := w.Header()["X-Powered-By"]; ok {
				t.Error("Expected X-Powered-By to be absent")
			}
			if _, ok := w.Header()["Server"]; ok {
				t.Error("Expected Server to be absent")
			}
		})
	}
}

func TestContentSecurityPolicy(t *testing.T) {
	policy := contentSecurityPolicy("https://graphql.natwelch.com", site.Default(testPublicURL).CSP)

	want := []string{
		"default-src 'self' https://graphql.natwelch.com https://icco.auth0.com/.well-known/jwks.json",
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com/",
		"font-src https://fonts.gstatic.com",
		"img-src 'self' blob: data: https://icco.imgix.net https://storage.googleapis.com",
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://a.natwelch.com/tracker.js",
		"object-src 'none'",
		"upgrade-insecure-requests",
		"report-uri https://reportd.natwelch.com/report/writing",
		"report-to default",
	}
	if got := strings.Split(policy, "; "); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected policy:\n%s", strings.Join(got, "\n"))
	}

	bare := contentSecurityPolicy("https://graphql.natwelch.com", site.CSPSettings{})
	if strings.Contains(bare, "report-uri") {
		t.Error("Expected no report directives without a report URI")
	}
}

func TestHTTPSRedirect(t *testing.T) {
	tests := []struct {
		name     string
		devMode  bool
		trust    bool
		proto    string
		redirect bool
	}{
		{"plaintext behind proxy", false, true, "http", true},
		{"https behind proxy", false, true, "https", false},
		{"proxy not trusted", false, false, "http", false},
		{"dev mode", true, true, "http", false},
		{"no forwarded proto", false, true, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig{opts: func(o *ServerOptions) {
				o.DevMode = tt.devMode
				o.TrustProxy = tt.trust
			}})

			req := httptest.NewRequest(http.MethodGet, "http://writing.natwelch.com/post/1?a=b", nil)
			req.Header.Set("X-Forwarded-Proto", tt.proto)
			w := s.do(req)

			if tt.redirect {
				if w.Code != http.StatusMovedPermanently {
					t.Fatalf("Expected 301, got %d", w.Code)
				}
				if location := w.Header().Get("Location"); location != "https://writing.natwelch.com/post/1?a=b" {
					t.Errorf("Unexpected Location %s", location)
				}
				if s.renderer.calls != 0 {
					t.Error("Expected redirect to skip the handler")
				}
				return
			}

			if w.Code == http.StatusMovedPermanently {
				t.Error("Expected no redirect")
			}
		})
	}
}

func TestPanicRecovery(t *testing.T) {
	logs := &bytes.Buffer{}
	settings := site.Default(testPublicURL)
	handler := NewHandler(feed.NewBuilder(&fakeSource{}, settings.Feed, testPublicURL), panickingRenderer{}, settings, t.TempDir())

	engine, err := NewServer(handler, ServerOptions{
		GraphQLOrigin: "https://graphql.natwelch.com",
		Logger:        observability.NewLogger(logs, slog.LevelInfo, false),
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
	if !strings.Contains(logs.String(), "Panic while handling request") {
		t.Error("Expected the panic to be logged")
	}
	if got := strings.Count(logs.String(), `"httpRequest"`); got != 1 {
		t.Errorf("Expected 1 access record, got %d", got)
	}
}

func TestRegisterRoutesFirstClaimWins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	first := func(c *gin.Context) { c.String(http.StatusOK, "first") }
	second := func(c *gin.Context) { c.String(http.StatusOK, "second") }

	err := registerRoutes(r, []Route{
		{Method: http.MethodGet, Path: "/a", Handler: first},
		{Method: http.MethodGet, Path: "/a", Handler: second},
		{Path: "/p", Prefix: true, Handler: first},
		{Method: http.MethodPost, Path: "/p", Handler: second},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/a", nil),
		httptest.NewRequest(http.MethodHead, "/a", nil),
		httptest.NewRequest(http.MethodPost, "/p", nil),
		httptest.NewRequest(http.MethodPost, "/p/deeper", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Body.String() != "first" {
			t.Errorf("%s %s: expected first handler, got %q", req.Method, req.URL.Path, w.Body.String())
		}
	}

	if err := registerRoutes(gin.New(), []Route{{Method: http.MethodGet, Path: "/nil"}}); err == nil {
		t.Error("Expected error for a route without handler")
	}
}

func manyPosts(n int) []origin.Post {
	posts := make([]origin.Post, 0, n)
	for i := n; i > 0; i-- {
		posts = append(posts, origin.Post{
			ID:       fmt.Sprint(i),
			Title:    fmt.Sprintf("Post number %d", i),
			Datetime: "2024-01-02T03:04:05Z",
			Summary:  strings.Repeat("Some *words* about things. ", 10),
		})
	}
	return posts
}

func gzipRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	return req
}

func TestCompressesFeeds(t *testing.T) {
	s := newTestServer(t, testConfig{source: &fakeSource{posts: manyPosts(20)}})
	w := s.do(gzipRequest("/feed.rss"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ce := w.Header().Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("Expected gzip encoding, got %q", ce)
	}
	if vary := w.Header().Get("Vary"); !strings.Contains(vary, "Accept-Encoding") {
		t.Errorf("Expected Vary: Accept-Encoding, got %q", vary)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Expected application/rss+xml, got %s", ct)
	}

	reader, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Expected a valid gzip stream: %v", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Failed to decompress body: %v", err)
	}
	if !strings.Contains(string(body), "<link>https://writing.natwelch.com/post/20</link>") {
		t.Errorf("Expected post link in decompressed feed, got:\n%s", body)
	}
	assertSingleAccessRecord(t, s, "200")
}

func TestCompressionSkipsBinaryContent(t *testing.T) {
	s := newTestServer(t, testConfig{})
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 4096)...)
	s.renderer.contentType = "image/png"
	s.renderer.body = png

	w := s.do(gzipRequest("/images/logo.png"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ce := w.Header().Get("Content-Encoding"); ce != "" {
		t.Errorf("Expected no encoding for image/png, got %q", ce)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Errorf("Expected image bytes unchanged, got %d bytes", w.Body.Len())
	}
}

func TestCompressionRequiresAcceptEncoding(t *testing.T) {
	s := newTestServer(t, testConfig{source: &fakeSource{posts: manyPosts(20)}})
	w := s.get("/feed.rss")

	if ce := w.Header().Get("Content-Encoding"); ce != "" {
		t.Errorf("Expected no encoding without Accept-Encoding, got %q", ce)
	}
	if !strings.HasPrefix(w.Body.String(), "<?xml") {
		t.Errorf("Expected plain XML body, got %q", w.Body.String()[:min(20, w.Body.Len())])
	}
}

func TestCompressionSkipsBodylessResponses(t *testing.T) {
	tests := []struct {
		path   string
		status int
	}{
		{"/robots.txt", http.StatusNotFound},
		{"/tags/42", http.StatusFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			s := newTestServer(t, testConfig{})
			w := s.do(gzipRequest(tt.path))

			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
			if ce := w.Header().Get("Content-Encoding"); ce != "" {
				t.Errorf("Expected no encoding, got %q", ce)
			}
			assertSingleAccessRecord(t, s, fmt.Sprint(tt.status))
		})
	}
}
