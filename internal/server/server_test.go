package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/reelroll/reelroll/internal/loader"
	"github.com/reelroll/reelroll/internal/server"
	"github.com/reelroll/reelroll/internal/video"
)

// --- Mock types ---

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type sourceResult struct {
	video video.Descriptor
	err   error
}

// mockSource replays results in order and repeats the last one.
type mockSource struct {
	mu      sync.Mutex
	results []sourceResult
	calls   int
}

func (m *mockSource) Random(ctx context.Context) (video.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	m.calls++
	return m.results[i].video, m.results[i].err
}

var catsVideo = video.Descriptor{VideoURL: "/v/1.mp4", Title: "Cats", Photographer: "Jane", Duration: 12}

// --- Helpers ---

func newServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	srv := server.New(cfg)
	t.Cleanup(srv.Close)
	return srv
}

func newServerWithSource(t *testing.T, results ...sourceResult) (*server.Server, *mockSource) {
	t.Helper()
	source := &mockSource{results: results}
	srv := newServer(t, server.Config{
		Source:    source,
		Policy:    loader.Policy{MaxRetries: 3, Delay: 0},
		RateLimit: 100,
		RateBurst: 100,
	})
	return srv, source
}

func testWebFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html": {Data: []byte(`<html><button id="watchBtn">Watch Random Video</button><div id="player"></div></html>`)},
		"script.js":  {Data: []byte("console.log('widget')")},
		"style.css":  {Data: []byte("body{}")},
	}
}

func executeRequest(srv http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// --- Health ---

func TestHealthEndpointReturnsOK(t *testing.T) {
	srv := newServer(t, server.Config{})
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("expected body %q, got %q", `{"status":"ok"}`, got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
}

func TestHealthEndpointWithPingFailure(t *testing.T) {
	srv := newServer(t, server.Config{Pinger: &mockPinger{err: errors.New("connection refused")}})
	rec := executeRequest(srv, http.MethodGet, "/api/health")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	expected := `{"error":"cache unreachable","status":"unhealthy"}`
	if got := strings.TrimSpace(rec.Body.String()); got != expected {
		t.Errorf("expected body %q, got %q", expected, got)
	}
}

func TestHealthEndpointWrongMethodReturnsMethodNotAllowed(t *testing.T) {
	srv := newServer(t, server.Config{})
	rec := executeRequest(srv, http.MethodPost, "/api/health")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

// --- /api/random ---

func TestRandomReturnsDescriptor(t *testing.T) {
	srv, _ := newServerWithSource(t, sourceResult{video: catsVideo})
	rec := executeRequest(srv, http.MethodGet, "/api/random")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", cc)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["video_url"] != "/v/1.mp4" || body["title"] != "Cats" || body["photographer"] != "Jane" || body["duration"] != float64(12) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRandomSourceErrorReturns500(t *testing.T) {
	srv, _ := newServerWithSource(t, sourceResult{err: errors.New("Pexels API error: status 429")})
	rec := executeRequest(srv, http.MethodGet, "/api/random")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Error fetching video: Pexels API error: status 429" {
		t.Errorf("unexpected error body: %q", body.Error)
	}
}

func TestRandomRejectsIncompleteDescriptor(t *testing.T) {
	srv, _ := newServerWithSource(t, sourceResult{video: video.Descriptor{Title: "No URL"}})
	rec := executeRequest(srv, http.MethodGet, "/api/random")

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 for descriptor without video_url, got %d", rec.Code)
	}
}

func TestRandomIsRateLimited(t *testing.T) {
	source := &mockSource{results: []sourceResult{{video: catsVideo}}}
	srv := newServer(t, server.Config{Source: source, RateLimit: 0.01, RateBurst: 2})

	for i := 0; i < 2; i++ {
		if rec := executeRequest(srv, http.MethodGet, "/api/random"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := executeRequest(srv, http.MethodGet, "/api/random")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestRandomNotRegisteredWithoutSource(t *testing.T) {
	srv := newServer(t, server.Config{})

	for _, path := range []string{"/api/random", "/player"} {
		if rec := executeRequest(srv, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for %s without a source, got %d", path, rec.Code)
		}
	}
}

// --- /player ---

func TestPlayerRendersVideoAfterRetry(t *testing.T) {
	srv, source := newServerWithSource(t,
		sourceResult{err: errors.New("connection reset")},
		sourceResult{video: catsVideo},
	)
	rec := executeRequest(srv, http.MethodGet, "/player")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if source.calls != 2 {
		t.Errorf("expected 2 source calls, got %d", source.calls)
	}

	body := rec.Body.String()
	expected := []string{
		"<h3>Cats</h3>",
		"By <strong>Jane</strong> • 12s",
		`<source src="/v/1.mp4" type="video/mp4">`,
		">Watch Random Video</button>",
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("expected player page to contain %q", want)
		}
	}
}

func TestPlayerRendersFailurePanelAfterAllAttempts(t *testing.T) {
	srv, source := newServerWithSource(t,
		sourceResult{err: errors.New("first")},
		sourceResult{err: errors.New("second")},
		sourceResult{err: errors.New("third")},
		sourceResult{err: errors.New("upstream timeout")},
	)
	rec := executeRequest(srv, http.MethodGet, "/player")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
	if source.calls != 4 {
		t.Errorf("expected 4 source calls, got %d", source.calls)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "Could not load video. Please try again.") {
		t.Error("expected failure headline")
	}
	if !strings.Contains(body, "Error: upstream timeout") {
		t.Error("expected the last attempt's error message")
	}
}

func TestPlayerWithoutRetriesFetchesOnce(t *testing.T) {
	source := &mockSource{results: []sourceResult{{err: errors.New("upstream timeout")}}}
	srv := newServer(t, server.Config{
		Source:    source,
		Policy:    loader.Policy{MaxRetries: 0, Delay: 0},
		RateLimit: 100,
		RateBurst: 100,
	})

	rec := executeRequest(srv, http.MethodGet, "/player")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", rec.Code)
	}
	if source.calls != 1 {
		t.Errorf("expected 1 source call with MaxRetries 0, got %d", source.calls)
	}
	if !strings.Contains(rec.Body.String(), "Error: upstream timeout") {
		t.Error("expected the failure panel with the fetch error")
	}
}

func TestPlayerUsesRequestNonce(t *testing.T) {
	srv, _ := newServerWithSource(t, sourceResult{video: catsVideo})
	rec := executeRequest(srv, http.MethodGet, "/player")

	csp := rec.Header().Get("Content-Security-Policy")
	start := strings.Index(csp, "'nonce-")
	if start == -1 {
		t.Fatalf("expected nonce in CSP, got %q", csp)
	}
	nonce := csp[start+len("'nonce-"):]
	nonce = nonce[:strings.Index(nonce, "'")]

	if !strings.Contains(rec.Body.String(), `nonce="`+nonce+`"`) {
		t.Errorf("expected page to carry CSP nonce %q", nonce)
	}
}

// --- SPA ---

func TestSPAServesExistingFiles(t *testing.T) {
	srv := newServer(t, server.Config{WebFS: testWebFS()})
	rec := executeRequest(srv, http.MethodGet, "/script.js")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "console.log('widget')" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestSPAServesIndexForRootPath(t *testing.T) {
	srv := newServer(t, server.Config{WebFS: testWebFS()})
	rec := executeRequest(srv, http.MethodGet, "/")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="watchBtn"`) {
		t.Errorf("expected index.html, got %q", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("expected Cache-Control no-cache for index, got %q", cc)
	}
}

func TestSPAFallbackToIndexForUnknownPages(t *testing.T) {
	srv := newServer(t, server.Config{WebFS: testWebFS()})
	rec := executeRequest(srv, http.MethodGet, "/some/page")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `id="player"`) {
		t.Errorf("expected index.html fallback, got %q", rec.Body.String())
	}
}

func TestSPAMissingAssetReturns404(t *testing.T) {
	srv := newServer(t, server.Config{WebFS: testWebFS()})
	rec := executeRequest(srv, http.MethodGet, "/missing.js")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing asset, got %d", rec.Code)
	}
}

func TestSPADoesNotInterceptAPIRoutes(t *testing.T) {
	source := &mockSource{results: []sourceResult{{video: catsVideo}}}
	srv := newServer(t, server.Config{Source: source, WebFS: testWebFS()})

	rec := executeRequest(srv, http.MethodGet, "/api/random")
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON from /api/random, got Content-Type %q", ct)
	}
}

func TestUnknownRouteReturns404WithoutSPA(t *testing.T) {
	srv := newServer(t, server.Config{})
	rec := executeRequest(srv, http.MethodGet, "/nonexistent")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
