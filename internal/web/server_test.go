package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sangshuduo/yt-downloader-wasm/internal/resolver"
)

type fakeResolver struct {
	info        *resolver.VideoInfo
	err         error
	gotURL      string
	gotBackend  resolver.Backend
	gotDeadline bool
}

func (f *fakeResolver) Resolve(ctx context.Context, rawURL string, backend resolver.Backend) (*resolver.VideoInfo, error) {
	f.gotURL = rawURL
	f.gotBackend = backend
	_, f.gotDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeResolver) Registry() resolver.Registry {
	return resolver.Registry{
		DefaultBackend: resolver.BackendNative,
		PipedInstances: []string{"https://a.example", "https://b.example"},
	}
}

type fakeStore struct {
	publicURL string
	key       string
	err       error
	gotStream string
	gotTitle  string
}

func (f *fakeStore) Store(ctx context.Context, streamURL, title string) (string, string, error) {
	f.gotStream = streamURL
	f.gotTitle = title
	if f.err != nil {
		return "", "", f.err
	}
	return f.publicURL, f.key, nil
}

func testInfo(formats ...resolver.StreamCandidate) *resolver.VideoInfo {
	return &resolver.VideoInfo{
		Title:    "Clip Title",
		Duration: 60,
		Formats:  formats,
		Backend:  resolver.BackendNative,
	}
}

func newTestServer(res VideoResolver, store StreamStore) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(res, store, 0, log)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func TestVideoEndpointSuccess(t *testing.T) {
	res := &fakeResolver{info: testInfo(resolver.StreamCandidate{
		Quality: "720p", URL: "https://cdn.example/720", Itag: "22", Ext: "mp4", Height: 720,
	})}
	handler := newTestServer(res, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/video?url=https://youtu.be/dQw4w9WgXcQ&backend=piped", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if res.gotURL != "https://youtu.be/dQw4w9WgXcQ" || res.gotBackend != resolver.BackendPiped {
		t.Fatalf("resolver called with url=%q backend=%q", res.gotURL, res.gotBackend)
	}
	var info resolver.VideoInfo
	decodeBody(t, rec, &info)
	if info.Title != "Clip Title" || len(info.Formats) != 1 {
		t.Fatalf("unexpected payload: %+v", info)
	}
}

func TestVideoEndpointMissingURL(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/video", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorResponse
	decodeBody(t, rec, &body)
	if body.Error != "no url provided" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestVideoEndpointUnknownBackend(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/video?url=x&backend=vimeo", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVideoEndpointErrorStatusMapping(t *testing.T) {
	tests := []struct {
		category resolver.Category
		want     int
	}{
		{resolver.CategoryInvalidInput, http.StatusBadRequest},
		{resolver.CategoryBackendUnavailable, http.StatusBadGateway},
		{resolver.CategoryAllInstancesFailed, http.StatusBadGateway},
		{resolver.CategoryNoSuitableFormat, http.StatusNotFound},
		{resolver.CategoryUpstreamFetch, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			res := &fakeResolver{err: resolver.CategorizedError{
				Category: tt.category,
				Err:      errors.New("boom"),
			}}
			handler := newTestServer(res, nil).Handler()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/video?url=x", nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var body errorResponse
			decodeBody(t, rec, &body)
			if body.Error == "" {
				t.Fatal("error message missing")
			}
			if body.Backend != resolver.BackendNative {
				t.Fatalf("backend = %q, want default backend echoed", body.Backend)
			}
		})
	}
}

func TestResolveTimeoutBoundsResolution(t *testing.T) {
	res := &fakeResolver{info: testInfo(resolver.StreamCandidate{
		Quality: "720p", URL: "https://cdn.example/720", Height: 720,
	})}
	log := logrus.New()
	log.SetOutput(io.Discard)
	handler := NewServer(res, nil, time.Minute, log).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/video?url=x", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !res.gotDeadline {
		t.Fatal("resolution context carried no deadline")
	}
}

func TestZeroResolveTimeoutLeavesContextUnbounded(t *testing.T) {
	res := &fakeResolver{info: testInfo(resolver.StreamCandidate{
		Quality: "720p", URL: "https://cdn.example/720", Height: 720,
	})}
	handler := newTestServer(res, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/video?url=x", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if res.gotDeadline {
		t.Fatal("resolution context unexpectedly carried a deadline")
	}
}

func TestUploadEndpoint(t *testing.T) {
	res := &fakeResolver{info: testInfo(
		resolver.StreamCandidate{Quality: "1080p", URL: "https://cdn.example/1080", Height: 1080},
		resolver.StreamCandidate{Quality: "720p", URL: "https://cdn.example/720", Height: 720},
	)}
	store := &fakeStore{
		publicURL: "https://clips.s3.us-east-1.amazonaws.com/youtube/Clip_x.mp4",
		key:       "youtube/Clip_x.mp4",
	}
	handler := newTestServer(res, store).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-s3",
		strings.NewReader(`{"url": "https://youtu.be/dQw4w9WgXcQ", "quality": "720p"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if store.gotStream != "https://cdn.example/720" {
		t.Fatalf("stored stream = %q, want the 720p candidate", store.gotStream)
	}
	if store.gotTitle != "Clip Title" {
		t.Fatalf("title = %q, want resolver title as fallback", store.gotTitle)
	}
	var body uploadResponse
	decodeBody(t, rec, &body)
	if !body.Success || body.S3URL != store.publicURL || body.Filename != "Clip_x.mp4" {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestUploadEndpointWithoutStore(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-s3", strings.NewReader(`{"url": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUploadEndpointRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"wrong content type", "text/plain", `{"url": "x"}`, http.StatusUnsupportedMediaType},
		{"malformed json", "application/json", `{"url": `, http.StatusBadRequest},
		{"unknown field", "application/json", `{"url": "x", "nope": 1}`, http.StatusBadRequest},
		{"trailing data", "application/json", `{"url": "x"}{}`, http.StatusBadRequest},
		{"missing url", "application/json", `{"title": "x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestServer(&fakeResolver{}, &fakeStore{}).Handler()

			req := httptest.NewRequest(http.MethodPost, "/api/upload-s3", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUploadEndpointNoSuitableFormat(t *testing.T) {
	res := &fakeResolver{info: testInfo()}
	handler := newTestServer(res, &fakeStore{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-s3", strings.NewReader(`{"url": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for empty format list", rec.Code)
	}
}

func TestDownloadEndpointProxiesStream(t *testing.T) {
	const payload = "stream bytes"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "12")
		w.Write([]byte(payload))
	}))
	defer upstream.Close()

	res := &fakeResolver{info: testInfo(
		resolver.StreamCandidate{Quality: "720p", URL: upstream.URL, Height: 720},
	)}
	handler := newTestServer(res, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download?url=x", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != payload {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Clip Title.mp4"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "12" {
		t.Fatalf("Content-Length = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q", got)
	}
}

func TestDownloadEndpointUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	res := &fakeResolver{info: testInfo(
		resolver.StreamCandidate{Quality: "720p", URL: upstream.URL, Height: 720},
	)}
	handler := newTestServer(res, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download?url=x", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, &fakeStore{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["default_backend"] != "native" {
		t.Errorf("default_backend = %v", body["default_backend"])
	}
	if body["piped_instances"] != float64(2) {
		t.Errorf("piped_instances = %v", body["piped_instances"])
	}
	if body["s3_enabled"] != true {
		t.Errorf("s3_enabled = %v", body["s3_enabled"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy missing")
	}
}

func TestUnknownAPIPathIs404(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIndexServedForAppRoutes(t *testing.T) {
	handler := newTestServer(&fakeResolver{}, nil).Handler()

	for _, path := range []string{"/", "/some/client/route"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, rec.Code)
			continue
		}
		if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
			t.Errorf("GET %s Content-Type = %q", path, rec.Header().Get("Content-Type"))
		}
	}
}
