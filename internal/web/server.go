package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sangshuduo/yt-downloader-wasm/internal/resolver"
	"github.com/sangshuduo/yt-downloader-wasm/internal/storage"
)

//go:embed assets/*
var embeddedAssets embed.FS

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// VideoResolver resolves a video URL into stream candidates through one of
// the configured backends.
type VideoResolver interface {
	Resolve(ctx context.Context, rawURL string, backend resolver.Backend) (*resolver.VideoInfo, error)
	Registry() resolver.Registry
}

// StreamStore persists a resolved stream and returns its public URL and key.
type StreamStore interface {
	Store(ctx context.Context, streamURL, title string) (publicURL, key string, err error)
}

// Server wires the JSON API around injected collaborators. Requests share no
// mutable state beyond the read-only registry inside the resolver.
type Server struct {
	resolver       VideoResolver
	store          StreamStore
	client         *http.Client
	log            *logrus.Logger
	resolveTimeout time.Duration
	startedAt      time.Time
}

// NewServer builds the API server. store may be nil, which disables the
// upload endpoint with a 503. resolveTimeout bounds the resolution phase of
// each request; 0 leaves only the per-backend timeouts in effect.
func NewServer(res VideoResolver, store StreamStore, resolveTimeout time.Duration, log *logrus.Logger) *Server {
	return &Server{
		resolver:       res,
		store:          store,
		resolveTimeout: resolveTimeout,
		// No overall timeout: download proxying runs for as long as the
		// client keeps reading. The transport still bounds dial and
		// response-header waits.
		client:    resolver.NewHTTPClient(0),
		log:       log,
		startedAt: time.Now(),
	}
}

type uploadRequest struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Quality string `json:"quality"`
	Backend string `json:"backend"`
}

type uploadResponse struct {
	Success  bool             `json:"success"`
	S3URL    string           `json:"s3_url"`
	Filename string           `json:"filename"`
	Backend  resolver.Backend `json:"backend"`
}

type errorResponse struct {
	Error   string           `json:"error"`
	Backend resolver.Backend `json:"backend,omitempty"`
}

// Handler returns the full route table wrapped in the security-header
// middleware.
func (s *Server) Handler() http.Handler {
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(assets))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/video", s.handleVideo)
	mux.HandleFunc("/api/upload-s3", s.handleUploadS3)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/" {
			serveIndex(w, assets)
			return
		}
		if fileExists(assets, strings.TrimPrefix(r.URL.Path, "/")) {
			fileServer.ServeHTTP(w, r)
			return
		}
		serveIndex(w, assets)
	})

	return withSecurityHeaders(mux)
}

// ListenAndServe runs the server until the listener fails or ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeJSONError(w, http.StatusBadRequest, "no url provided", "")
		return
	}
	backend, err := resolver.ParseBackend(r.URL.Query().Get("backend"))
	if err != nil {
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), "")
		return
	}

	info, err := s.resolve(r.Context(), rawURL, backend)
	if err != nil {
		s.logResolveError(rawURL, backend, err)
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), s.effectiveBackend(backend))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUploadS3(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "s3 storage is not configured", "")
		return
	}
	var req uploadRequest
	if reqErr := decodeJSONBody(w, r, &req); reqErr != nil {
		writeJSONError(w, reqErr.status, reqErr.message, "")
		return
	}
	if req.URL == "" {
		writeJSONError(w, http.StatusBadRequest, "no url provided", "")
		return
	}
	backend, err := resolver.ParseBackend(req.Backend)
	if err != nil {
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), "")
		return
	}

	info, err := s.resolve(r.Context(), req.URL, backend)
	if err != nil {
		s.logResolveError(req.URL, backend, err)
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), s.effectiveBackend(backend))
		return
	}

	candidate, err := resolver.SelectCandidate(info.Formats, req.Quality)
	if err != nil {
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), info.Backend)
		return
	}

	title := req.Title
	if title == "" {
		title = info.Title
	}
	s.log.WithFields(logrus.Fields{
		"title":   title,
		"quality": req.Quality,
		"height":  candidate.Height,
		"backend": info.Backend,
	}).Info("starting s3 upload")

	publicURL, key, err := s.store.Store(r.Context(), candidate.URL, title)
	if err != nil {
		s.log.WithError(err).Error("s3 upload failed")
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), info.Backend)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		S3URL:    publicURL,
		Filename: key[strings.LastIndex(key, "/")+1:],
		Backend:  info.Backend,
	})
}

// handleDownload proxies the selected stream to the client, sidestepping CORS
// on the upstream CDN.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeJSONError(w, http.StatusBadRequest, "no url provided", "")
		return
	}
	backend, err := resolver.ParseBackend(r.URL.Query().Get("backend"))
	if err != nil {
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), "")
		return
	}

	info, err := s.resolve(r.Context(), rawURL, backend)
	if err != nil {
		s.logResolveError(rawURL, backend, err)
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), s.effectiveBackend(backend))
		return
	}
	candidate, err := resolver.SelectCandidate(info.Formats, r.URL.Query().Get("quality"))
	if err != nil {
		writeJSONError(w, resolver.HTTPStatus(err), err.Error(), info.Backend)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, candidate.URL, nil)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error(), info.Backend)
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("fetching stream: %v", err), info.Backend)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("fetching stream: unexpected status %d", resp.StatusCode), info.Backend)
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		title = info.Title
	}
	filename := storage.SanitizeTitle(title) + ".mp4"

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are gone; just record the broken transfer.
		s.log.WithError(err).Debug("download stream interrupted")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	registry := s.resolver.Registry()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":          time.Since(s.startedAt).Truncate(time.Second).String(),
		"default_backend": registry.DefaultBackend,
		"piped_instances": len(registry.PipedInstances),
		"s3_enabled":      s.store != nil,
	})
}

// resolve runs the resolver under the configured deadline. Storage and
// stream proxying stay on the request context; only resolution is bounded.
func (s *Server) resolve(ctx context.Context, rawURL string, backend resolver.Backend) (*resolver.VideoInfo, error) {
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}
	return s.resolver.Resolve(ctx, rawURL, backend)
}

func (s *Server) effectiveBackend(requested resolver.Backend) resolver.Backend {
	if requested != "" {
		return requested
	}
	return s.resolver.Registry().DefaultBackend
}

func (s *Server) logResolveError(rawURL string, backend resolver.Backend, err error) {
	s.log.WithFields(logrus.Fields{
		"url":      rawURL,
		"backend":  s.effectiveBackend(backend),
		"category": resolver.CategoryOf(err),
	}).WithError(err).Warn("resolution failed")
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string, backend resolver.Backend) {
	writeJSON(w, status, errorResponse{Error: message, Backend: backend})
}

func serveIndex(w http.ResponseWriter, assets fs.FS) {
	data, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "missing index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func fileExists(assets fs.FS, name string) bool {
	if name == "" {
		return false
	}
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func withSecurityHeaders(next http.Handler) http.Handler {
	const cspValue = "default-src 'self'; base-uri 'self'; frame-ancestors 'none'; object-src 'none'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'; media-src 'self' https:"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", cspValue)
		next.ServeHTTP(w, r)
	})
}
