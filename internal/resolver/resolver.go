package resolver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kkdai/youtube/v2"
)

const (
	invidiousTimeout = 30 * time.Second
	pipedTimeout     = 10 * time.Second
	nativeTimeout    = 3 * time.Minute

	// DefaultPipedMaxAttempts bounds worst-case latency against the full
	// pool, which may number in the dozens.
	DefaultPipedMaxAttempts = 8
)

// Resolver dispatches video resolution to the configured backend adapters.
// It holds no mutable state beyond its HTTP clients and is safe for
// concurrent use.
type Resolver struct {
	registry  Registry
	yt        *youtube.Client
	invidious *http.Client
	piped     *http.Client
}

// New builds a Resolver around an immutable registry.
func New(registry Registry) *Resolver {
	if registry.DefaultBackend == "" {
		registry.DefaultBackend = BackendNative
	}
	if registry.PipedMaxAttempts <= 0 {
		registry.PipedMaxAttempts = DefaultPipedMaxAttempts
	}
	return &Resolver{
		registry:  registry,
		yt:        &youtube.Client{HTTPClient: NewHTTPClient(nativeTimeout)},
		invidious: NewHTTPClient(invidiousTimeout),
		piped:     newNoRedirectClient(pipedTimeout),
	}
}

// Registry returns the backend configuration the resolver was built with.
func (r *Resolver) Registry() Registry { return r.registry }

// Resolve produces the stream candidates for rawURL through one backend.
// An empty backend selects the registry default. No retry happens across
// backends; the caller's choice bears that backend's failure.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, backend Backend) (*VideoInfo, error) {
	if backend == "" {
		backend = r.registry.DefaultBackend
	}
	switch backend {
	case BackendNative:
		return r.resolveNative(ctx, rawURL)
	case BackendInvidious, BackendPiped:
		id, err := ExtractVideoID(rawURL)
		if err != nil {
			return nil, err
		}
		if backend == BackendInvidious {
			return r.resolveInvidious(ctx, id)
		}
		return r.resolvePiped(ctx, id)
	}
	return nil, wrapCategory(CategoryInvalidInput, fmt.Errorf("unknown backend %q", backend))
}
