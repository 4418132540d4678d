package resolver

import (
	"fmt"
	"strings"
)

// Backend identifies one of the interchangeable resolution providers.
type Backend string

const (
	// BackendNative extracts in-process through the YouTube client library.
	BackendNative Backend = "native"
	// BackendInvidious queries a single configured Invidious instance.
	BackendInvidious Backend = "invidious"
	// BackendPiped queries the Piped instance pool with shuffled fallback.
	BackendPiped Backend = "piped"
)

// ParseBackend validates a backend name from a request parameter. The empty
// string selects the process-wide default.
func ParseBackend(raw string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(BackendNative), "local":
		return BackendNative, nil
	case string(BackendInvidious):
		return BackendInvidious, nil
	case string(BackendPiped):
		return BackendPiped, nil
	}
	return "", wrapCategory(CategoryInvalidInput, fmt.Errorf("unknown backend %q", raw))
}

// StreamCandidate is one resolvable media URL at a given quality. Height 0
// means the height is unknown and the entry is ignored by height-based
// selection.
type StreamCandidate struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Itag    string `json:"itag"`
	Ext     string `json:"ext"`
	Height  int    `json:"height,omitempty"`
}

// VideoInfo is the common result shape every adapter produces. It is created
// fresh per request and never persisted.
type VideoInfo struct {
	Title     string            `json:"title"`
	Thumbnail string            `json:"thumbnail,omitempty"`
	Duration  int               `json:"duration,omitempty"`
	Formats   []StreamCandidate `json:"formats"`
	Backend   Backend           `json:"backend"`
}

// Registry holds the process-wide backend configuration. It is populated once
// at startup and read-only afterwards.
type Registry struct {
	DefaultBackend Backend
	InvidiousURL   string
	// PipedAPIURL is the self-hosted override; when set it replaces the
	// public pool entirely.
	PipedAPIURL      string
	PipedInstances   []string
	PipedMaxAttempts int
}
