package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
)

// DefaultPipedInstances lists public Piped API hosts tried when no override
// is configured. Availability shifts over time; the shuffled bounded-attempt
// loop rides out dead entries.
var DefaultPipedInstances = []string{
	"https://pipedapi.kavin.rocks",
	"https://pipedapi.adminforge.de",
	"https://api.piped.yt",
	"https://pipedapi.tokhmi.xyz",
	"https://pipedapi.moomoo.me",
	"https://pipedapi.syncpundit.io",
	"https://api-piped.mha.fi",
	"https://pipedapi.smnz.de",
	"https://pipedapi.qdi.fi",
	"https://piped-api.garudalinux.org",
	"https://pipedapi.rivo.lol",
	"https://pipedapi.leptons.xyz",
	"https://piped-api.lunar.icu",
	"https://pipedapi-libre.kavin.rocks",
}

type pipedResponse struct {
	Title        string        `json:"title"`
	ThumbnailURL string        `json:"thumbnailUrl"`
	Duration     int           `json:"duration"`
	VideoStreams []pipedStream `json:"videoStreams"`
	Error        string        `json:"error"`
}

type pipedStream struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	MimeType  string `json:"mimeType"`
	VideoOnly bool   `json:"videoOnly"`
	Height    int    `json:"height"`
	Itag      int    `json:"itag"`
}

// resolvePiped tries the self-hosted override when one is configured,
// otherwise walks a shuffled slice of the public pool, sequentially, stopping
// at the first success or after the configured attempt cap.
func (r *Resolver) resolvePiped(ctx context.Context, videoID string) (*VideoInfo, error) {
	if override := strings.TrimRight(r.registry.PipedAPIURL, "/"); override != "" {
		info, err := r.pipedAttempt(ctx, override, videoID)
		if err != nil {
			return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("piped instance %s: %w", override, err))
		}
		return info, nil
	}

	instances := append([]string(nil), r.registry.PipedInstances...)
	// Load distribution only; no cryptographic strength needed.
	rand.Shuffle(len(instances), func(i, j int) {
		instances[i], instances[j] = instances[j], instances[i]
	})

	maxAttempts := r.registry.PipedMaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(instances) {
		maxAttempts = len(instances)
	}

	var lastErr error
	attempts := 0
	for _, instance := range instances[:maxAttempts] {
		attempts++
		info, err := r.pipedAttempt(ctx, strings.TrimRight(instance, "/"), videoID)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no instances configured")
	}
	return nil, wrapCategory(CategoryAllInstancesFailed,
		fmt.Errorf("piped: %d instance(s) failed, last error: %w", attempts, lastErr))
}

func (r *Resolver) pipedAttempt(ctx context.Context, instance, videoID string) (*VideoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instance+"/streams/"+videoID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.piped.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A redirecting instance is misconfigured; following it would hand the
	// video ID to an arbitrary host.
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("unexpected redirect (status %d)", resp.StatusCode)
	}

	// Piped embeds structured error payloads in non-2xx responses, so the
	// body is decoded regardless of status.
	var payload pipedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("instance error: %s", payload.Error)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, errors.New("response missing title")
	}

	// Prefer combined (audio+video) streams at every height; video-only
	// entries fill heights the combined set does not cover.
	combined := make([]StreamCandidate, 0, len(payload.VideoStreams))
	videoOnly := make([]StreamCandidate, 0, len(payload.VideoStreams))
	covered := make(map[int]struct{})
	for _, s := range payload.VideoStreams {
		c, ok := pipedCandidate(s)
		if !ok {
			continue
		}
		if s.VideoOnly {
			videoOnly = append(videoOnly, c)
			continue
		}
		combined = append(combined, c)
		covered[c.Height] = struct{}{}
	}
	merged := combined
	for _, c := range videoOnly {
		if _, ok := covered[c.Height]; ok {
			continue
		}
		merged = append(merged, c)
	}

	return &VideoInfo{
		Title:     payload.Title,
		Thumbnail: payload.ThumbnailURL,
		Duration:  payload.Duration,
		Formats:   dedupeByHeight(merged),
		Backend:   BackendPiped,
	}, nil
}

func pipedCandidate(s pipedStream) (StreamCandidate, bool) {
	if s.URL == "" {
		return StreamCandidate{}, false
	}
	height := s.Height
	if height <= 0 {
		height = parseHeight(s.Quality)
	}
	if height <= 0 {
		return StreamCandidate{}, false
	}
	itag := s.Quality
	if s.Itag > 0 {
		itag = strconv.Itoa(s.Itag)
	}
	ext := mimeToExt(s.MimeType)
	if ext == "" {
		ext = preferredContainer
	}
	quality := s.Quality
	if quality == "" {
		quality = fmt.Sprintf("%dp", height)
	}
	return StreamCandidate{
		Quality: quality,
		URL:     s.URL,
		Itag:    itag,
		Ext:     ext,
		Height:  height,
	}, true
}
