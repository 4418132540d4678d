package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type invidiousVideo struct {
	Title           string            `json:"title"`
	LengthSeconds   int               `json:"lengthSeconds"`
	VideoThumbnails []invidiousThumb  `json:"videoThumbnails"`
	AdaptiveFormats []invidiousFormat `json:"adaptiveFormats"`
	Error           string            `json:"error"`
}

type invidiousThumb struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
	Width   uint   `json:"width"`
	Height  uint   `json:"height"`
}

type invidiousFormat struct {
	Type         string `json:"type"`
	URL          string `json:"url"`
	Itag         string `json:"itag"`
	Container    string `json:"container"`
	Resolution   string `json:"resolution"`
	QualityLabel string `json:"qualityLabel"`
	Height       int    `json:"height"`
}

// resolveInvidious queries the single configured Invidious instance. This
// family has exactly one endpoint, so any failure surfaces without retry.
func (r *Resolver) resolveInvidious(ctx context.Context, videoID string) (*VideoInfo, error) {
	base := strings.TrimRight(r.registry.InvidiousURL, "/")
	if base == "" {
		return nil, wrapCategory(CategoryBackendUnavailable, errors.New("invidious: no instance configured"))
	}

	endpoint := fmt.Sprintf("%s/api/v1/videos/%s?local=true", base, videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, wrapCategory(CategoryBackendUnavailable, err)
	}
	resp, err := r.invidious.Do(req)
	if err != nil {
		return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("invidious: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("invidious: unexpected status %d", resp.StatusCode))
	}

	var payload invidiousVideo
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("invidious: decoding response: %w", err))
	}
	if payload.Error != "" {
		return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("invidious: %s", payload.Error))
	}

	candidates := make([]StreamCandidate, 0, len(payload.AdaptiveFormats))
	for _, f := range payload.AdaptiveFormats {
		if f.URL == "" || !strings.HasPrefix(f.Type, "video") {
			continue
		}
		height := f.Height
		if height == 0 {
			height = parseHeight(f.Resolution)
		}
		if height == 0 {
			height = parseHeight(f.QualityLabel)
		}
		ext := f.Container
		if ext == "" {
			ext = mimeToExt(f.Type)
		}
		quality := f.Resolution
		if quality == "" && height > 0 {
			quality = fmt.Sprintf("%dp", height)
		}
		if quality == "" {
			quality = "Unknown"
		}
		candidates = append(candidates, StreamCandidate{
			Quality: quality,
			URL:     absoluteURL(base, f.URL),
			Itag:    f.Itag,
			Ext:     ext,
			Height:  height,
		})
	}

	return &VideoInfo{
		Title:     payload.Title,
		Thumbnail: bestInvidiousThumbnail(base, payload.VideoThumbnails),
		Duration:  payload.LengthSeconds,
		Formats:   dedupeByHeight(candidates),
		Backend:   BackendInvidious,
	}, nil
}

// absoluteURL rewrites instance-relative stream paths against the configured
// instance host. local=true responses carry proxied relative URLs.
func absoluteURL(base, raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		return base + "/" + raw
	}
	return base + raw
}

func bestInvidiousThumbnail(base string, thumbs []invidiousThumb) string {
	bestURL := ""
	var bestArea uint
	for _, t := range thumbs {
		area := t.Width * t.Height
		if area >= bestArea {
			bestArea = area
			bestURL = t.URL
		}
	}
	if bestURL == "" {
		return ""
	}
	return absoluteURL(base, bestURL)
}
