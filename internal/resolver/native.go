package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
)

const preferredContainer = "mp4"

func (r *Resolver) resolveNative(ctx context.Context, rawURL string) (*VideoInfo, error) {
	video, err := r.yt.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, wrapCategory(CategoryBackendUnavailable, fmt.Errorf("native extraction: %w", err))
	}

	candidates := candidatesFromVideo(video)
	if len(candidates) == 0 {
		if best, ok := r.bestFallback(ctx, video); ok {
			candidates = append(candidates, best)
		}
	}

	return &VideoInfo{
		Title:     video.Title,
		Thumbnail: bestThumbnailURL(video.Thumbnails),
		Duration:  int(video.Duration.Seconds()),
		Formats:   candidates,
		Backend:   BackendNative,
	}, nil
}

// candidatesFromVideo keeps the library's ordering; it only filters to
// directly fetchable mp4 video formats and applies the candidate cap.
func candidatesFromVideo(video *youtube.Video) []StreamCandidate {
	candidates := make([]StreamCandidate, 0, maxCandidates)
	for i := range video.Formats {
		f := &video.Formats[i]
		if f.URL == "" || !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if mimeToExt(f.MimeType) != preferredContainer {
			continue
		}
		candidates = append(candidates, StreamCandidate{
			Quality: nativeQualityLabel(f),
			URL:     f.URL,
			Itag:    strconv.Itoa(f.ItagNo),
			Ext:     preferredContainer,
			Height:  f.Height,
		})
		if len(candidates) == maxCandidates {
			break
		}
	}
	return candidates
}

// bestFallback synthesizes a single "best" candidate when filtering left
// nothing usable but the extractor can still resolve a stream URL.
func (r *Resolver) bestFallback(ctx context.Context, video *youtube.Video) (StreamCandidate, bool) {
	for i := range video.Formats {
		f := &video.Formats[i]
		if !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		streamURL := f.URL
		if streamURL == "" {
			resolved, err := r.yt.GetStreamURLContext(ctx, video, f)
			if err != nil {
				continue
			}
			streamURL = resolved
		}
		return StreamCandidate{
			Quality: "best",
			URL:     streamURL,
			Itag:    "best",
			Ext:     preferredContainer,
			Height:  f.Height,
		}, true
	}
	return StreamCandidate{}, false
}

func nativeQualityLabel(f *youtube.Format) string {
	if f.Width > 0 && f.Height > 0 {
		return fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	if f.QualityLabel != "" {
		return f.QualityLabel
	}
	if f.Quality != "" {
		return f.Quality
	}
	return "Unknown"
}

func bestThumbnailURL(thumbnails youtube.Thumbnails) string {
	bestURL := ""
	var bestArea uint
	for _, thumb := range thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestArea = area
			bestURL = thumb.URL
		}
	}
	return bestURL
}
