package resolver

import (
	"fmt"
	"regexp"
)

// Matchers are tried in order; the first capture wins.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?(?:[^#&]*&)*v=([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`^([A-Za-z0-9_-]{11})$`),
}

// ExtractVideoID pulls the 11-character video ID out of the supported URL
// shapes (watch, youtu.be, embed, shorts) or accepts a bare ID.
func ExtractVideoID(raw string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}
	return "", wrapCategory(CategoryInvalidInput, fmt.Errorf("not a video URL: %q", raw))
}
