package resolver

import (
	"errors"
	"strings"
)

// SelectCandidate picks the stream to persist for a quality hint. The hint is
// "best", a resolution like "1280x720", or a bare height ("720", "720p").
// Candidates are scanned in their given height-descending order; the first
// entry with a known height at or under the target wins. Without a parseable
// target, or when nothing satisfies it, the head of the list is returned.
func SelectCandidate(candidates []StreamCandidate, quality string) (StreamCandidate, error) {
	if len(candidates) == 0 {
		return StreamCandidate{}, wrapCategory(CategoryNoSuitableFormat, errors.New("no stream candidates to select from"))
	}

	target := 0
	if q := strings.TrimSpace(strings.ToLower(quality)); q != "" && q != "best" {
		target = parseHeight(q)
	}
	if target > 0 {
		for _, c := range candidates {
			if c.Height > 0 && c.Height <= target {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}
