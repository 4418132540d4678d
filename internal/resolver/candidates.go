package resolver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const maxCandidates = 10

var trailingNumber = regexp.MustCompile(`(\d+)\s*p?(?:\d+)?$`)

// parseHeight extracts the pixel height from labels like "720p", "1080",
// "1280x720" or "1080p60". Returns 0 when nothing parses.
func parseHeight(label string) int {
	m := trailingNumber.FindStringSubmatch(strings.TrimSpace(strings.ToLower(label)))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// dedupeByHeight keeps the first candidate seen per distinct height, drops
// entries with unknown height, and returns the survivors sorted by height
// descending, capped at maxCandidates.
func dedupeByHeight(candidates []StreamCandidate) []StreamCandidate {
	seen := make(map[int]struct{}, len(candidates))
	out := make([]StreamCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Height <= 0 {
			continue
		}
		if _, ok := seen[c.Height]; ok {
			continue
		}
		seen[c.Height] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Height > out[j].Height
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func mimeToExt(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	parts := strings.Split(mimeType, "/")
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
