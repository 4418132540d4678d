package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyPrefix   = "youtube/"
	maxTitleLen = 50
)

// objectKey builds "youtube/{safe-title}_{timestamp}_{suffix}.mp4". The
// random suffix keeps repeat uploads of the same title from colliding.
func objectKey(title string, now time.Time) string {
	return fmt.Sprintf("%s%s_%s_%s.mp4",
		keyPrefix,
		SanitizeTitle(title),
		now.Format("20060102_150405"),
		uuid.NewString()[:8],
	)
}

// SanitizeTitle reduces a video title to alphanumerics, spaces, hyphens and
// underscores, capped at 50 characters.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if len(safe) > maxTitleLen {
		safe = strings.TrimSpace(safe[:maxTitleLen])
	}
	if safe == "" {
		return "video"
	}
	return safe
}
