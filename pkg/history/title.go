package history

import (
	"regexp"
	"strings"
)

const (
	maxTitleLength  = 50
	truncatedLength = 47
	untitled        = "Untitled"
)

var (
	headingPrefix = regexp.MustCompile(`(?m)^#+\s*`)
	boldMarker    = regexp.MustCompile(`\*\*`)
)

// GenerateTitle derives a title from the first line of a generated document.
// Markdown headings and bold markers are stripped; long lines are cut to
// 47 characters plus "...".
func GenerateTitle(result string) string {
	clean := headingPrefix.ReplaceAllString(result, "")
	clean = boldMarker.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)

	line := clean
	if i := strings.IndexByte(clean, '\n'); i >= 0 {
		line = strings.TrimSpace(clean[:i])
	}
	if line == "" {
		return untitled
	}

	runes := []rune(line)
	if len(runes) > maxTitleLength {
		return string(runes[:truncatedLength]) + "..."
	}
	return line
}
