package slug

import (
	"regexp"
	"strconv"
	"strings"
)

const fallback = "message"

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// Make derives the base slug for a title: lowercase, strip everything outside
// [a-z0-9 -], whitespace runs to "-", repeated "-" collapsed, edges trimmed.
func Make(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = disallowed.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, "-")
	s = hyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return fallback
	}
	return s
}

// WithSuffix returns base for n == 0 and base-n otherwise.
func WithSuffix(base string, n int) string {
	if n <= 0 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}
