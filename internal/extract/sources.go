package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// rawURLPattern finds URLs embedded in plain answer text.
var rawURLPattern = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)

// tripleNewline collapses runs of vertical whitespace left behind by the
// rendered markdown.
var tripleNewline = regexp.MustCompile(`\n{3,}`)

// NormalizeWhitespace collapses 3+ consecutive newlines to exactly 2 and
// trims surrounding whitespace.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(tripleNewline.ReplaceAllString(s, "\n\n"))
}

// IsInternalURL reports whether raw points at the host application itself or
// one of its auth providers. Such links are never answer sources.
func IsInternalURL(raw string, internalHosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Relative links are the app's own navigation.
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, internal := range internalHosts {
		internal = strings.ToLower(internal)
		if host == internal || strings.HasSuffix(host, "."+internal) {
			return true
		}
	}
	return false
}

// ScanTextURLs extracts raw URLs from answer text, with trailing sentence
// punctuation stripped.
func ScanTextURLs(text string) []string {
	matches := rawURLPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimRight(m, ".,;:!?"))
	}
	return out
}

// CollectSources unions link-derived URLs with URLs scanned out of the answer
// text, drops internal/auth hosts, and de-duplicates while preserving first
// occurrence order.
func CollectSources(linkURLs []string, text string, internalHosts []string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || IsInternalURL(raw, internalHosts) {
			return
		}
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}

	for _, u := range linkURLs {
		add(u)
	}
	for _, u := range ScanTextURLs(text) {
		add(u)
	}
	return out
}

// JoinSources renders the final comma-separated source string.
func JoinSources(sources []string) string {
	return strings.Join(sources, ",")
}
