package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns are shop chrome paths that never hold a product.
var defaultExcludePatterns = []string{
	"/cart/*",
	"/checkout/*",
	"/my-account/*",
	"/account/*",
	"/login/*",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Uses path.Match from stdlib for proper glob matching, plus a segmented
// match so "/cart/*" matches multi-level paths like "/cart/items/3".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/cart/*", "/*/page/*").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lowered}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathExcluded(u.Path)
}

// isPathExcluded checks a URL path against all patterns.
func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.TrimSuffix(strings.ToLower(urlPath), "/")
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/cart/*"
// matches both "/cart/view" and "/cart/deep/nested/path".
//
// It first tries an exact path.Match. If the pattern ends in "/*" and that
// fails, it also tries matching the URL path prefix against the pattern
// directory, so "/cart/*" matches "/cart" and "/cart/a/b".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
		// Prefixes with wildcards ("/*/page/*") match segment by segment.
		if strings.ContainsAny(prefix, "*?[") {
			segs := strings.Split(urlPath, "/")
			depth := strings.Count(prefix, "/") + 1
			if len(segs) >= depth {
				if ok, _ := path.Match(prefix, strings.Join(segs[:depth], "/")); ok {
					return true
				}
			}
		}
	}

	return false
}
