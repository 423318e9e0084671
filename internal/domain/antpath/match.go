// Package antpath implements Ant-style URL path pattern matching with a
// specificity ordering for overlapping patterns.
package antpath

import (
	"fmt"
	"strings"
)

// Match reports whether path matches the Ant-style pattern:
//
//   - '?' matches exactly one character within a segment
//   - '*' matches zero or more characters within a segment
//   - '**' matches zero or more whole segments
//
// Literal comparison is case-sensitive; sources that require
// case-insensitive matching lowercase their patterns before registration.
func Match(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	return matchSegments(splitPath(pattern), splitPath(path))
}

// splitPath splits a URL path into segments, dropping the leading slash and
// any trailing slash so "/a/b/" and "/a/b" compare equal.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, path []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if len(pat) == 1 {
				return true
			}
			// Try consuming zero or more path segments.
			for i := 0; i <= len(path); i++ {
				if matchSegments(pat[1:], path[i:]) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 {
			return false
		}
		if !matchSegment(pat[0], path[0]) {
			return false
		}
		pat, path = pat[1:], path[1:]
	}
	return len(path) == 0
}

// matchSegment matches a single path segment against a segment pattern
// containing '*' and '?'. Iterative with backtracking on '*'.
func matchSegment(pat, seg string) bool {
	var pi, si int
	star, mark := -1, 0
	for si < len(seg) {
		switch {
		case pi < len(pat) && (pat[pi] == '?' || pat[pi] == seg[si]):
			pi++
			si++
		case pi < len(pat) && pat[pi] == '*':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pat) && pat[pi] == '*' {
		pi++
	}
	return pi == len(pat)
}

// ValidatePattern checks that pattern is a usable Ant-style glob: non-empty,
// starting with "/", with "**" only as a whole segment.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern is empty")
	}
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must start with '/'", pattern)
	}
	for _, seg := range splitPath(pattern) {
		if strings.Contains(seg, "**") && seg != "**" {
			return fmt.Errorf("pattern %q: '**' must be a whole segment", pattern)
		}
	}
	return nil
}
