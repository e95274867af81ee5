// Package pathmatch decides whether a path relative to a watched root is
// tracked, based on an include list of extension globs and an exclude list
// of directory-spanning globs.
package pathmatch

import (
	"path"
	"strings"
)

// Pattern is a single compiled exclude glob. Exclude globs are matched
// segment-by-segment against the slash-split relative path, the same way
// gitignore-style patterns are: a "**" segment consumes zero or more path
// segments, any other segment is matched with path.Match semantics (so "*",
// "?" and "[...]" classes work within one segment, but never cross a "/").
type Pattern struct {
	raw      string
	segments []string
}

// ParsePattern compiles a single glob. Leading and trailing slashes are
// insignificant; "**" segments are kept as-is for the matcher below.
func ParsePattern(glob string) Pattern {
	trimmed := strings.Trim(glob, "/")
	return Pattern{raw: glob, segments: strings.Split(trimmed, "/")}
}

func (p Pattern) String() string { return p.raw }

// Match reports whether the slash-split relative path (no leading slash,
// "" for empty) matches this pattern.
func (p Pattern) Match(pathSegments []string) bool {
	return matchSegments(p.segments, pathSegments)
}

// matchSegments implements the classic doublestar backtracking algorithm:
// a literal pattern segment must match the corresponding path segment via
// path.Match; a "**" pattern segment may absorb any number (including zero)
// of path segments, tried shortest-first (zero, then one more at a time)
// until the rest of the pattern matches.
func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}

	if pattern[0] == "**" {
		if matchSegments(pattern[1:], name) {
			return true
		}
		for i := 1; i <= len(name); i++ {
			if matchSegments(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	}

	if len(name) == 0 {
		return false
	}

	ok, err := path.Match(pattern[0], name[0])
	if err != nil || !ok {
		return false
	}

	return matchSegments(pattern[1:], name[1:])
}

// splitRel splits a normalized ("/"-separated, no leading "/") relative
// path into segments. An empty path yields no segments.
func splitRel(rel string) []string {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}
