package pathmatch

import (
	"path/filepath"
	"strings"
)

// MetaDirName is the reserved directory name for the engine's own metadata,
// always implicitly excluded regardless of configured patterns.
const MetaDirName = ".ftm"

// Matcher decides which relative paths under a watched root are tracked.
// Zero value is not usable; build one with New.
type Matcher struct {
	includes []string // normalized suffixes, e.g. ".rs", ".go"
	excludes []Pattern
}

// New compiles a Matcher from the include extension globs (e.g. "*.rs",
// "*.md") and exclude globs (e.g. "**/target/**"). The engine metadata
// directory is always excluded in addition to the configured patterns.
func New(includePatterns, excludeGlobs []string) *Matcher {
	m := &Matcher{}
	for _, inc := range includePatterns {
		m.includes = append(m.includes, suffixOf(inc))
	}
	for _, g := range excludeGlobs {
		m.excludes = append(m.excludes, ParsePattern(g))
	}
	m.excludes = append(m.excludes,
		ParsePattern("**/"+MetaDirName),
		ParsePattern("**/"+MetaDirName+"/**"),
		ParsePattern(MetaDirName),
		ParsePattern(MetaDirName+"/**"),
	)
	return m
}

// suffixOf extracts the matchable suffix from an include glob. Patterns are
// expected in the "*.ext" shape; anything after the last "*" is the suffix
// a file's name must end with.
func suffixOf(glob string) string {
	if i := strings.LastIndex(glob, "*"); i >= 0 {
		return glob[i+1:]
	}
	return glob
}

// ValidRel reports whether rel is an acceptable root-relative path: "/"
// separated, non-empty, no leading slash, no "." or ".." segments, and not
// inside the reserved metadata directory. Every path accepted from an
// external caller (restore targets in particular) must pass this before
// the engine writes through it.
func ValidRel(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return false
	}
	segs := strings.Split(rel, "/")
	for _, seg := range segs {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return segs[0] != MetaDirName
}

// Normalize converts an absolute path under root into a "/"-separated path
// relative to root, regardless of host OS separators.
func Normalize(absPath, root string) (string, error) {
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Matches reports whether rel (already root-relative, "/"-separated) is a
// trackable file: not excluded, and its name matches an include suffix.
func (m *Matcher) Matches(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	if m.isExcluded(rel) {
		return false
	}
	return m.hasIncludedSuffix(rel)
}

// IsExcludedDir reports whether rel names a directory that should be pruned
// entirely during a tree walk, without ever descending into it.
func (m *Matcher) IsExcludedDir(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	return m.isExcluded(rel) || m.isExcluded(rel+"/")
}

func (m *Matcher) isExcluded(rel string) bool {
	segs := splitRel(rel)
	for _, p := range m.excludes {
		if p.Match(segs) {
			return true
		}
	}
	return false
}

func (m *Matcher) hasIncludedSuffix(rel string) bool {
	base := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		base = rel[i+1:]
	}
	for _, suf := range m.includes {
		if suf == "" {
			continue
		}
		if strings.HasSuffix(base, suf) {
			return true
		}
	}
	return false
}
