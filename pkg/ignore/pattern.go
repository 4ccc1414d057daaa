// Package ignore implements a glob-pattern ignore predicate consumed by
// pkg/walk. Pattern parsing and matching
// semantics are modeled directly on Mutagen's ignore-pattern package
// (pkg/synchronization/core/ignore/mutagen): glob wildcards via
// doublestar, leading-"/" anchoring to the root, trailing-"/"
// directory-only restriction, leading-"!" negation, and leaf-name
// matching for unanchored, slash-free patterns.
package ignore

import (
	"fmt"
	pathpkg "path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Status describes the outcome of matching a path against the pattern
// set, following the same three-state model Mutagen uses: a path starts
// nominal, can become ignored by a matching pattern, and can become
// unignored again by a later negated pattern.
type Status int

const (
	StatusNominal Status = iota
	StatusIgnored
	StatusUnignored
)

// Pattern is a single parsed ignore pattern.
type Pattern struct {
	negated       bool
	directoryOnly bool
	matchLeaf     bool
	pattern       string
}

// cleanPreservingTrailingSlash is a variant of path.Clean that preserves
// a trailing slash, since that slash carries meaning (directory-only)
// for ignore patterns.
func cleanPreservingTrailingSlash(p string) string {
	var needsTrailingSlash bool
	if l := len(p); l > 1 {
		needsTrailingSlash = p[l-1] == '/'
	}
	cleaned := pathpkg.Clean(p)
	if needsTrailingSlash {
		return cleaned + "/"
	}
	return cleaned
}

// Parse validates and parses a single ignore pattern line.
func Parse(pattern string) (*Pattern, error) {
	if len(pattern) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}

	var negated bool
	if pattern[0] == '!' {
		negated = true
		pattern = pattern[1:]
	}
	if pattern == "" {
		return nil, fmt.Errorf("negated empty pattern")
	}

	pattern = cleanPreservingTrailingSlash(pattern)

	if pattern == "/" || pattern == "//" {
		return nil, fmt.Errorf("root pattern is not allowed")
	}

	var anchored bool
	if pattern[0] == '/' {
		anchored = true
		pattern = pattern[1:]
	}

	var directoryOnly bool
	if pattern[len(pattern)-1] == '/' {
		directoryOnly = true
		pattern = pattern[:len(pattern)-1]
	}

	containsSlash := strings.IndexByte(pattern, '/') >= 0

	if _, err := doublestar.Match(pattern, "a"); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	return &Pattern{
		negated:       negated,
		directoryOnly: directoryOnly,
		matchLeaf:     !anchored && !containsSlash,
		pattern:       pattern,
	}, nil
}

// matches reports whether the pattern matches the given path (relative
// to the synchronization/backup root, using forward slashes).
func (p *Pattern) matches(path string, directory bool) bool {
	if p.directoryOnly && !directory {
		return false
	}
	if match, _ := doublestar.Match(p.pattern, path); match {
		return true
	}
	if p.matchLeaf && path != "" {
		if match, _ := doublestar.Match(p.pattern, pathpkg.Base(path)); match {
			return true
		}
	}
	return false
}
