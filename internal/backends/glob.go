package backends

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobMatcher matches workspace paths against a watch glob. It understands
// "*", "?", "**" (any number of path segments), "[...]" classes and "{a,b}"
// alternatives.
type GlobMatcher struct {
	Pattern string
	glob    string
}

// CompileGlob compiles a watch glob. Patterns without a slash match at any
// depth, so "*.go" behaves like "**/*.go".
func CompileGlob(pattern string) (*GlobMatcher, error) {
	p := strings.TrimPrefix(pattern, "./")
	if !strings.Contains(p, "/") {
		p = "**/" + p
	}
	p = strings.TrimPrefix(p, "/")

	if !doublestar.ValidatePattern(p) {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, doublestar.ErrBadPattern)
	}
	return &GlobMatcher{Pattern: pattern, glob: p}, nil
}

// Match reports whether path matches the glob. Workspace paths are matched
// without their leading slash.
func (g *GlobMatcher) Match(path string) bool {
	return doublestar.MatchUnvalidated(g.glob, strings.TrimPrefix(path, "/"))
}
