package intake

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is read from the root of every directory being collected.
const IgnoreFileName = ".docstageignore"

type ignorePattern struct {
	pattern   string
	matchPath bool // match the slash-separated relative path instead of the base name
}

// IgnoreMatcher decides which files a directory walk skips.
// Patterns without '/' match any single path element, so "*.tmp" skips
// files anywhere and ".git" prunes the whole directory. Patterns with '/'
// match the relative path from the walk root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher. Blank lines and '#' comments are skipped.
// The ignore file itself is always ignored.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	patterns := []ignorePattern{{pattern: IgnoreFileName}}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSuffix(raw, "/")
		patterns = append(patterns, ignorePattern{
			pattern:   strings.TrimPrefix(raw, "/"),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// With returns a matcher holding m's patterns plus more.
func (m *IgnoreMatcher) With(rawPatterns []string) *IgnoreMatcher {
	extra := NewIgnoreMatcher(rawPatterns)
	return &IgnoreMatcher{patterns: append(append([]ignorePattern(nil), m.patterns...), extra.patterns[1:]...)}
}

// Match reports whether relativePath, a file or directory under the walk
// root, is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)

	for _, p := range m.patterns {
		target := base
		if p.matchPath {
			target = normalized
		}
		// A malformed pattern matches nothing.
		if ok, err := filepath.Match(p.pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil if it does
// not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
