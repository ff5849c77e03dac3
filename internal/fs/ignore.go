package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-vault file listing extra ignore patterns.
const IgnoreFileName = ".attachignore"

// defaultIgnorePatterns are always applied regardless of config or .attachignore.
// The temp-file patterns cover in-progress atomic writes by the vault and cache.
var defaultIgnorePatterns = []string{IgnoreFileName, ".tmp-*"}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against each path element
}

// IgnoreMatcher checks vault paths against a set of ignore patterns.
// Patterns without '/' match any single element of the path, so ".obsidian"
// ignores the folder and everything below it.
// Patterns with '/' match against the full relative path from the vault root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus the defaults.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	m.add(defaultIgnorePatterns)
	m.add(rawPatterns)
	return m
}

// LoadIgnoreMatcher builds a matcher from the configured patterns and the
// vault's ignore file, if present.
func LoadIgnoreMatcher(root string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(append(append([]string(nil), configured...), fromFile...)), nil
}

func (m *IgnoreMatcher) add(rawPatterns []string) {
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.Trim(filepath.ToSlash(raw), "/")
		if raw == "" {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
}

// Match reports whether the given vault-relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := strings.Trim(filepath.ToSlash(relativePath), "/")
	if normalized == "" || normalized == "." {
		return false
	}
	elements := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			if matchPathPrefix(p.pattern, normalized) {
				return true
			}
			continue
		}
		for _, el := range elements {
			// A bad pattern never matches.
			if matched, err := path.Match(p.pattern, el); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// matchPathPrefix matches pattern against p and against each of its parent folders.
func matchPathPrefix(pattern, p string) bool {
	for {
		if matched, err := path.Match(pattern, p); err == nil && matched {
			return true
		}
		parent := path.Dir(p)
		if parent == "." || parent == p {
			return false
		}
		p = parent
	}
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
