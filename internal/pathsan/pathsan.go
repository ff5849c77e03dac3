// Package pathsan validates user-supplied folder paths relative to the vault root.
package pathsan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPath is returned for paths that could escape the vault.
var ErrInvalidPath = errors.New("invalid path")

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// Sanitize returns raw as a clean vault-relative folder path.
// It rejects parent-directory segments, rooted paths and drive-qualified
// Windows paths. Backslashes become forward slashes, empty and "." segments
// are dropped and trailing separators are stripped. An empty input yields "".
func Sanitize(raw string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	if p == "" {
		return "", nil
	}
	if drivePrefix.MatchString(p) {
		return "", fmt.Errorf("%w: %q is a drive-qualified path", ErrInvalidPath, raw)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q is an absolute path", ErrInvalidPath, raw)
	}

	var segments []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %q contains a parent-directory segment", ErrInvalidPath, raw)
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/"), nil
}

// Lenient normalizes raw without failing: drive prefixes, leading separators,
// parent-directory segments and empty segments are silently removed.
// Use it where rejecting the path outright would drop the user's file.
func Lenient(raw string) string {
	p := strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	p = drivePrefix.ReplaceAllString(p, "")

	var segments []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/")
}
