package fs

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// WalkFunc is called for every non-ignored entry below the root.
// rel is vault-relative with forward slashes.
type WalkFunc func(rel string, d fs.DirEntry) error

// Walk visits every directory and regular file under root that the matcher
// does not ignore. Ignored directories are not descended into. A nil
// matcher ignores nothing.
func Walk(root string, m *IgnoreMatcher, fn WalkFunc) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		if rel != "" && m != nil && m.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}
		return fn(rel, d)
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", root, err)
	}
	return nil
}
