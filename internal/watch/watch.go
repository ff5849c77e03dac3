// Package watch reports files created anywhere inside a vault.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	attachfs "attach-go/internal/fs"
	"attach-go/internal/intake"
)

// Watcher watches a vault directory tree. fsnotify watches are not
// recursive, so every non-ignored folder is added individually and folders
// created later are added as they appear.
type Watcher struct {
	root   string
	ignore *attachfs.IgnoreMatcher
	logger intake.Logger
}

// New creates a watcher for the vault at root. A nil matcher ignores nothing.
func New(root string, ignore *attachfs.IgnoreMatcher, logger intake.Logger) *Watcher {
	if logger == nil {
		logger = intake.NewNopLogger()
	}
	return &Watcher{root: root, ignore: ignore, logger: logger}
}

// Run calls fn with the vault-relative path of every regular file created
// below the root until ctx is cancelled. Files inside a newly created folder
// are reported too. fn is called from the watch goroutine and should not block.
func (w *Watcher) Run(ctx context.Context, fn func(rel string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root, nil); err != nil {
		return err
	}
	w.logger.Info("watching vault", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			w.handleCreate(fsw, event.Name, fn)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleCreate(fsw *fsnotify.Watcher, name string, fn func(string)) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil {
		w.logger.Warn("event outside vault", "path", name, "error", err)
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ignore != nil && w.ignore.Match(rel) {
		return
	}

	info, err := os.Lstat(name)
	if err != nil {
		// Already gone, e.g. a temp file renamed into place.
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("stat created entry", "path", rel, "error", err)
		}
		return
	}

	switch {
	case info.IsDir():
		if err := w.addTree(fsw, name, fn); err != nil {
			w.logger.Warn("watching new folder", "path", rel, "error", err)
		}
	case info.Mode().IsRegular():
		w.logger.Debug("file created", "path", rel)
		fn(rel)
	}
}

// addTree watches dir and every non-ignored folder below it. When fn is
// non-nil, regular files found on the way are reported.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string, fn func(string)) error {
	return attachfs.Walk(dir, nil, func(rel string, d fs.DirEntry) error {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		vaultRel, err := filepath.Rel(w.root, full)
		if err != nil {
			return err
		}
		vaultRel = filepath.ToSlash(vaultRel)
		if vaultRel != "." && w.ignore != nil && w.ignore.Match(vaultRel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if err := fsw.Add(full); err != nil {
				return fmt.Errorf("watching %s: %w", full, err)
			}
			return nil
		}
		if fn != nil {
			fn(vaultRel)
		}
		return nil
	})
}
