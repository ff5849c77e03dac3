// Package editor provides the document the intake pipeline reads and rewrites.
// Outside an editor host, the "active document" is a note file in the vault.
package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	attachfs "attach-go/internal/fs"
	"attach-go/internal/intake"
)

// FileEditor treats one configured note as the active document.
type FileEditor struct {
	root string
	note string
}

var _ intake.WritableEditor = (*FileEditor)(nil)

// NewFileEditor creates an editor for the vault-relative note path.
func NewFileEditor(root, note string) (*FileEditor, error) {
	note = filepath.FromSlash(strings.TrimSpace(note))
	if note == "" || filepath.IsAbs(note) || strings.HasPrefix(filepath.Clean(note), "..") {
		return nil, fmt.Errorf("active note must be a path inside the vault: %q", note)
	}
	return &FileEditor{root: root, note: filepath.Clean(note)}, nil
}

// Path returns the absolute path of the note.
func (e *FileEditor) Path() string {
	return filepath.Join(e.root, e.note)
}

func (e *FileEditor) ActiveText() (string, bool) {
	data, err := os.ReadFile(e.Path())
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (e *FileEditor) SetActiveText(text string) error {
	return writeNote(e.Path(), text)
}

// writeNote replaces the note at path through a temp file and rename,
// keeping the file's permissions.
func writeNote(path, text string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-note-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.WriteString(text); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing note: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("failed to set note permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace note: %w", err)
	}

	success = true
	return nil
}

type readOnly struct {
	intake.Editor
}

// ReadOnly hides any write capability of e.
func ReadOnly(e intake.Editor) intake.Editor {
	return readOnly{Editor: e}
}

// New returns a FileEditor for activeNote, or a RecentEditor when no note is configured.
func New(root, activeNote string, ignore *attachfs.IgnoreMatcher, logger intake.Logger) (intake.WritableEditor, error) {
	if strings.TrimSpace(activeNote) == "" {
		return NewRecentEditor(root, ignore, logger), nil
	}
	return NewFileEditor(root, activeNote)
}
