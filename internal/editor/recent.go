package editor

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	attachfs "attach-go/internal/fs"
	"attach-go/internal/intake"
)

// RecentEditor treats the most recently modified markdown note in the vault
// as the active document, mirroring the note a user just pasted into.
type RecentEditor struct {
	root   string
	ignore *attachfs.IgnoreMatcher
	logger intake.Logger

	mu   sync.Mutex
	last string
}

var _ intake.WritableEditor = (*RecentEditor)(nil)

// NewRecentEditor creates an editor over the vault at root. A nil matcher ignores nothing.
func NewRecentEditor(root string, ignore *attachfs.IgnoreMatcher, logger intake.Logger) *RecentEditor {
	if logger == nil {
		logger = intake.NewNopLogger()
	}
	return &RecentEditor{root: root, ignore: ignore, logger: logger}
}

// ActiveText returns the content of the newest note and remembers it as the
// target of the next SetActiveText.
func (e *RecentEditor) ActiveText() (string, bool) {
	note := e.newestNote()
	if note == "" {
		return "", false
	}
	fe := &FileEditor{root: e.root, note: note}
	text, ok := fe.ActiveText()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	e.last = note
	e.mu.Unlock()
	return text, true
}

func (e *RecentEditor) SetActiveText(text string) error {
	e.mu.Lock()
	note := e.last
	e.mu.Unlock()
	if note == "" {
		note = e.newestNote()
	}
	if note == "" {
		return fs.ErrNotExist
	}
	fe := &FileEditor{root: e.root, note: note}
	return fe.SetActiveText(text)
}

// ActiveNote returns the vault-relative path of the newest note, or "" if none exists.
func (e *RecentEditor) ActiveNote() string {
	return filepath.ToSlash(e.newestNote())
}

func (e *RecentEditor) newestNote() string {
	var (
		newest   string
		newestAt time.Time
	)
	err := attachfs.Walk(e.root, e.ignore, func(rel string, d fs.DirEntry) error {
		if d.IsDir() || !strings.EqualFold(filepath.Ext(rel), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest, newestAt = rel, info.ModTime()
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("scanning vault for notes", "root", e.root, "error", err)
		return ""
	}
	return filepath.FromSlash(newest)
}
