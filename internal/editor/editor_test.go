package editor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	attachfs "attach-go/internal/fs"
	"attach-go/internal/intake"
	"attach-go/internal/rewrite"
)

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(full, mtime, mtime); err != nil {
			t.Fatalf("Chtimes() error = %v", err)
		}
	}
}

func TestFileEditor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "daily/today.md", "![](a.png)", time.Time{})

	e, err := NewFileEditor(root, "daily/today.md")
	if err != nil {
		t.Fatalf("NewFileEditor() error = %v", err)
	}

	text, ok := e.ActiveText()
	if !ok || text != "![](a.png)" {
		t.Fatalf("ActiveText() = %q, %v", text, ok)
	}
	if err := e.SetActiveText("![](https://cdn/a.png)"); err != nil {
		t.Fatalf("SetActiveText() error = %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "daily", "today.md"))
	if string(data) != "![](https://cdn/a.png)" {
		t.Errorf("note = %q", data)
	}

	entries, _ := os.ReadDir(filepath.Join(root, "daily"))
	if len(entries) != 1 {
		t.Errorf("daily/ has %d entries, want 1 (temp file left behind?)", len(entries))
	}
}

func TestFileEditor_MissingNote(t *testing.T) {
	e, err := NewFileEditor(t.TempDir(), "missing.md")
	if err != nil {
		t.Fatalf("NewFileEditor() error = %v", err)
	}
	if _, ok := e.ActiveText(); ok {
		t.Error("ActiveText() ok = true for a missing note")
	}
}

func TestNewFileEditor_RejectsOutsidePaths(t *testing.T) {
	for _, note := range []string{"", "../outside.md", "/etc/passwd"} {
		if _, err := NewFileEditor(t.TempDir(), note); err == nil {
			t.Errorf("NewFileEditor(%q) expected error", note)
		}
	}
}

func TestRecentEditor(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	writeFile(t, root, "old.md", "old note", base)
	writeFile(t, root, "notes/new.md", "![](shot.png)", base.Add(time.Hour))
	writeFile(t, root, ".obsidian/newest.md", "config", base.Add(2*time.Hour))
	writeFile(t, root, "image.png", "png", base.Add(3*time.Hour))

	e := NewRecentEditor(root, attachfs.NewIgnoreMatcher([]string{".obsidian"}), nil)

	if got := e.ActiveNote(); got != "notes/new.md" {
		t.Fatalf("ActiveNote() = %q, want %q", got, "notes/new.md")
	}
	text, ok := e.ActiveText()
	if !ok || text != "![](shot.png)" {
		t.Fatalf("ActiveText() = %q, %v", text, ok)
	}

	changed, err := rewrite.Apply(e, rewrite.NewReference("shot.png"), "https://cdn/shot.png")
	if err != nil || !changed {
		t.Fatalf("rewrite.Apply() = %v, %v", changed, err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "notes", "new.md"))
	if string(data) != "![](https://cdn/shot.png)" {
		t.Errorf("note = %q", data)
	}
}

func TestRecentEditor_EmptyVault(t *testing.T) {
	e := NewRecentEditor(t.TempDir(), nil, nil)
	if _, ok := e.ActiveText(); ok {
		t.Error("ActiveText() ok = true in an empty vault")
	}
	if err := e.SetActiveText("x"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("SetActiveText() error = %v, want ErrNotExist", err)
	}
}

func TestReadOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "n.md", "![](a.png)", time.Time{})
	fe, _ := NewFileEditor(root, "n.md")

	ro := ReadOnly(fe)
	if _, writable := ro.(intake.WritableEditor); writable {
		t.Fatal("ReadOnly() result is writable")
	}
	if text, ok := ro.ActiveText(); !ok || text != "![](a.png)" {
		t.Errorf("ActiveText() = %q, %v", text, ok)
	}
	changed, err := rewrite.Apply(ro, rewrite.NewReference("a.png"), "https://cdn/a.png")
	if err != nil || changed {
		t.Errorf("rewrite.Apply() = %v, %v; want no change", changed, err)
	}
}

func TestNew(t *testing.T) {
	root := t.TempDir()
	e, err := New(root, "", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := e.(*RecentEditor); !ok {
		t.Errorf("New() without note = %T, want *RecentEditor", e)
	}
	e, err = New(root, "inbox.md", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := e.(*FileEditor); !ok {
		t.Errorf("New() with note = %T, want *FileEditor", e)
	}
}
