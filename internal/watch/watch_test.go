package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	attachfs "attach-go/internal/fs"
)

func startWatcher(t *testing.T, root string, ignore *attachfs.IgnoreMatcher) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan string, 16)
	done := make(chan error, 1)

	w := New(root, ignore, nil)
	go func() { done <- w.Run(ctx, func(rel string) { events <- rel }) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})

	// Give the watcher time to register the existing tree.
	time.Sleep(100 * time.Millisecond)
	return events
}

func waitFor(t *testing.T, events <-chan string, want string) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("no event for %q", want)
		}
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestWatcher_ReportsCreatedFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "notes", "img"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	events := startWatcher(t, root, nil)

	writeFile(t, filepath.Join(root, "a.png"))
	waitFor(t, events, "a.png")

	writeFile(t, filepath.Join(root, "notes", "img", "b.png"))
	waitFor(t, events, "notes/img/b.png")
}

func TestWatcher_NewFolders(t *testing.T) {
	root := t.TempDir()
	events := startWatcher(t, root, nil)

	dir := filepath.Join(root, "new")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	// Give the watcher time to pick up the new folder.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "c.png"))
	waitFor(t, events, "new/c.png")
}

func TestWatcher_SkipsIgnored(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".obsidian"), 0755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	events := startWatcher(t, root, attachfs.NewIgnoreMatcher([]string{".obsidian"}))

	writeFile(t, filepath.Join(root, ".obsidian", "x.png"))
	writeFile(t, filepath.Join(root, ".tmp-123"))
	writeFile(t, filepath.Join(root, "kept.png"))

	timeout := time.After(3 * time.Second)
	for {
		select {
		case got := <-events:
			if got == "kept.png" {
				return
			}
			t.Errorf("unexpected event for ignored path %q", got)
		case <-timeout:
			t.Fatal("no event for kept.png")
		}
	}
}
