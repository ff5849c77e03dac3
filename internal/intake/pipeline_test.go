package intake_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"strings"
	"sync"
	"testing"
	"time"

	"attach-go/internal/contenthash"
	"attach-go/internal/intake"
	"attach-go/internal/testutil"
	"attach-go/internal/vault"
)

type harness struct {
	vault    *vault.MemoryVault
	editor   intake.Editor
	uploader *testutil.FakeUploader
	presets  *testutil.FakePresetCreator
	cache    *testutil.MemoryCache
	settings *intake.MemorySettings
	notifier *testutil.RecordingNotifier
	history  *testutil.MemoryHistory
	clock    *testutil.StubClock
	hasher   intake.Hasher
	opts     intake.Options
}

func uploadSettings() intake.Settings {
	return intake.Settings{
		AutoUpload:   true,
		AccountID:    "demo",
		UploadPreset: "unsigned",
	}
}

func newHarness(t *testing.T, s intake.Settings, doc string) *harness {
	t.Helper()
	clock := testutil.FixedClock()
	return &harness{
		vault:    vault.NewMemoryVault(clock),
		editor:   testutil.NewMemoryEditor(doc),
		uploader: testutil.NewFakeUploader(),
		presets:  &testutil.FakePresetCreator{},
		cache:    testutil.NewMemoryCache(),
		settings: intake.NewMemorySettings(s),
		notifier: testutil.NewRecordingNotifier(),
		history:  testutil.NewMemoryHistory(),
		clock:    clock,
		hasher:   contenthash.Hasher{},
		opts: intake.Options{
			StartupGrace:          5 * time.Second,
			ReferenceWaitRetries:  2,
			ReferenceWaitInterval: time.Millisecond,
			MaxConcurrentUploads:  3,
		},
	}
}

func (h *harness) pipeline(t *testing.T) *intake.Pipeline {
	t.Helper()
	p, err := intake.NewPipeline(intake.Deps{
		Vault:    h.vault,
		Editor:   h.editor,
		Uploader: h.uploader,
		Presets:  h.presets,
		Cache:    h.cache,
		Settings: h.settings,
		Notifier: h.notifier,
		History:  h.history,
		Hasher:   h.hasher,
		Clock:    h.clock,
		IDs:      testutil.NewStubIDGenerator(),
	}, nil, h.opts)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func (h *harness) text() string {
	text, _ := h.editor.ActiveText()
	return text
}

func expectStatus(t *testing.T, out intake.Outcome, status intake.Status, reason intake.SkipReason) {
	t.Helper()
	if out.Status != status || out.Reason != reason {
		t.Fatalf("Process() = %s (reason %q, err %v), want %s (reason %q)", out, out.Reason, out.Err, status, reason)
	}
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	h := newHarness(t, uploadSettings(), "")
	full := intake.Deps{Vault: h.vault, Cache: h.cache, Settings: h.settings, Hasher: h.hasher}

	if _, err := intake.NewPipeline(full, nil, intake.DefaultOptions()); err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	for name, deps := range map[string]intake.Deps{
		"vault":    {Cache: h.cache, Settings: h.settings, Hasher: h.hasher},
		"cache":    {Vault: h.vault, Settings: h.settings, Hasher: h.hasher},
		"settings": {Vault: h.vault, Cache: h.cache, Hasher: h.hasher},
		"hasher":   {Vault: h.vault, Cache: h.cache, Settings: h.settings},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := intake.NewPipeline(deps, nil, intake.DefaultOptions()); err == nil {
				t.Errorf("NewPipeline() without %s expected error", name)
			}
		})
	}
}

func TestPipeline_Upload(t *testing.T) {
	h := newHarness(t, uploadSettings(), "Look: ![shot](photo.png)")
	data := []byte("png bytes")
	h.vault.AddFile("photo.png", data)
	p := h.pipeline(t)

	out := p.Process(context.Background(), "photo.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
	wantURL := "https://media.example/1/photo.png"
	if out.URL != wantURL {
		t.Errorf("URL = %q, want %q", out.URL, wantURL)
	}
	if out.ContentHash != testutil.SHA1Hex(data) {
		t.Errorf("ContentHash = %q, want %q", out.ContentHash, testutil.SHA1Hex(data))
	}
	if h.text() != "Look: ![shot]("+wantURL+")" {
		t.Errorf("document = %q", h.text())
	}
	entry, _ := h.cache.Get(testutil.SHA1Hex(data))
	if entry == nil || entry.URL != wantURL || entry.Uploader != "fake" || entry.Filename != "photo.png" {
		t.Errorf("cache entry = %+v", entry)
	}
	if got := h.notifier.Count("Uploaded photo.png"); got != 1 {
		t.Errorf("upload notices = %d, want 1 (messages %v)", got, h.notifier.Messages())
	}
	if _, ok := h.vault.Data("photo.png"); !ok {
		t.Error("source deleted without delete_source_after_upload")
	}
}

func TestPipeline_CacheMakesUploadsIdempotent(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png) and ![](b.png)")
	data := []byte("same content")
	h.vault.AddFile("a.png", data)
	h.vault.AddFile("b.png", data)
	p := h.pipeline(t)

	first := p.Process(context.Background(), "a.png", intake.ModeAuto)
	second := p.Process(context.Background(), "b.png", intake.ModeAuto)

	expectStatus(t, first, intake.StatusUploaded, intake.ReasonNone)
	expectStatus(t, second, intake.StatusUploaded, intake.ReasonNone)
	if h.uploader.Calls() != 1 {
		t.Errorf("uploader calls = %d, want 1", h.uploader.Calls())
	}
	if !second.CacheHit || first.CacheHit {
		t.Errorf("CacheHit = %v, %v; want false, true", first.CacheHit, second.CacheHit)
	}
	if first.URL != second.URL {
		t.Errorf("URLs differ: %q vs %q", first.URL, second.URL)
	}
	if strings.Count(h.text(), first.URL) != 2 {
		t.Errorf("document = %q, want both links rewritten", h.text())
	}
	if h.notifier.Count("b.png already uploaded") != 1 {
		t.Errorf("messages = %v", h.notifier.Messages())
	}
}

func TestPipeline_CopyDoesNotLoop(t *testing.T) {
	h := newHarness(t, intake.Settings{LocalCopy: true, LocalCopyFolder: "assets"}, "![](photo.png)")
	h.vault.AddFile("photo.png", []byte("pixels"))
	p := h.pipeline(t)

	out := p.Process(context.Background(), "photo.png", intake.ModeAuto)
	expectStatus(t, out, intake.StatusCopiedLocally, intake.ReasonNone)
	if out.LocalPath != "assets/photo.png" {
		t.Fatalf("LocalPath = %q, want %q", out.LocalPath, "assets/photo.png")
	}
	if got, _ := h.vault.Data("assets/photo.png"); !bytes.Equal(got, []byte("pixels")) {
		t.Errorf("copy content = %q", got)
	}
	if h.text() != "![](assets/photo.png)" {
		t.Errorf("document = %q", h.text())
	}

	// The watcher reports the copy as a new file.
	again := p.Process(context.Background(), "assets/photo.png", intake.ModeAuto)
	expectStatus(t, again, intake.StatusSkipped, intake.ReasonPluginWrite)
	if h.vault.Writes() != 1 {
		t.Errorf("vault writes = %d, want 1", h.vault.Writes())
	}
	if h.uploader.Calls() != 0 {
		t.Errorf("uploader calls = %d, want 0", h.uploader.Calls())
	}
}

func TestPipeline_CopyNameCollision(t *testing.T) {
	h := newHarness(t, intake.Settings{LocalCopy: true, LocalCopyFolder: "assets"}, "![](photo.png)")
	h.vault.AddFile("assets/photo.png", []byte("other picture"))
	h.vault.AddFile("photo.png", []byte("new picture"))
	p := h.pipeline(t)

	out := p.Process(context.Background(), "photo.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusCopiedLocally, intake.ReasonNone)
	want := "assets/photo-20240115103000.png"
	if out.LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", out.LocalPath, want)
	}
	if got, _ := h.vault.Data("assets/photo.png"); !bytes.Equal(got, []byte("other picture")) {
		t.Error("existing file was overwritten")
	}
}

func TestPipeline_DuplicateDetection(t *testing.T) {
	h := newHarness(t, intake.Settings{LocalCopy: true, LocalCopyFolder: "assets"}, "![](photo.png)")
	h.vault.AddFile("assets/existing.png", []byte("pixels"))
	h.vault.AddFile("assets/same-size.png", []byte("PIXELS"))
	h.vault.AddFile("photo.png", []byte("pixels"))
	p := h.pipeline(t)

	out := p.Process(context.Background(), "photo.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusCopiedLocally, intake.ReasonNone)
	if out.LocalPath != "assets/existing.png" {
		t.Errorf("LocalPath = %q, want %q", out.LocalPath, "assets/existing.png")
	}
	if h.vault.Writes() != 0 {
		t.Errorf("vault writes = %d, want 0", h.vault.Writes())
	}
	if h.text() != "![](assets/existing.png)" {
		t.Errorf("document = %q", h.text())
	}
}

func TestPipeline_SizeLimit(t *testing.T) {
	s := uploadSettings()
	s.MaxUploadSizeMB = 1
	doc := "![](big.png) ![](small.png) ![](exact.png)"

	t.Run("over the limit is skipped", func(t *testing.T) {
		h := newHarness(t, s, doc)
		h.vault.AddFile("big.png", make([]byte, 5*1024*1024))
		out := h.pipeline(t).Process(context.Background(), "big.png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusSkipped, intake.ReasonSizeLimitExceeded)
		if h.uploader.Calls() != 0 {
			t.Errorf("uploader calls = %d, want 0", h.uploader.Calls())
		}
		if h.notifier.Count("auto-upload limit") != 1 {
			t.Errorf("messages = %v", h.notifier.Messages())
		}
	})

	t.Run("under and at the limit are uploaded", func(t *testing.T) {
		h := newHarness(t, s, doc)
		h.vault.AddFile("small.png", make([]byte, 512*1024))
		h.vault.AddFile("exact.png", bytes.Repeat([]byte{1}, 1024*1024))
		p := h.pipeline(t)

		expectStatus(t, p.Process(context.Background(), "small.png", intake.ModeAuto), intake.StatusUploaded, intake.ReasonNone)
		expectStatus(t, p.Process(context.Background(), "exact.png", intake.ModeAuto), intake.StatusUploaded, intake.ReasonNone)
	})

	t.Run("manual intake ignores the limit", func(t *testing.T) {
		h := newHarness(t, s, doc)
		h.vault.AddFile("big.png", make([]byte, 5*1024*1024))
		out := h.pipeline(t).Process(context.Background(), "big.png", intake.ModeManual)

		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
	})
}

func TestPipeline_MissingConfigurationWarnsOnce(t *testing.T) {
	s := intake.Settings{AutoUpload: true, AccountID: "demo"}
	h := newHarness(t, s, "![](a.png) ![](b.png)")
	h.vault.AddFile("a.png", []byte("a"))
	h.vault.AddFile("b.png", []byte("b"))
	p := h.pipeline(t)

	for _, path := range []string{"a.png", "b.png"} {
		out := p.Process(context.Background(), path, intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonConfigurationMissing)
	}
	if got := h.notifier.Count("Upload skipped"); got != 1 {
		t.Errorf("configuration notices = %d, want 1 (messages %v)", got, h.notifier.Messages())
	}

	p.Process(context.Background(), "a.png", intake.ModeManual)
	if got := h.notifier.Count("Upload skipped"); got != 2 {
		t.Errorf("configuration notices after manual intake = %d, want 2", got)
	}
	if h.uploader.Calls() != 0 {
		t.Errorf("uploader calls = %d, want 0", h.uploader.Calls())
	}
}

func TestPipeline_PresetRejectionWarnsOnce(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png) ![](b.png)")
	h.uploader.Err = intake.NewUploadRejectedError(400, "Upload preset not found")
	h.vault.AddFile("a.png", []byte("a"))
	h.vault.AddFile("b.png", []byte("b"))
	p := h.pipeline(t)

	for _, path := range []string{"a.png", "b.png"} {
		out := p.Process(context.Background(), path, intake.ModeAuto)
		expectStatus(t, out, intake.StatusFailed, intake.ReasonNone)
		if out.Kind != intake.KindUploadRejected {
			t.Errorf("Kind = %q, want %q", out.Kind, intake.KindUploadRejected)
		}
		var rejected *intake.UploadRejectedError
		if !errors.As(out.Err, &rejected) || rejected.Status != 400 {
			t.Errorf("Err = %v, want UploadRejectedError(400)", out.Err)
		}
	}
	if got := h.notifier.Count("check the upload preset"); got != 1 {
		t.Errorf("preset notices = %d, want 1 (messages %v)", got, h.notifier.Messages())
	}
	if h.uploader.Calls() != 2 {
		t.Errorf("uploader calls = %d, want 2", h.uploader.Calls())
	}

	p.Process(context.Background(), "a.png", intake.ModeManual)
	if got := h.notifier.Count("check the upload preset"); got != 2 {
		t.Errorf("preset notices after manual intake = %d, want 2", got)
	}
}

func TestPipeline_TransportFailure(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	h.uploader.Err = errors.New("connection reset")
	h.vault.AddFile("a.png", []byte("a"))

	out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusFailed, intake.ReasonNone)
	if out.Kind != intake.KindUploadFailed {
		t.Errorf("Kind = %q, want %q", out.Kind, intake.KindUploadFailed)
	}
	if h.cache.Len() != 0 {
		t.Errorf("cache has %d entries after a failed upload", h.cache.Len())
	}
	if h.text() != "![](a.png)" {
		t.Errorf("document = %q, want unchanged", h.text())
	}
}

func TestPipeline_UploadFailsCopySucceeds(t *testing.T) {
	s := uploadSettings()
	s.LocalCopy = true
	s.LocalCopyFolder = "assets"
	s.DeleteSource = true
	h := newHarness(t, s, "![](a.png)")
	h.uploader.Err = errors.New("timeout")
	h.vault.AddFile("a.png", []byte("a"))

	out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusCopiedLocally, intake.ReasonNone)
	if out.Kind != intake.KindUploadFailed || out.Err == nil {
		t.Errorf("Kind, Err = %q, %v; want upload failure recorded", out.Kind, out.Err)
	}
	if h.text() != "![](assets/a.png)" {
		t.Errorf("document = %q", h.text())
	}
	if _, ok := h.vault.Data("a.png"); !ok {
		t.Error("source deleted although the upload failed")
	}
}

func TestPipeline_Guards(t *testing.T) {
	t.Run("not an image", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "")
		h.vault.AddFile("doc.pdf", []byte("pdf"))
		out := h.pipeline(t).Process(context.Background(), "doc.pdf", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonNotImage)
		if len(h.history.Records()) != 0 {
			t.Error("guard skips should not be recorded")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "")
		out := h.pipeline(t).Process(context.Background(), "gone.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonNotFound)
	})

	t.Run("preexisting file", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "![](old.png)")
		h.vault.AddFileAt("old.png", []byte("old"), h.clock.Now().Add(-time.Minute))
		p := h.pipeline(t)

		out := p.Process(context.Background(), "old.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonPreexisting)

		manual := p.Process(context.Background(), "old.png", intake.ModeManual)
		expectStatus(t, manual, intake.StatusUploaded, intake.ReasonNone)
	})

	t.Run("unknown creation time counts as preexisting", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "![](a.png)")
		h.vault.AddFileAt("a.png", []byte("a"), time.Time{})
		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonPreexisting)
	})

	t.Run("file within the startup grace", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "![](a.png)")
		h.vault.AddFileAt("a.png", []byte("a"), h.clock.Now().Add(-4*time.Second))
		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
	})

	t.Run("not referenced in the active document", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "some unrelated text")
		h.vault.AddFile("a.png", []byte("a"))
		p := h.pipeline(t)

		out := p.Process(context.Background(), "a.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonNotReferenced)
		if h.uploader.Calls() != 0 {
			t.Errorf("uploader calls = %d, want 0", h.uploader.Calls())
		}

		manual := p.Process(context.Background(), "a.png", intake.ModeManual)
		expectStatus(t, manual, intake.StatusUploaded, intake.ReasonNone)
	})

	t.Run("no open document", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "")
		h.editor = testutil.NewClosedEditor()
		h.vault.AddFile("a.png", []byte("a"))
		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonNotReferenced)
	})

	t.Run("nothing enabled", func(t *testing.T) {
		h := newHarness(t, intake.Settings{AutoUpload: false, AccountID: "demo", UploadPreset: "p"}, "![](a.png)")
		h.vault.AddFile("a.png", []byte("a"))
		p := h.pipeline(t)

		out := p.Process(context.Background(), "a.png", intake.ModeAuto)
		expectStatus(t, out, intake.StatusSkipped, intake.ReasonNothingToDo)

		manual := p.Process(context.Background(), "a.png", intake.ModeManual)
		expectStatus(t, manual, intake.StatusUploaded, intake.ReasonNone)
	})
}

func TestPipeline_InFlightGuard(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	h.vault.AddFile("a.png", []byte("a"))
	started := make(chan struct{})
	h.uploader.Block = make(chan struct{})
	h.uploader.OnUpload = func() { close(started) }
	p := h.pipeline(t)

	p.Submit(context.Background(), "a.png")
	<-started

	out := p.Process(context.Background(), "a.png", intake.ModeAuto)
	expectStatus(t, out, intake.StatusSkipped, intake.ReasonInFlight)
	if !p.State().InFlight("a.png") {
		t.Error("InFlight() = false during upload")
	}

	close(h.uploader.Block)
	p.Wait()

	if h.uploader.Calls() != 1 {
		t.Errorf("uploader calls = %d, want 1", h.uploader.Calls())
	}
	if p.State().InFlight("a.png") {
		t.Error("InFlight() = true after the attempt finished")
	}
}

// gatedUploader blocks every Upload until release is closed and records
// how many calls were running at the same time.
type gatedUploader struct {
	mu      sync.Mutex
	active  int
	peak    int
	done    int
	release chan struct{}
}

func (u *gatedUploader) Upload(ctx context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	u.mu.Lock()
	u.active++
	if u.active > u.peak {
		u.peak = u.active
	}
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.active--
		u.done++
		u.mu.Unlock()
	}()

	select {
	case <-u.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &intake.UploadResult{URL: "https://media.example/" + filename}, nil
}

func (u *gatedUploader) Tag() string { return "gated" }

func (u *gatedUploader) counts() (active, peak, done int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active, u.peak, u.done
}

func TestPipeline_UploadConcurrencyLimit(t *testing.T) {
	const files = 7

	var doc strings.Builder
	for i := 0; i < files; i++ {
		fmt.Fprintf(&doc, "![](%d.png)\n", i)
	}
	h := newHarness(t, uploadSettings(), doc.String())
	for i := 0; i < files; i++ {
		h.vault.AddFile(fmt.Sprintf("%d.png", i), []byte{byte(i)})
	}
	gate := &gatedUploader{release: make(chan struct{})}
	p, err := intake.NewPipeline(intake.Deps{
		Vault:    h.vault,
		Editor:   h.editor,
		Uploader: gate,
		Cache:    h.cache,
		Settings: h.settings,
		Hasher:   h.hasher,
		Clock:    h.clock,
	}, nil, h.opts)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	limit := h.opts.MaxConcurrentUploads

	for i := 0; i < files; i++ {
		p.Submit(context.Background(), fmt.Sprintf("%d.png", i))
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if active, _, _ := gate.counts(); active == limit {
			break
		}
		if time.Now().After(deadline) {
			active, _, _ := gate.counts()
			t.Fatalf("active uploads = %d, want %d", active, limit)
		}
		time.Sleep(5 * time.Millisecond)
	}
	// The remaining attempts stay queued behind the limit.
	time.Sleep(50 * time.Millisecond)
	if active, peak, _ := gate.counts(); active != limit || peak != limit {
		t.Fatalf("active, peak = %d, %d; want %d, %d", active, peak, limit, limit)
	}

	close(gate.release)
	p.Wait()

	active, peak, done := gate.counts()
	if active != 0 || done != files {
		t.Errorf("active, done = %d, %d; want 0, %d", active, done, files)
	}
	if peak != limit {
		t.Errorf("peak = %d, want %d", peak, limit)
	}
	if h.cache.Len() != files {
		t.Errorf("cache entries = %d, want %d", h.cache.Len(), files)
	}
}

func TestPipeline_InFlightGraceDelaysRelease(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	h.opts.InFlightGrace = 50 * time.Millisecond
	h.vault.AddFile("a.png", []byte("a"))
	p := h.pipeline(t)

	p.Process(context.Background(), "a.png", intake.ModeAuto)
	out := p.Process(context.Background(), "a.png", intake.ModeAuto)
	expectStatus(t, out, intake.StatusSkipped, intake.ReasonInFlight)

	time.Sleep(150 * time.Millisecond)
	if p.State().InFlight("a.png") {
		t.Error("InFlight() = true after the grace period")
	}
}

func TestPipeline_DeleteSource(t *testing.T) {
	t.Run("after upload", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		h := newHarness(t, s, "![](a.png)")
		h.vault.AddFile("a.png", []byte("a"))

		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
		if _, ok := h.vault.Data("a.png"); ok {
			t.Error("source still present")
		}
	})

	t.Run("after upload and copy", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		s.LocalCopy = true
		s.LocalCopyFolder = "assets"
		h := newHarness(t, s, "![](a.png)")
		h.vault.AddFile("a.png", []byte("a"))

		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusUploadedAndCopied, intake.ReasonNone)
		if _, ok := h.vault.Data("a.png"); ok {
			t.Error("source still present")
		}
		if _, ok := h.vault.Data("assets/a.png"); !ok {
			t.Error("local copy missing")
		}
		if h.text() != "![]("+out.URL+")" {
			t.Errorf("document = %q", h.text())
		}
	})

	t.Run("source already in the copy folder", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		s.LocalCopy = true
		s.LocalCopyFolder = "assets"
		h := newHarness(t, s, "![](assets/a.png)")
		h.vault.AddFile("assets/a.png", []byte("a"))

		out := h.pipeline(t).Process(context.Background(), "assets/a.png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
		if _, ok := h.vault.Data("assets/a.png"); !ok {
			t.Error("file in the copy folder was deleted")
		}
		if h.vault.Writes() != 0 || h.vault.Deletes() != 0 {
			t.Errorf("writes, deletes = %d, %d; want 0, 0", h.vault.Writes(), h.vault.Deletes())
		}
	})

	t.Run("name with parentheses", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		h := newHarness(t, s, "![](<Pasted image (1).png>)")
		h.vault.AddFile("Pasted image (1).png", []byte("a"))

		out := h.pipeline(t).Process(context.Background(), "Pasted image (1).png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
		if h.text() != "![](<"+out.URL+">)" {
			t.Errorf("document = %q", h.text())
		}
		if _, ok := h.vault.Data("Pasted image (1).png"); ok {
			t.Error("source still present")
		}
	})

	t.Run("kept when no link was rewritten", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		h := newHarness(t, s, "dropped a.png here")
		h.vault.AddFile("a.png", []byte("a"))

		out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

		expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
		if h.text() != "dropped a.png here" {
			t.Errorf("document = %q, want unchanged", h.text())
		}
		if _, ok := h.vault.Data("a.png"); !ok {
			t.Error("source deleted although the document still points at it")
		}
	})

	t.Run("kept with a read-only editor", func(t *testing.T) {
		s := uploadSettings()
		s.DeleteSource = true
		h := newHarness(t, s, "")
		h.editor = testutil.ReadOnlyEditor{Text: "![](a.png)"}
		h.vault.AddFile("a.png", []byte("a"))

		h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

		if h.vault.Deletes() != 0 {
			t.Errorf("deletes = %d, want 0", h.vault.Deletes())
		}
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, uploadSettings(), "![](a.png)")
		h.vault.AddFile("a.png", []byte("a"))
		h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)
		if h.vault.Deletes() != 0 {
			t.Errorf("deletes = %d, want 0", h.vault.Deletes())
		}
	})
}

func TestPipeline_ReadOnlyEditor(t *testing.T) {
	h := newHarness(t, uploadSettings(), "")
	h.editor = testutil.ReadOnlyEditor{Text: "![](a.png)"}
	h.vault.AddFile("a.png", []byte("a"))

	out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusUploaded, intake.ReasonNone)
	if h.text() != "![](a.png)" {
		t.Errorf("document = %q, want unchanged", h.text())
	}
}

type panicHasher struct{}

func (panicHasher) Hash([]byte) (string, error) { panic("digest exploded") }

func TestPipeline_PanicBecomesInternalFailure(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	h.hasher = panicHasher{}
	h.vault.AddFile("a.png", []byte("a"))
	p := h.pipeline(t)

	out := p.Process(context.Background(), "a.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusFailed, intake.ReasonNone)
	if out.Kind != intake.KindInternal {
		t.Errorf("Kind = %q, want %q", out.Kind, intake.KindInternal)
	}
	if h.notifier.Count("internal error") != 1 {
		t.Errorf("messages = %v", h.notifier.Messages())
	}
	if p.State().InFlight("a.png") {
		t.Error("InFlight() = true after a panic")
	}
}

func TestPipeline_HashingUnavailable(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	h.hasher = contenthash.Hasher{New: func() hash.Hash { return nil }}
	h.vault.AddFile("a.png", []byte("a"))

	out := h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

	expectStatus(t, out, intake.StatusFailed, intake.ReasonNone)
	if out.Kind != intake.KindHashingUnavailable || !errors.Is(out.Err, intake.ErrHashingUnavailable) {
		t.Errorf("Kind, Err = %q, %v", out.Kind, out.Err)
	}
	if h.uploader.Calls() != 0 {
		t.Errorf("uploader calls = %d, want 0", h.uploader.Calls())
	}
}

func TestPipeline_History(t *testing.T) {
	h := newHarness(t, uploadSettings(), "![](a.png)")
	data := []byte("a")
	h.vault.AddFile("a.png", data)

	h.pipeline(t).Process(context.Background(), "a.png", intake.ModeAuto)

	records := h.history.Records()
	if len(records) != 1 {
		t.Fatalf("history has %d records, want 1", len(records))
	}
	r := records[0]
	if r.ID != "id-1" || r.Path != "a.png" || r.Status != intake.StatusUploaded {
		t.Errorf("record = %+v", r)
	}
	if r.ContentHash != testutil.SHA1Hex(data) || r.URL == "" {
		t.Errorf("record = %+v", r)
	}
	if !r.StartedAt.Equal(h.clock.Now()) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, h.clock.Now())
	}
}

func TestPipeline_ProvisionPreset(t *testing.T) {
	signed := intake.Settings{AutoUpload: true, AccountID: "demo", APIKey: "key", APISecret: "secret"}

	t.Run("provisions once and persists", func(t *testing.T) {
		h := newHarness(t, signed, "")
		p := h.pipeline(t)

		name, err := p.ProvisionPreset(context.Background())
		if err != nil {
			t.Fatalf("ProvisionPreset() error = %v", err)
		}
		if name != intake.DefaultPresetName {
			t.Errorf("ProvisionPreset() = %q, want %q", name, intake.DefaultPresetName)
		}
		if got := h.settings.Settings().UploadPreset; got != intake.DefaultPresetName {
			t.Errorf("UploadPreset = %q", got)
		}

		h.settings.Update(signed)
		if name, err := p.ProvisionPreset(context.Background()); name != "" || err != nil {
			t.Errorf("second ProvisionPreset() = %q, %v; want no attempt", name, err)
		}
		if got := len(h.presets.Calls()); got != 1 {
			t.Errorf("preset calls = %d, want 1", got)
		}
	})

	t.Run("existing preset counts as success", func(t *testing.T) {
		s := signed
		s.PresetName = "mine"
		h := newHarness(t, s, "")
		h.presets.Err = intake.ErrPresetExists

		name, err := h.pipeline(t).ProvisionPreset(context.Background())
		if err != nil || name != "mine" {
			t.Fatalf("ProvisionPreset() = %q, %v; want %q, nil", name, err, "mine")
		}
		if got := h.settings.Settings().UploadPreset; got != "mine" {
			t.Errorf("UploadPreset = %q, want %q", got, "mine")
		}
	})

	t.Run("failure is warned once", func(t *testing.T) {
		h := newHarness(t, signed, "")
		h.presets.Err = errors.New("forbidden")
		p := h.pipeline(t)

		_, err := p.ProvisionPreset(context.Background())
		if !errors.Is(err, intake.ErrPresetProvisioningFailed) {
			t.Fatalf("ProvisionPreset() error = %v, want ErrPresetProvisioningFailed", err)
		}
		p.ProvisionPreset(context.Background())

		if got := h.notifier.Count("Could not create an upload preset"); got != 1 {
			t.Errorf("failure notices = %d, want 1", got)
		}
		if got := h.settings.Settings().UploadPreset; got != "" {
			t.Errorf("UploadPreset = %q, want empty", got)
		}
	})

	t.Run("not needed", func(t *testing.T) {
		for name, s := range map[string]intake.Settings{
			"preset configured": {AutoUpload: true, UploadPreset: "p", APIKey: "k", APISecret: "s"},
			"no credentials":    {AutoUpload: true},
			"auto upload off":   {APIKey: "k", APISecret: "s"},
		} {
			t.Run(name, func(t *testing.T) {
				h := newHarness(t, s, "")
				got, err := h.pipeline(t).ProvisionPreset(context.Background())
				if got != "" || err != nil {
					t.Errorf("ProvisionPreset() = %q, %v; want no attempt", got, err)
				}
				if len(h.presets.Calls()) != 0 {
					t.Errorf("preset calls = %v", h.presets.Calls())
				}
			})
		}
	})
}

func TestPipeline_CreatePreset(t *testing.T) {
	t.Run("manual creation with a custom name", func(t *testing.T) {
		h := newHarness(t, intake.Settings{APIKey: "k", APISecret: "s"}, "")
		p := h.pipeline(t)

		for i := 0; i < 2; i++ {
			name, err := p.CreatePreset(context.Background(), "custom")
			if err != nil || name != "custom" {
				t.Fatalf("CreatePreset() = %q, %v", name, err)
			}
		}
		if got := len(h.presets.Calls()); got != 2 {
			t.Errorf("preset calls = %d, want 2", got)
		}
		if h.notifier.Count(`"custom" is ready`) != 2 {
			t.Errorf("messages = %v", h.notifier.Messages())
		}
	})

	t.Run("requires signed credentials", func(t *testing.T) {
		h := newHarness(t, intake.Settings{}, "")
		_, err := h.pipeline(t).CreatePreset(context.Background(), "")
		if !errors.Is(err, intake.ErrConfigurationMissing) {
			t.Errorf("CreatePreset() error = %v, want ErrConfigurationMissing", err)
		}
	})
}
