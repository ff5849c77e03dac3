package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Mode selects which guards apply to an intake attempt.
type Mode int

const (
	// ModeAuto is a background intake triggered by a file-created event.
	ModeAuto Mode = iota
	// ModeManual is a user-triggered intake. It skips the startup-age and
	// reference-wait guards, ignores the auto-upload toggle and the size
	// limit, and never suppresses warnings.
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

const (
	DefaultStartupGrace          = 5 * time.Second
	DefaultReferenceWaitRetries  = 10
	DefaultReferenceWaitInterval = 300 * time.Millisecond
	DefaultInFlightGrace         = time.Second
	DefaultMaxConcurrentUploads  = 3
)

// Options tunes the timing and concurrency of the pipeline.
type Options struct {
	// StartupGrace is the maximum age of a file that still counts as freshly added.
	StartupGrace time.Duration

	// ReferenceWaitRetries and ReferenceWaitInterval bound how long an automatic
	// intake waits for the active document to reference the new file.
	ReferenceWaitRetries  int
	ReferenceWaitInterval time.Duration

	// InFlightGrace delays releasing the in-flight mark so duplicate
	// events fired right after an attempt are absorbed.
	InFlightGrace time.Duration

	// MaxConcurrentUploads is the ceiling on simultaneous uploads.
	MaxConcurrentUploads int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		StartupGrace:          DefaultStartupGrace,
		ReferenceWaitRetries:  DefaultReferenceWaitRetries,
		ReferenceWaitInterval: DefaultReferenceWaitInterval,
		InFlightGrace:         DefaultInFlightGrace,
		MaxConcurrentUploads:  DefaultMaxConcurrentUploads,
	}
}

// Deps are the collaborators of a Pipeline.
// Vault, Cache, Settings and Hasher are required; the rest fall back to no-ops.
type Deps struct {
	Vault    Vault
	Editor   Editor
	Uploader Uploader
	Presets  PresetCreator
	Cache    Cache
	Settings SettingsStore
	Notifier Notifier
	History  History
	Observer Observer
	Hasher   Hasher
	Logger   Logger
	Clock    Clock
	IDs      IDGenerator
}

// Pipeline decides, for every newly observed attachment, whether to upload it,
// copy it into the local-copy folder, or both, and then points the active
// document at the asset's final location.
type Pipeline struct {
	vault    Vault
	editor   Editor
	uploader Uploader
	presets  PresetCreator
	cache    Cache
	settings SettingsStore
	notifier Notifier
	history  History
	observer Observer
	hasher   Hasher
	logger   Logger
	clock    Clock
	ids      IDGenerator

	state   *SessionState
	opts    Options
	uploads *semaphore.Weighted
	tasks   sync.WaitGroup
}

// NewPipeline creates a Pipeline. A nil state starts a fresh session.
func NewPipeline(deps Deps, state *SessionState, opts Options) (*Pipeline, error) {
	switch {
	case deps.Vault == nil:
		return nil, fmt.Errorf("vault is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	}

	if deps.Editor == nil {
		deps.Editor = noEditor{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.History == nil {
		deps.History = nopHistory{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = NewNopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.IDs == nil {
		deps.IDs = UUIDGenerator{}
	}
	if state == nil {
		state = NewSessionState(DefaultLoopGuardTTL)
	}
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	if opts.ReferenceWaitRetries < 0 {
		opts.ReferenceWaitRetries = 0
	}

	return &Pipeline{
		vault:    deps.Vault,
		editor:   deps.Editor,
		uploader: deps.Uploader,
		presets:  deps.Presets,
		cache:    deps.Cache,
		settings: deps.Settings,
		notifier: deps.Notifier,
		history:  deps.History,
		observer: deps.Observer,
		hasher:   deps.Hasher,
		logger:   deps.Logger,
		clock:    deps.Clock,
		ids:      deps.IDs,
		state:    state,
		opts:     opts,
		uploads:  semaphore.NewWeighted(int64(opts.MaxConcurrentUploads)),
	}, nil
}

// State returns the session guards shared by every attempt of this pipeline.
func (p *Pipeline) State() *SessionState {
	return p.state
}

// Submit processes path in the background as an automatic intake.
// Use Wait to block until every submitted attempt has finished.
func (p *Pipeline) Submit(ctx context.Context, path string) {
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		p.Process(ctx, path, ModeAuto)
	}()
}

// Wait blocks until all attempts started by Submit have finished.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}

// Process runs one intake attempt for the vault-relative path and returns its outcome.
// It never panics; an unexpected failure becomes a Failed(KindInternal) outcome.
func (p *Pipeline) Process(ctx context.Context, rawPath string, mode Mode) (out Outcome) {
	path := NormalizePath(rawPath)
	defer func() {
		if r := recover(); r != nil {
			out = p.internalFailure(path, r)
		}
		p.observer.ObserveOutcome(out)
		p.logger.Debug("intake finished", "path", path, "mode", mode.String(), "outcome", out.String())
	}()

	if !IsImage(path) {
		return skipped(path, ReasonNotImage)
	}

	file, err := p.vault.GetFileByPath(path)
	if err != nil {
		p.logger.Warn("looking up file", "path", path, "error", err)
		return failed(path, KindFilesystem, fmt.Errorf("looking up %s: %w", path, err))
	}
	if file == nil {
		return skipped(path, ReasonNotFound)
	}
	file.Path = path

	if mode == ModeAuto && p.preexisting(file) {
		return skipped(path, ReasonPreexisting)
	}
	if p.state.WasCreated(path) {
		return skipped(path, ReasonPluginWrite)
	}
	if !p.state.TryAcquire(path) {
		return skipped(path, ReasonInFlight)
	}
	defer p.release(path)

	started := p.clock.Now()
	out = p.safeRun(ctx, file, mode)
	p.record(started, out)
	return out
}

// preexisting reports whether file is older than the startup grace period,
// i.e. it was enumerated while the vault was being indexed.
func (p *Pipeline) preexisting(file *File) bool {
	if file.CreatedAt.IsZero() {
		return true
	}
	return p.clock.Now().Sub(file.CreatedAt) > p.opts.StartupGrace
}

func (p *Pipeline) release(path string) {
	if p.opts.InFlightGrace <= 0 {
		p.state.Release(path)
		return
	}
	time.AfterFunc(p.opts.InFlightGrace, func() { p.state.Release(path) })
}

func (p *Pipeline) safeRun(ctx context.Context, file *File, mode Mode) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = p.internalFailure(file.Path, r)
		}
	}()
	return p.run(ctx, file, mode)
}

func (p *Pipeline) internalFailure(path string, r any) Outcome {
	p.logger.Error("intake panicked", "path", path, "panic", r)
	p.notifier.Notify(fmt.Sprintf("Could not process %s: internal error", path))
	return failed(path, KindInternal, fmt.Errorf("internal error: %v", r))
}

func (p *Pipeline) record(started time.Time, out Outcome) {
	rec := &IntakeRecord{
		ID:          p.ids.New(),
		Path:        out.Path,
		ContentHash: out.ContentHash,
		Status:      out.Status,
		Reason:      out.Reason,
		ErrorKind:   out.Kind,
		URL:         out.URL,
		LocalPath:   out.LocalPath,
		StartedAt:   started,
		FinishedAt:  p.clock.Now(),
	}
	if err := p.history.RecordIntake(rec); err != nil {
		p.logger.Warn("recording intake", "path", out.Path, "error", err)
	}
}

// attempt carries the state of one intake through its steps.
type attempt struct {
	file     *File
	mode     Mode
	settings Settings
	data     []byte
	hash     string
	notes    []string

	url        string
	cacheHit   bool
	uploadErr  error
	uploadKind ErrorKind
	uploadSkip SkipReason

	localPath string
	inPlace   bool
	copyErr   error
	copySkip  SkipReason

	rewritten bool
}

func (a *attempt) note(format string, args ...any) {
	a.notes = append(a.notes, fmt.Sprintf(format, args...))
}

func (a *attempt) size() int64 {
	return int64(len(a.data))
}

func (p *Pipeline) run(ctx context.Context, file *File, mode Mode) Outcome {
	settings := p.settings.Settings()
	wantUpload := settings.AccountID != "" && (mode == ModeManual || settings.AutoUpload)
	wantCopy := settings.LocalCopy && strings.TrimSpace(settings.LocalCopyFolder) != ""
	if !wantUpload && !wantCopy {
		return skipped(file.Path, ReasonNothingToDo)
	}

	if mode == ModeAuto && !p.waitForReference(ctx, file) {
		p.logger.Debug("file not referenced in active document", "path", file.Path)
		return skipped(file.Path, ReasonNotReferenced)
	}

	data, err := p.vault.ReadBinary(file.Path)
	if err != nil {
		p.logger.Error("reading file", "path", file.Path, "error", err)
		p.notifier.Notify(fmt.Sprintf("Could not read %s: %v", file.Name(), err))
		return failed(file.Path, KindFilesystem, fmt.Errorf("reading %s: %w", file.Path, err))
	}

	hash, err := p.hasher.Hash(data)
	if err != nil {
		if !errors.Is(err, ErrHashingUnavailable) {
			err = fmt.Errorf("%w: %w", ErrHashingUnavailable, err)
		}
		p.logger.Error("hashing file", "path", file.Path, "error", err)
		p.notifier.Notify(fmt.Sprintf("Could not process %s: %v", file.Name(), err))
		return failed(file.Path, KindHashingUnavailable, err)
	}

	a := &attempt{
		file:     file,
		mode:     mode,
		settings: settings,
		data:     data,
		hash:     hash,
	}

	if wantUpload {
		p.upload(ctx, a)
	}
	if wantCopy {
		p.copyLocally(a)
	}
	a.rewritten = p.replaceReferences(a)
	p.deleteSource(a, wantCopy)

	if len(a.notes) > 0 {
		p.notifier.Notify(strings.Join(a.notes, "; "))
	}
	return a.outcome()
}

func (a *attempt) outcome() Outcome {
	out := Outcome{
		Path:        a.file.Path,
		ContentHash: a.hash,
		URL:         a.url,
		LocalPath:   a.localPath,
		CacheHit:    a.cacheHit,
	}
	switch {
	case a.url != "" && a.localPath != "":
		out.Status = StatusUploadedAndCopied
	case a.url != "":
		out.Status = StatusUploaded
		if a.copyErr != nil {
			out.Kind, out.Err = KindFilesystem, a.copyErr
		}
	case a.localPath != "":
		out.Status = StatusCopiedLocally
		out.Kind, out.Err = a.uploadKind, a.uploadErr
	case a.uploadErr != nil:
		out.Status = StatusFailed
		out.Kind, out.Err = a.uploadKind, a.uploadErr
	case a.copyErr != nil:
		out.Status = StatusFailed
		out.Kind, out.Err = KindFilesystem, a.copyErr
	default:
		out.Status = StatusSkipped
		switch {
		case a.uploadSkip != ReasonNone:
			out.Reason = a.uploadSkip
		case a.copySkip != ReasonNone:
			out.Reason = a.copySkip
		default:
			out.Reason = ReasonNothingToDo
		}
	}
	return out
}
