package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"attach-go/internal/cachefile"
	"attach-go/internal/config"
	"attach-go/internal/contenthash"
	"attach-go/internal/database"
	"attach-go/internal/editor"
	attachfs "attach-go/internal/fs"
	"attach-go/internal/intake"
	"attach-go/internal/metrics"
	"attach-go/internal/uploader"
	"attach-go/internal/vault"
	"attach-go/internal/watch"
)

// Options adjust how an AttachApp talks to its surroundings.
// The zero value writes notices to stderr.
type Options struct {
	Notices io.Writer
}

// AttachApp is the application layer between the CLI and the intake pipeline.
// It constructs all dependencies from config, exposes high-level operations,
// and releases the database and log file on Close.
type AttachApp struct {
	cfg      *config.Config
	root     string
	ignore   *attachfs.IgnoreMatcher
	cache    *cachefile.Store
	db       *database.SQLiteDatabase
	settings *ConfigSettings
	registry *prometheus.Registry
	pipeline *intake.Pipeline
	logger   intake.Logger
	op       *Operation
	logFile  *os.File
}

// NewAttachApp creates a fully wired AttachApp from the config loaded from
// configPath. command identifies the CLI command being run (e.g. "watch").
// The caller must call Close when done.
func NewAttachApp(ctx context.Context, cfg *config.Config, configPath, command string, opts Options) (*AttachApp, error) {
	if opts.Notices == nil {
		opts.Notices = os.Stderr
	}
	clock := intake.RealClock{}
	op := NewOperation(command, clock.Now())

	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &AttachApp{cfg: cfg, root: cfg.Vault.Root, logger: logger, op: op, logFile: logFile}
	if err := a.wire(ctx, configPath, clock, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *AttachApp) wire(ctx context.Context, configPath string, clock intake.Clock, opts Options) error {
	cfg := a.cfg

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}

	a.ignore, err = attachfs.LoadIgnoreMatcher(a.root, cfg.Watch.Ignore)
	if err != nil {
		return fmt.Errorf("loading ignore patterns: %w", err)
	}

	ed, err := editor.New(a.root, cfg.Settings.ActiveNote, a.ignore, a.logger)
	if err != nil {
		return fmt.Errorf("creating editor: %w", err)
	}

	secret, err := ResolveSecret(cfg.Settings)
	if err != nil {
		return err
	}
	a.settings = NewConfigSettings(cfg, configPath, secret)

	up, presets, err := uploader.NewFromConfig(ctx, cfg.Uploader, a.settings, clock)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	a.cache = cachefile.NewStore(cfg.Settings.CachePath, a.logger, clock)

	a.db, err = database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	if err := a.db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date (run 'attach db migrate'): %w", err)
	}

	a.registry = prometheus.NewRegistry()
	obs, err := metrics.NewObserver(a.registry)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	popts, ttl, err := PipelineOptions(cfg.Watch)
	if err != nil {
		return err
	}

	deps := intake.Deps{
		Vault:    v,
		Editor:   ed,
		Uploader: up,
		Presets:  presets,
		Cache:    a.cache,
		Settings: a.settings,
		Notifier: NewConsoleNotifier(opts.Notices),
		History:  a.db,
		Observer: observers{obs, a.op},
		Hasher:   contenthash.Hasher{},
		Logger:   a.logger,
		Clock:    clock,
		IDs:      intake.UUIDGenerator{},
	}
	a.pipeline, err = intake.NewPipeline(deps, intake.NewSessionState(ttl), popts)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}
	return nil
}

// PipelineOptions converts the watch config into pipeline options and the
// loop guard lifetime. Unset values keep their defaults.
func PipelineOptions(w config.WatchConfig) (intake.Options, time.Duration, error) {
	opts := intake.DefaultOptions()
	var err error

	if opts.StartupGrace, err = config.Duration(w.StartupGrace, opts.StartupGrace); err != nil {
		return opts, 0, fmt.Errorf("startup_grace: %w", err)
	}
	if opts.ReferenceWaitInterval, err = config.Duration(w.ReferenceWaitInterval, opts.ReferenceWaitInterval); err != nil {
		return opts, 0, fmt.Errorf("reference_wait_interval: %w", err)
	}
	if opts.InFlightGrace, err = config.Duration(w.InFlightGrace, opts.InFlightGrace); err != nil {
		return opts, 0, fmt.Errorf("in_flight_grace: %w", err)
	}
	ttl, err := config.Duration(w.LoopGuardTTL, intake.DefaultLoopGuardTTL)
	if err != nil {
		return opts, 0, fmt.Errorf("loop_guard_ttl: %w", err)
	}
	if w.ReferenceWaitRetries > 0 {
		opts.ReferenceWaitRetries = w.ReferenceWaitRetries
	}
	if w.MaxConcurrentUploads > 0 {
		opts.MaxConcurrentUploads = w.MaxConcurrentUploads
	}
	return opts, ttl, nil
}

// Operation returns the tally of the running command.
func (a *AttachApp) Operation() *Operation {
	return a.op
}

// Watch provisions an upload preset if one is needed, then feeds every file
// created in the vault to the pipeline until ctx is cancelled. In-flight
// intakes are finished before it returns.
func (a *AttachApp) Watch(ctx context.Context) error {
	if listen := a.cfg.Metrics.Listen; listen != "" {
		go func() {
			if err := metrics.Serve(ctx, listen, a.registry, a.logger); err != nil {
				a.logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	if name, err := a.pipeline.ProvisionPreset(ctx); err == nil && name != "" {
		a.logger.Info("using provisioned upload preset", "name", name)
	}

	w := watch.New(a.root, a.ignore, a.logger)
	err := w.Run(ctx, func(rel string) {
		a.pipeline.Submit(ctx, rel)
	})
	a.pipeline.Wait()
	return err
}

// Ingest runs a manual intake for each path. Paths may be vault-relative or
// absolute paths inside the vault.
func (a *AttachApp) Ingest(ctx context.Context, paths []string) ([]intake.Outcome, error) {
	outcomes := make([]intake.Outcome, 0, len(paths))
	for _, raw := range paths {
		rel, err := a.vaultRelative(raw)
		if err != nil {
			return outcomes, err
		}
		out := a.pipeline.Process(ctx, rel, intake.ModeManual)
		a.logger.Info("intake finished", "path", rel, "outcome", out.String())
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (a *AttachApp) vaultRelative(raw string) (string, error) {
	if !filepath.IsAbs(raw) {
		return filepath.ToSlash(filepath.Clean(raw)), nil
	}
	rel, err := filepath.Rel(a.root, raw)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the vault %s", raw, a.root)
	}
	return filepath.ToSlash(rel), nil
}

// CreatePreset creates an upload preset on the media host and saves its name.
func (a *AttachApp) CreatePreset(ctx context.Context, name string) (string, error) {
	return a.pipeline.CreatePreset(ctx, name)
}

// CacheEntries returns the shared upload cache keyed by content hash.
func (a *AttachApp) CacheEntries() map[string]intake.CacheEntry {
	return a.cache.Read()
}

// ClearCache removes every cached upload.
func (a *AttachApp) ClearCache() error {
	return a.cache.Clear()
}

// MigrateCache upgrades legacy cache entries and reports how many changed.
func (a *AttachApp) MigrateCache() (int, error) {
	return a.cache.Migrate()
}

// GetHistory returns the most recent intake records.
func (a *AttachApp) GetHistory(limit int) ([]*intake.IntakeRecord, error) {
	return a.db.ListIntakes(limit)
}

// Close releases the database and the log file.
func (a *AttachApp) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logger.Info("operation finished", "command", a.op.Command, "status", a.op.Status(), "summary", a.op.Summary())
		a.logFile.Close()
	}
	return firstErr
}

// MigrateDatabase brings the history database schema up to date.
func MigrateDatabase(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
