package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for attach.
type Config struct {
	DeviceID string `toml:"device_id"`
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"` // "debug", "info" (default), "warn" or "error"

	Vault    VaultConfig    `toml:"vault"`
	Settings SettingsConfig `toml:"settings"`
	Uploader UploaderConfig `toml:"uploader"`
	Database DatabaseConfig `toml:"database"`
	Watch    WatchConfig    `toml:"watch"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// VaultConfig locates the notes vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"`           // "filesystem" (default) or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// SettingsConfig holds the user-facing intake settings.
type SettingsConfig struct {
	AutoUpload   bool   `toml:"auto_upload"`
	AccountID    string `toml:"account_id"` // media host account (cloud name)
	UploadPreset string `toml:"upload_preset"`

	APIKey string `toml:"api_key"`
	// APISecret may be given in plain text, through ATTACH_API_SECRET, or
	// sealed with a passphrase at APISecretPath.
	APISecret     string `toml:"api_secret,omitempty"`
	APISecretPath string `toml:"api_secret_path,omitempty"`

	LocalCopy               bool    `toml:"local_copy"`
	LocalCopyFolder         string  `toml:"local_copy_folder"`
	DeleteSourceAfterUpload bool    `toml:"delete_source_after_upload"`
	MaxAutoUploadSizeMB     float64 `toml:"max_auto_upload_size_mb"`

	CachePath  string `toml:"cache_path"`
	ActiveNote string `toml:"active_note,omitempty"` // vault-relative note; empty = most recently modified note
	PresetName string `toml:"preset_name,omitempty"`
}

// UploaderConfig represents configuration for the media host.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type UploaderConfig struct {
	Type    string `toml:"type"`              // "cloudinary" (default), "s3", "minio" or "memory"
	Timeout string `toml:"timeout,omitempty"` // e.g. "60s"

	// Cloudinary-specific fields (only used when Type == "cloudinary")
	APIBaseURL string `toml:"api_base_url,omitempty"`

	// Object store fields (used when Type == "s3" or "minio")
	Bucket          string `toml:"bucket,omitempty"`
	Prefix          string `toml:"prefix,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	UseSSL          bool   `toml:"use_ssl,omitempty"`
	PublicBaseURL   string `toml:"public_base_url,omitempty"`
}

// DatabaseConfig represents configuration for the intake history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// WatchConfig tunes the vault watcher and the intake guards.
// Durations use Go syntax ("5s", "300ms"); empty values select the defaults.
type WatchConfig struct {
	Ignore                []string `toml:"ignore"`
	StartupGrace          string   `toml:"startup_grace,omitempty"`
	ReferenceWaitRetries  int      `toml:"reference_wait_retries,omitempty"`
	ReferenceWaitInterval string   `toml:"reference_wait_interval,omitempty"`
	LoopGuardTTL          string   `toml:"loop_guard_ttl,omitempty"`
	InFlightGrace         string   `toml:"in_flight_grace,omitempty"`
	MaxConcurrentUploads  int      `toml:"max_concurrent_uploads,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `toml:"listen,omitempty"` // e.g. "127.0.0.1:9464"; empty disables the endpoint
}

// DefaultIgnore are the vault entries the watcher never descends into.
var DefaultIgnore = []string{".obsidian", ".trash", ".git", ".DS_Store"}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir, vaultRoot string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Vault:    VaultConfig{Type: "filesystem", Root: vaultRoot},
		Settings: SettingsConfig{
			AutoUpload:          true,
			LocalCopyFolder:     "assets",
			MaxAutoUploadSizeMB: 10,
			CachePath:           filepath.Join(baseDir, "upload-cache.json"),
		},
		Uploader: UploaderConfig{Type: "cloudinary"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Watch:    WatchConfig{Ignore: append([]string(nil), DefaultIgnore...)},
	}
}

// Duration parses a configured duration, returning def when s is empty.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Save replaces the config file at path. The new content is written to a
// temp file and renamed into place, since other tools may read it concurrently.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-config-*")
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

	m := &Manager{}
	if err := m.Write(tmpFile, cfg); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	success = true
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := Save(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
