package app

import (
	"fmt"
	"os"
	"sync"

	"attach-go/internal/config"
	"attach-go/internal/encryption"
	"attach-go/internal/intake"
	"attach-go/internal/uploader"
)

// Environment variables consulted for the API secret.
const (
	EnvAPISecret  = "ATTACH_API_SECRET"
	EnvPassphrase = "ATTACH_PASSPHRASE"
)

// ResolveSecret returns the media host API secret. A secret in the config
// file wins, then ATTACH_API_SECRET, then the sealed secret file opened with
// ATTACH_PASSPHRASE. An empty result means signed uploads are unavailable.
func ResolveSecret(cfg config.SettingsConfig) (string, error) {
	if cfg.APISecret != "" {
		return cfg.APISecret, nil
	}
	if s := os.Getenv(EnvAPISecret); s != "" {
		return s, nil
	}

	box := encryption.NewSecretBox(cfg.APISecretPath)
	if !box.IsConfigured() {
		return "", nil
	}
	passphrase := os.Getenv(EnvPassphrase)
	if passphrase == "" {
		return "", fmt.Errorf("api secret is sealed at %s: set %s to unlock it", box.Path(), EnvPassphrase)
	}
	secret, err := box.Open(passphrase)
	if err != nil {
		return "", fmt.Errorf("unlocking api secret: %w", err)
	}
	return secret, nil
}

// ConfigSettings is an intake.SettingsStore backed by the config file.
// A provisioned upload preset is written back to the file.
type ConfigSettings struct {
	mu        sync.RWMutex
	cfg       *config.Config
	path      string
	apiSecret string
}

var _ intake.SettingsStore = (*ConfigSettings)(nil)

// NewConfigSettings creates a settings store over cfg. path may be empty,
// in which case preset changes are kept in memory only.
func NewConfigSettings(cfg *config.Config, path, apiSecret string) *ConfigSettings {
	return &ConfigSettings{cfg: cfg, path: path, apiSecret: apiSecret}
}

func (c *ConfigSettings) Settings() intake.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sc := c.cfg.Settings
	s := intake.Settings{
		AutoUpload:      sc.AutoUpload,
		AccountID:       sc.AccountID,
		UploadPreset:    sc.UploadPreset,
		APIKey:          sc.APIKey,
		APISecret:       c.apiSecret,
		LocalCopy:       sc.LocalCopy,
		LocalCopyFolder: sc.LocalCopyFolder,
		DeleteSource:    sc.DeleteSourceAfterUpload,
		MaxUploadSizeMB: sc.MaxAutoUploadSizeMB,
		PresetName:      sc.PresetName,
	}

	if uploader.UsesAmbientCredentials(c.cfg.Uploader) {
		s.AmbientCredentials = true
		// Object stores have no account; the bucket stands in for it.
		if s.AccountID == "" {
			s.AccountID = c.cfg.Uploader.Bucket
		}
		if s.AccountID == "" {
			s.AccountID = c.cfg.Uploader.Type
		}
	}
	return s
}

func (c *ConfigSettings) SetUploadPreset(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.Settings.UploadPreset = name
	if c.path == "" {
		return nil
	}
	if err := config.Save(c.path, c.cfg); err != nil {
		return fmt.Errorf("saving upload preset: %w", err)
	}
	return nil
}
