package intake

import "sync"

// Settings is the configuration the pipeline consults on every intake.
// It is owned by the host; the pipeline only reads it, except for
// persisting a provisioned upload preset.
type Settings struct {
	AutoUpload   bool
	AccountID    string
	UploadPreset string

	// Signed-upload credentials.
	APIKey    string
	APISecret string

	// AmbientCredentials marks backends that authenticate on their own
	// (e.g. an AWS credential chain), so no preset or key pair is required.
	AmbientCredentials bool

	LocalCopy       bool
	LocalCopyFolder string
	DeleteSource    bool

	// MaxUploadSizeMB limits automatic uploads; zero or negative disables the limit.
	MaxUploadSizeMB float64

	// PresetName is the name used when provisioning a preset.
	PresetName string
}

// HasSignedCredentials reports whether a key pair for signed uploads is present.
func (s Settings) HasSignedCredentials() bool {
	return s.APIKey != "" && s.APISecret != ""
}

// UploadAuthorized reports whether any upload method is configured.
func (s Settings) UploadAuthorized() bool {
	return s.UploadPreset != "" || s.HasSignedCredentials() || s.AmbientCredentials
}

// MaxUploadBytes returns the size limit in bytes, or 0 when unlimited.
func (s Settings) MaxUploadBytes() int64 {
	if s.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(s.MaxUploadSizeMB * 1024 * 1024)
}

// SettingsStore supplies the current Settings and persists a provisioned preset.
type SettingsStore interface {
	Settings() Settings
	SetUploadPreset(name string) error
}

// MemorySettings is an in-memory SettingsStore. It is safe for concurrent use.
type MemorySettings struct {
	mu       sync.RWMutex
	settings Settings
}

// NewMemorySettings creates a store holding s.
func NewMemorySettings(s Settings) *MemorySettings {
	return &MemorySettings{settings: s}
}

func (m *MemorySettings) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *MemorySettings) SetUploadPreset(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.UploadPreset = name
	return nil
}

// Update replaces the stored settings.
func (m *MemorySettings) Update(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
}

var _ SettingsStore = (*MemorySettings)(nil)
