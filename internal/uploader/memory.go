package uploader

import (
	"context"
	"sync"

	"attach-go/internal/intake"
)

// Memory keeps uploaded content in memory and hands out memory:// URLs.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	presets []string
	calls   int
}

var (
	_ intake.Uploader      = (*Memory)(nil)
	_ intake.PresetCreator = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Tag() string { return "memory" }

func (m *Memory) Upload(_ context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	key, err := objectKey("", data, filename)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.objects[key] = append([]byte(nil), data...)
	return &intake.UploadResult{URL: "memory://" + key, PublicID: key}, nil
}

func (m *Memory) CreatePreset(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.presets {
		if p == name {
			return "", intake.ErrPresetExists
		}
	}
	m.presets = append(m.presets, name)
	return name, nil
}

// Calls returns the number of Upload invocations.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Object returns the content stored under key.
func (m *Memory) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
