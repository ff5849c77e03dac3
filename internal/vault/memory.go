package vault

import (
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"attach-go/internal/intake"
)

type memoryFile struct {
	data      []byte
	createdAt time.Time
}

// MemoryVault is an in-memory implementation of the intake.Vault interface,
// making it useful for testing. Folders are implicit parents of files plus any
// folder created explicitly. This implementation is safe for concurrent use.
type MemoryVault struct {
	clock   intake.Clock
	files   map[string]*memoryFile
	folders map[string]bool
	writes  int
	deletes int
	mu      sync.RWMutex
}

// NewMemoryVault creates an empty vault. Files created through the vault are
// stamped with clock; nil selects the real clock.
func NewMemoryVault(clock intake.Clock) *MemoryVault {
	if clock == nil {
		clock = intake.RealClock{}
	}
	return &MemoryVault{
		clock:   clock,
		files:   make(map[string]*memoryFile),
		folders: map[string]bool{"": true},
	}
}

// AddFile seeds a file created now, creating its parent folders.
// Seeding does not count as a write.
func (m *MemoryVault) AddFile(p string, data []byte) {
	m.AddFileAt(p, data, m.clock.Now())
}

// AddFileAt seeds a file with an explicit creation time.
func (m *MemoryVault) AddFileAt(p string, data []byte, createdAt time.Time) {
	p = intake.NormalizePath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFolderLocked(path.Dir(p))
	m.files[p] = &memoryFile{data: append([]byte(nil), data...), createdAt: createdAt}
}

// Data returns a copy of the file content and whether the file exists.
func (m *MemoryVault) Data(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[intake.NormalizePath(p)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.data...), true
}

// Paths returns every file path, sorted.
func (m *MemoryVault) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Writes returns how many files were created through CreateBinary.
func (m *MemoryVault) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Deletes returns how many files were removed through Delete.
func (m *MemoryVault) Deletes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}

func (m *MemoryVault) addFolderLocked(folder string) {
	for folder != "." && folder != "" && folder != "/" {
		m.folders[folder] = true
		folder = path.Dir(folder)
	}
}

func (m *MemoryVault) ReadBinary(p string) ([]byte, error) {
	data, ok := m.Data(p)
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", p, os.ErrNotExist)
	}
	return data, nil
}

func (m *MemoryVault) CreateBinary(p string, data []byte) error {
	p = intake.NormalizePath(p)
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[p]; ok || m.folders[p] {
		return fmt.Errorf("creating %s: %w", p, os.ErrExist)
	}
	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	if !m.folders[parent] {
		return fmt.Errorf("creating %s: parent folder: %w", p, os.ErrNotExist)
	}
	m.files[p] = &memoryFile{data: append([]byte(nil), data...), createdAt: m.clock.Now()}
	m.writes++
	return nil
}

func (m *MemoryVault) Exists(p string) (bool, error) {
	p = intake.NormalizePath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[p]
	return ok || m.folders[p], nil
}

func (m *MemoryVault) CreateFolder(p string) error {
	p = intake.NormalizePath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; ok {
		return fmt.Errorf("creating folder %s: a file has that name", p)
	}
	m.addFolderLocked(p)
	return nil
}

func (m *MemoryVault) Delete(p string) error {
	p = intake.NormalizePath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return fmt.Errorf("deleting %s: %w", p, os.ErrNotExist)
	}
	delete(m.files, p)
	m.deletes++
	return nil
}

func (m *MemoryVault) GetFileByPath(p string) (*intake.File, error) {
	p = intake.NormalizePath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[p]
	if !ok {
		return nil, nil
	}
	return &intake.File{Path: p, Size: int64(len(f.data)), CreatedAt: f.createdAt}, nil
}

func (m *MemoryVault) ListFolder(folder string) ([]*intake.File, error) {
	folder = intake.NormalizePath(folder)
	if folder == "." {
		folder = ""
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*intake.File
	for p, f := range m.files {
		parent := path.Dir(p)
		if parent == "." {
			parent = ""
		}
		if parent != folder {
			continue
		}
		out = append(out, &intake.File{Path: p, Size: int64(len(f.data)), CreatedAt: f.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Compile-time check that MemoryVault implements intake.Vault interface
var _ intake.Vault = (*MemoryVault)(nil)
