// Package cachefile persists the shared upload cache: a JSON document mapping
// content hashes to uploaded assets. Other tools read and write the same file,
// so every write replaces the whole document atomically.
package cachefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kaptinlin/jsonrepair"

	"attach-go/internal/intake"
)

// MigratedUploader tags entries upgraded from the legacy hash -> URL shape.
const MigratedUploader = "migrated"

// ErrCacheCorrupt means the cache document could not be parsed, even after repair.
var ErrCacheCorrupt = errors.New("cache file is corrupt")

// Store is the shared cache file. Reads never fail: a missing or unreadable
// document is an empty cache. Writes are read-modify-write without locking
// against other processes; the last writer wins.
type Store struct {
	path   string
	logger intake.Logger
	clock  intake.Clock

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

var _ intake.Cache = (*Store)(nil)

// NewStore creates a Store backed by the JSON file at path.
func NewStore(path string, logger intake.Logger, clock intake.Clock) *Store {
	if logger == nil {
		logger = intake.NewNopLogger()
	}
	if clock == nil {
		clock = intake.RealClock{}
	}
	return &Store{path: path, logger: logger, clock: clock}
}

// Path returns the location of the cache document.
func (s *Store) Path() string {
	return s.path
}

// Read returns every entry. Legacy entries are migrated and written back.
func (s *Store) Read() map[string]intake.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Write replaces the document with entries.
func (s *Store) Write(entries map[string]intake.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(entries)
}

// Get returns the entry for hash, or nil.
func (s *Store) Get(hash string) (*intake.CacheEntry, error) {
	entries := s.Read()
	entry, ok := entries[hash]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Add records entry under hash. An existing entry with a different URL wins
// and is returned; only Clear removes it.
func (s *Store) Add(hash string, entry intake.CacheEntry) (*intake.CacheEntry, error) {
	if hash == "" {
		return nil, fmt.Errorf("empty content hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read()
	if existing, ok := entries[hash]; ok && existing.URL != "" {
		if existing.URL != entry.URL {
			s.logger.Warn("cache entry kept", "hash", hash, "url", existing.URL, "rejected", entry.URL)
		}
		return &existing, nil
	}

	entries[hash] = entry
	if err := s.write(entries); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.Write(map[string]intake.CacheEntry{})
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.Read())
}

// Migrate upgrades legacy entries in place and reports how many there were.
func (s *Store) Migrate() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cache file: %w", err)
	}
	entries, migrated, err := s.decode(data)
	if err != nil {
		return 0, err
	}
	if migrated == 0 {
		return 0, nil
	}
	if err := s.write(entries); err != nil {
		return 0, err
	}
	return migrated, nil
}

func (s *Store) read() map[string]intake.CacheEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading cache file", "path", s.path, "error", err)
		}
		return map[string]intake.CacheEntry{}
	}

	entries, migrated, err := s.decode(data)
	if err != nil {
		s.logger.Warn("ignoring cache file", "path", s.path, "error", err)
		return map[string]intake.CacheEntry{}
	}
	if migrated > 0 {
		if err := s.write(entries); err != nil {
			s.logger.Warn("persisting migrated cache", "path", s.path, "error", err)
		} else {
			s.logger.Info("migrated legacy cache entries", "path", s.path, "count", migrated)
		}
	}
	return entries
}

// decode parses the document, repairing it if needed, and upgrades legacy
// string entries. It returns the number of entries upgraded.
func (s *Store) decode(data []byte) (map[string]intake.CacheEntry, int, error) {
	entries := map[string]intake.CacheEntry{}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, 0, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
		}
		raw = nil
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
		}
		s.logger.Warn("repaired malformed cache file", "path", s.path)
	}
	if raw == nil {
		return nil, 0, fmt.Errorf("%w: top-level value is not an object", ErrCacheCorrupt)
	}

	migrated := 0
	for hash, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) > 0 && value[0] == '"' {
			var url string
			if err := json.Unmarshal(value, &url); err != nil || url == "" {
				s.logger.Warn("dropping unreadable cache entry", "hash", hash)
				continue
			}
			entries[hash] = intake.CacheEntry{
				URL:        url,
				UploadedAt: s.clock.Now().UTC(),
				Uploader:   MigratedUploader,
			}
			migrated++
			continue
		}

		var entry intake.CacheEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			s.logger.Warn("dropping unreadable cache entry", "hash", hash, "error", err)
			continue
		}
		entries[hash] = entry
	}
	return entries, migrated, nil
}

// write persists entries through a temp file in the same directory followed
// by a rename, so readers never observe a partial document.
func (s *Store) write(entries map[string]intake.CacheEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tmp-cache-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(append(data, '\n')); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	success = true
	return nil
}
