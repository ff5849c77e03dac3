package intake

import "time"

// CacheEntry records a previous upload of some content, keyed by content hash.
type CacheEntry struct {
	URL        string    `json:"url"`
	PublicID   string    `json:"public_id,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
	Uploader   string    `json:"uploader"`
}

// Cache maps content hashes to previously uploaded assets.
type Cache interface {
	// Get returns the entry for hash, or nil if the content was never uploaded.
	Get(hash string) (*CacheEntry, error)

	// Add records entry under hash and returns the canonical entry.
	// An existing entry with a different URL is kept and returned instead.
	Add(hash string, entry CacheEntry) (*CacheEntry, error)
}
