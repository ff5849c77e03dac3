// Package contenthash computes the digest that identifies an asset's content.
package contenthash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"

	"attach-go/internal/intake"
)

// Sum returns the lowercase hex SHA-1 digest of data.
// SHA-1 is kept so cache files written by earlier tools stay valid.
func Sum(data []byte) (string, error) {
	return Hasher{}.Hash(data)
}

// Hasher implements intake.Hasher with SHA-1.
// New overrides the hash constructor; nil selects SHA-1.
type Hasher struct {
	New func() hash.Hash
}

var _ intake.Hasher = Hasher{}

func (h Hasher) Hash(data []byte) (string, error) {
	newHash := h.New
	if newHash == nil {
		newHash = sha1.New
	}
	d := newHash()
	if d == nil {
		return "", fmt.Errorf("%w: no digest available", intake.ErrHashingUnavailable)
	}
	if _, err := d.Write(data); err != nil {
		return "", fmt.Errorf("%w: %w", intake.ErrHashingUnavailable, err)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}
