// Package encryption keeps the media host API secret sealed at rest.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// ErrWrongPassphrase is returned by Open when the passphrase does not
// decrypt the sealed secret.
var ErrWrongPassphrase = errors.New("incorrect passphrase")

// SecretBox stores a single secret in a file encrypted with age's
// scrypt-based passphrase encryption.
type SecretBox struct {
	path string
}

// NewSecretBox creates a SecretBox backed by the file at path.
func NewSecretBox(path string) *SecretBox {
	return &SecretBox{path: path}
}

func (b *SecretBox) Path() string { return b.path }

// IsConfigured returns true if a sealed secret exists.
func (b *SecretBox) IsConfigured() bool {
	if b.path == "" {
		return false
	}
	_, err := os.Stat(b.path)
	return err == nil
}

// Seal encrypts secret with the passphrase and replaces the sealed file.
func (b *SecretBox) Seal(secret, passphrase string) error {
	if b.path == "" {
		return fmt.Errorf("sealing secret: no path configured")
	}
	if passphrase == "" {
		return fmt.Errorf("sealing secret: empty passphrase")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, secret); err != nil {
		return fmt.Errorf("writing encrypted secret: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted secret: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating secret directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-secret-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing sealed secret: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing sealed secret: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("setting secret permissions: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("replacing sealed secret: %w", err)
	}
	return nil
}

// Open decrypts the sealed secret with the passphrase.
func (b *SecretBox) Open(passphrase string) (string, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return "", fmt.Errorf("reading sealed secret: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) || errors.Is(err, age.ErrIncorrectIdentity) {
			return "", ErrWrongPassphrase
		}
		return "", fmt.Errorf("decrypting secret: %w", err)
	}

	secret, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted secret: %w", err)
	}
	return strings.TrimRight(string(secret), "\n"), nil
}
