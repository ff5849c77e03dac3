package vault

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"attach-go/internal/intake"
	"attach-go/internal/pathsan"
)

// ErrOutsideVault is returned for paths that do not resolve inside the vault root.
var ErrOutsideVault = errors.New("path is outside the vault")

// FileSystemVault is a notes vault stored in a local directory.
// All paths it accepts and returns are vault-relative with forward slashes.
type FileSystemVault struct {
	root string
}

// NewFileSystemVault opens the vault rooted at root, which must be an existing directory.
func NewFileSystemVault(root string) (*FileSystemVault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", abs)
	}
	return &FileSystemVault{root: abs}, nil
}

// Root returns the absolute vault directory.
func (v *FileSystemVault) Root() string {
	return v.root
}

// Rel converts an absolute filesystem path into a vault-relative path.
func (v *FileSystemVault) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, abs)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, abs)
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

// resolve maps a vault-relative path to a filesystem path under the root.
func (v *FileSystemVault) resolve(rel string) (string, string, error) {
	clean, err := pathsan.Sanitize(rel)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrOutsideVault, err)
	}
	return clean, filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

func (v *FileSystemVault) ReadBinary(p string) ([]byte, error) {
	_, abs, err := v.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}

// CreateBinary writes data to a new file. It fails if the path is taken or
// the parent folder does not exist.
func (v *FileSystemVault) CreateBinary(p string, data []byte) error {
	clean, abs, err := v.resolve(p)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("creating file: empty path")
	}
	if _, err := os.Lstat(abs); err == nil {
		return fmt.Errorf("creating %s: %w", clean, os.ErrExist)
	}
	info, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("creating %s: parent folder: %w", clean, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("creating %s: parent is not a folder", clean)
	}
	return writeFile(abs, data)
}

func (v *FileSystemVault) Exists(p string) (bool, error) {
	_, abs, err := v.resolve(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", p, err)
	}
	return true, nil
}

func (v *FileSystemVault) CreateFolder(p string) error {
	_, abs, err := v.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("creating folder %s: %w", p, err)
	}
	return nil
}

func (v *FileSystemVault) Delete(p string) error {
	clean, abs, err := v.resolve(p)
	if err != nil {
		return err
	}
	if clean == "" {
		return fmt.Errorf("refusing to delete the vault root")
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("deleting %s: %w", clean, err)
	}
	return nil
}

func (v *FileSystemVault) GetFileByPath(p string) (*intake.File, error) {
	clean, abs, err := v.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	return &intake.File{Path: clean, Size: info.Size(), CreatedAt: createdAt(abs, info)}, nil
}

func (v *FileSystemVault) ListFolder(folder string) ([]*intake.File, error) {
	clean, abs, err := v.resolve(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", folder, err)
	}

	var files []*intake.File
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed since ReadDir.
			continue
		}
		files = append(files, &intake.File{
			Path:      path.Join(clean, e.Name()),
			Size:      info.Size(),
			CreatedAt: createdAt(filepath.Join(abs, e.Name()), info),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// writeFile writes data to destPath using a temp file in the same directory and a rename.
func writeFile(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
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

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements intake.Vault interface
var _ intake.Vault = (*FileSystemVault)(nil)
