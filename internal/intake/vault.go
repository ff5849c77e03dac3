package intake

// Vault provides access to the notes vault the pipeline watches.
// All paths are vault-relative with forward slashes.
type Vault interface {
	// ReadBinary returns the full content of the file at path.
	ReadBinary(path string) ([]byte, error)

	// CreateBinary writes data to a new file at path.
	// The parent folder must already exist.
	CreateBinary(path string, data []byte) error

	// Exists reports whether any file or folder occupies path.
	Exists(path string) (bool, error)

	// CreateFolder creates path and any missing parents. Existing folders are not an error.
	CreateFolder(path string) error

	// Delete removes the file at path.
	Delete(path string) error

	// GetFileByPath returns the file at path, or nil if no regular file exists there.
	GetFileByPath(path string) (*File, error)

	// ListFolder returns the regular files directly inside folder.
	// A missing folder yields an empty list, not an error.
	ListFolder(folder string) ([]*File, error)
}
