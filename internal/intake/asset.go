package intake

import (
	"path"
	"strings"
	"time"
)

// File is a vault asset as observed at intake time.
// Path is vault-relative and always uses forward slashes.
type File struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Name returns the final path element, e.g. "photo.png".
func (f *File) Name() string {
	return path.Base(f.Path)
}

// Extension returns the lowercase extension without the leading dot.
func (f *File) Extension() string {
	return extension(f.Path)
}

// Basename returns the name without its extension, e.g. "photo".
func (f *File) Basename() string {
	name := f.Name()
	return strings.TrimSuffix(name, path.Ext(name))
}

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
	"svg":  true,
	"bmp":  true,
	"tif":  true,
	"tiff": true,
	"avif": true,
	"heic": true,
	"ico":  true,
}

// IsImage reports whether p carries a recognized image extension.
func IsImage(p string) bool {
	return imageExtensions[extension(p)]
}

func extension(p string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// NormalizePath converts a raw vault path to the canonical forward-slash form
// used as the key for every session guard.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
