package uploader

import (
	"path"
	"strings"

	"attach-go/internal/contenthash"
)

// objectKey names stored content by its hash so repeated uploads of the
// same bytes land on the same object.
func objectKey(prefix string, data []byte, filename string) (string, error) {
	sum, err := contenthash.Sum(data)
	if err != nil {
		return "", err
	}
	return prefix + sum + strings.ToLower(path.Ext(filename)), nil
}

// publicURL joins base and key with exactly one slash.
func publicURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
