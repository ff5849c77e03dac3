package intake

import "context"

// UploadResult describes an asset stored by the remote media host.
type UploadResult struct {
	URL      string
	PublicID string
}

// Uploader transfers asset bytes to the remote media host.
// Implementations enforce their own network timeouts.
type Uploader interface {
	// Upload stores data under filename and returns its stable URL.
	// Non-2xx responses are reported as *UploadRejectedError.
	Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error)

	// Tag identifies the backend in cache entries, e.g. "cloudinary".
	Tag() string
}

// PresetCreator provisions a remote unsigned-upload configuration.
type PresetCreator interface {
	// CreatePreset creates a preset called name and returns the name the remote assigned.
	// An existing preset with the same name is reported as ErrPresetExists.
	CreatePreset(ctx context.Context, name string) (string, error)
}
