package uploader

import (
	"context"
	"fmt"
	"time"

	"attach-go/internal/config"
	"attach-go/internal/intake"
)

// DefaultTimeout bounds a single upload request when none is configured.
const DefaultTimeout = 60 * time.Second

// NewFromConfig creates the uploader selected by the config type. The second
// return value is nil for backends that have no notion of upload presets.
func NewFromConfig(ctx context.Context, cfg config.UploaderConfig, settings intake.SettingsStore, clock intake.Clock) (intake.Uploader, intake.PresetCreator, error) {
	timeout, err := config.Duration(cfg.Timeout, DefaultTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("uploader timeout: %w", err)
	}

	switch cfg.Type {
	case "cloudinary", "":
		c := NewCloudinary(cfg.APIBaseURL, timeout, settings, clock)
		return c, c, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, nil, fmt.Errorf("s3 uploader requires bucket to be set")
		}
		u, err := NewS3(ctx, cfg, timeout)
		if err != nil {
			return nil, nil, err
		}
		return u, nil, nil
	case "minio":
		if cfg.Bucket == "" || cfg.Endpoint == "" {
			return nil, nil, fmt.Errorf("minio uploader requires endpoint and bucket to be set")
		}
		u, err := NewMinIO(cfg, timeout)
		if err != nil {
			return nil, nil, err
		}
		return u, nil, nil
	case "memory":
		m := NewMemory()
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("unknown uploader type: %q", cfg.Type)
	}
}

// UsesAmbientCredentials reports whether the backend authenticates without
// an upload preset or an API key pair.
func UsesAmbientCredentials(cfg config.UploaderConfig) bool {
	switch cfg.Type {
	case "s3", "minio", "memory":
		return true
	default:
		return false
	}
}
