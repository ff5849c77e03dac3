package intake

import (
	"context"
	"errors"
	"fmt"
)

const bytesPerMB = 1024 * 1024

// upload resolves a URL for the attempt's content, from the cache or by
// uploading it. Outcomes are recorded on a; nothing is returned.
func (p *Pipeline) upload(ctx context.Context, a *attempt) {
	name := a.file.Name()

	entry, err := p.cache.Get(a.hash)
	if err != nil {
		p.logger.Warn("reading upload cache", "hash", a.hash, "error", err)
	}
	if entry != nil && entry.URL != "" {
		a.url = entry.URL
		a.cacheHit = true
		p.logger.Info("cache hit", "path", a.file.Path, "hash", a.hash, "url", entry.URL)
		a.note("%s already uploaded: %s", name, entry.URL)
		return
	}

	if p.uploader == nil || !a.settings.UploadAuthorized() {
		a.uploadSkip = ReasonConfigurationMissing
		p.logger.Warn("upload skipped", "path", a.file.Path, "error", ErrConfigurationMissing)
		if a.mode == ModeManual || p.state.WarnOnce(WarnConfigurationMissing) {
			a.note("Upload skipped: set an upload preset or API key and secret")
		}
		return
	}

	if limit := a.settings.MaxUploadBytes(); a.mode == ModeAuto && limit > 0 && a.size() > limit {
		a.uploadSkip = ReasonSizeLimitExceeded
		p.logger.Info("upload skipped", "path", a.file.Path, "size", a.size(), "limit", limit, "error", ErrSizeLimitExceeded)
		a.note("%s is %.1f MB, over the %.1f MB auto-upload limit; not uploaded",
			name, float64(a.size())/bytesPerMB, a.settings.MaxUploadSizeMB)
		return
	}

	res, err := p.uploadGated(ctx, a)
	if err != nil {
		p.uploadFailed(a, err)
		return
	}
	if res == nil || res.URL == "" {
		p.uploadFailed(a, fmt.Errorf("%s uploader returned no URL", p.uploader.Tag()))
		return
	}

	canonical, err := p.cache.Add(a.hash, CacheEntry{
		URL:        res.URL,
		PublicID:   res.PublicID,
		Filename:   name,
		UploadedAt: p.clock.Now().UTC(),
		Uploader:   p.uploader.Tag(),
	})
	switch {
	case err != nil:
		p.logger.Warn("writing upload cache", "hash", a.hash, "error", err)
		a.url = res.URL
	case canonical.URL != res.URL:
		p.logger.Info("cache already holds a different URL for this content", "hash", a.hash, "uploaded", res.URL, "canonical", canonical.URL)
		a.url = canonical.URL
	default:
		a.url = res.URL
	}

	p.logger.Info("uploaded", "path", a.file.Path, "hash", a.hash, "url", a.url)
	a.note("Uploaded %s: %s", name, a.url)
}

// uploadGated performs the network call while holding one of the upload slots.
func (p *Pipeline) uploadGated(ctx context.Context, a *attempt) (*UploadResult, error) {
	if err := p.uploads.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for upload slot: %w", err)
	}
	defer p.uploads.Release(1)

	p.observer.UploadsInFlight(1)
	defer p.observer.UploadsInFlight(-1)

	p.logger.Info("upload started", "path", a.file.Path, "size", a.size(), "uploader", p.uploader.Tag())
	start := p.clock.Now()
	res, err := p.uploader.Upload(ctx, a.data, a.file.Name())
	p.observer.ObserveUpload(p.clock.Now().Sub(start), a.size(), err)
	return res, err
}

// uploadFailed records err on a and adds a user message, suppressing
// repeated preset-configuration rejections during automatic intake.
func (p *Pipeline) uploadFailed(a *attempt, err error) {
	a.uploadErr = err
	a.uploadKind = kindOfUploadError(err)
	name := a.file.Name()
	p.logger.Error("upload failed", "path", a.file.Path, "kind", string(a.uploadKind), "error", err)

	var rejected *UploadRejectedError
	if !errors.As(err, &rejected) {
		a.note("Upload of %s failed: %v", name, err)
		return
	}
	switch rejected.Class {
	case RejectionPresetConfig:
		if a.mode == ModeAuto && !p.state.WarnOnce(WarnPresetInvalid) {
			return
		}
		a.note("Upload of %s rejected, check the upload preset: %s", name, rejected.Message)
	case RejectionSignature:
		a.note("Upload of %s rejected, check the API key and secret: %s", name, rejected.Message)
	default:
		a.note("Upload of %s rejected: %s", name, rejected.Message)
	}
}
