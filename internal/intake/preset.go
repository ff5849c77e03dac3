package intake

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPresetName is provisioned when no preset name is configured.
const DefaultPresetName = "attach-unsigned"

// ProvisionPreset creates an unsigned-upload preset on the media host and
// stores its name in the settings. It runs at most once per session, and only
// when auto-upload is on, no preset is configured and signed credentials are
// present; otherwise it returns ("", nil). A failure is warned about once.
func (p *Pipeline) ProvisionPreset(ctx context.Context) (string, error) {
	s := p.settings.Settings()
	if !s.AutoUpload || s.UploadPreset != "" || !s.HasSignedCredentials() || p.presets == nil {
		return "", nil
	}
	if !p.state.claimPresetAttempt() {
		return "", nil
	}

	name, err := p.createPreset(ctx, presetName(s))
	if err != nil {
		p.logger.Warn("provisioning upload preset", "error", err)
		if p.state.WarnOnce(WarnPresetProvisioning) {
			p.notifier.Notify(fmt.Sprintf("Could not create an upload preset (%v); set one in the configuration", err))
		}
		return "", err
	}
	p.notifier.Notify(fmt.Sprintf("Upload preset %q is ready", name))
	return name, nil
}

// CreatePreset provisions a preset on request of the user. Unlike
// ProvisionPreset it is not limited to one attempt per session.
// An empty name selects the configured preset name.
func (p *Pipeline) CreatePreset(ctx context.Context, name string) (string, error) {
	if p.presets == nil {
		return "", fmt.Errorf("%w: uploader cannot create presets", ErrPresetProvisioningFailed)
	}
	s := p.settings.Settings()
	if !s.HasSignedCredentials() {
		return "", fmt.Errorf("%w: %w", ErrPresetProvisioningFailed, ErrConfigurationMissing)
	}
	if name == "" {
		name = presetName(s)
	}

	created, err := p.createPreset(ctx, name)
	if err != nil {
		p.notifier.Notify(fmt.Sprintf("Could not create upload preset %q: %v", name, err))
		return "", err
	}
	p.notifier.Notify(fmt.Sprintf("Upload preset %q is ready", created))
	return created, nil
}

func (p *Pipeline) createPreset(ctx context.Context, name string) (string, error) {
	created, err := p.presets.CreatePreset(ctx, name)
	switch {
	case errors.Is(err, ErrPresetExists):
		p.logger.Info("upload preset already exists", "name", name)
		created = name
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrPresetProvisioningFailed, err)
	}
	if created == "" {
		created = name
	}
	if err := p.settings.SetUploadPreset(created); err != nil {
		return "", fmt.Errorf("saving upload preset: %w", err)
	}
	p.logger.Info("upload preset provisioned", "name", created)
	return created, nil
}

func presetName(s Settings) string {
	if s.PresetName != "" {
		return s.PresetName
	}
	return DefaultPresetName
}
