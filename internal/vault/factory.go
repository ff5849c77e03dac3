package vault

import (
	"fmt"

	"attach-go/internal/config"
	"attach-go/internal/intake"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (intake.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(nil), nil
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem vault requires root to be set")
		}
		v, err := NewFileSystemVault(cfg.Root)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
