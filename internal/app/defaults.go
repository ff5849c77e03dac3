package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - ATTACH_CONFIG_PATH: config file location (default: ~/.config/attach.toml)
//   - ATTACH_HOME: base directory for attach data (default: ~/.local/share/attach)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// LoadEnv reads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped and variables that are already set
// keep their values.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// EnvFiles returns the .env files consulted at startup: one in the working
// directory and one in the attach base directory.
func EnvFiles() []string {
	files := []string{".env"}
	if baseDir, err := getBaseDir(); err == nil {
		files = append(files, filepath.Join(baseDir, ".env"))
	}
	return files
}

// getConfigPath returns the config file path, checking ATTACH_CONFIG_PATH env var first,
// then falling back to the default ~/.config/attach.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("ATTACH_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "attach.toml"), nil
}

// getBaseDir returns the base directory for attach data, checking ATTACH_HOME env var first,
// then falling back to the XDG default ~/.local/share/attach.
func getBaseDir() (string, error) {
	if path := os.Getenv("ATTACH_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "attach"), nil
}
