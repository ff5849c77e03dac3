package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"attach-go/internal/app"
	"attach-go/internal/config"
	"attach-go/internal/encryption"
	"attach-go/internal/intake"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := app.LoadEnv(app.EnvFiles()...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file at the default location.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	path := defaults["config_path"]
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates an AttachApp. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "watch", "ingest").
func newApp(ctx context.Context, command string) (*app.AttachApp, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewAttachApp(ctx, cfg, path, command, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase prompts on the terminal without echo. When stdin is not a
// terminal a single line is read instead.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return line, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "attach",
	Short:        "Upload images added to a notes vault and relink them",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init VAULT_DIR",
	Short: "Initialize configuration for a vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		vaultRoot, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving vault directory: %w", err)
		}
		if info, err := os.Stat(vaultRoot); err != nil || !info.IsDir() {
			return fmt.Errorf("vault directory %s does not exist", vaultRoot)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"], vaultRoot)
		cfg.Settings.APISecretPath = filepath.Join(defaults["base_dir"], "api_secret.age")

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Vault:     %s\n", vaultRoot)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		s := cfg.Settings
		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Device ID:     %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Vault:         %s\n", cfg.Vault.Root)
		fmt.Printf("Uploader:      %s\n", cfg.Uploader.Type)
		fmt.Printf("Auto upload:   %t\n", s.AutoUpload)
		fmt.Printf("Account:       %s\n", s.AccountID)
		fmt.Printf("Upload preset: %s\n", s.UploadPreset)
		fmt.Printf("API key set:   %t\n", s.APIKey != "")
		fmt.Printf("Local copy:    %t (%s)\n", s.LocalCopy, s.LocalCopyFolder)
		fmt.Printf("Cache:         %s\n", s.CachePath)
		return nil
	},
}

var configSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Seal the API secret with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Settings.APISecretPath == "" {
			return fmt.Errorf("api_secret_path is not set in the configuration")
		}

		secret, err := readPassphrase("API secret: ")
		if err != nil {
			return err
		}
		passphrase := os.Getenv(app.EnvPassphrase)
		if passphrase == "" {
			if passphrase, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return errors.New("passphrases do not match")
			}
		}

		box := encryption.NewSecretBox(cfg.Settings.APISecretPath)
		if err := box.Seal(strings.TrimSpace(secret), passphrase); err != nil {
			return err
		}
		fmt.Printf("API secret sealed at %s\n", box.Path())
		fmt.Printf("Set %s to unlock it.\n", app.EnvPassphrase)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and process new images",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "watch")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Watching vault; press Ctrl-C to stop.")
		if err := a.Watch(ctx); err != nil {
			return err
		}
		fmt.Println(a.Operation().Summary())
		return nil
	},
}

// ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest PATH...",
	Short: "Upload or copy the given images now",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ingest")
		if err != nil {
			return err
		}
		defer a.Close()

		outcomes, err := a.Ingest(cmd.Context(), args)
		for _, out := range outcomes {
			fmt.Printf("%-40s  %s\n", out.Path, out)
			if out.Err != nil {
				fmt.Printf("%-40s  error: %v\n", "", out.Err)
			}
		}
		if err != nil {
			return err
		}
		if a.Operation().Status() != "success" {
			return fmt.Errorf("some intakes failed")
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the shared upload cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "cache list")
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.CacheEntries()
		if len(entries) == 0 {
			fmt.Println("Cache is empty.")
			return nil
		}

		hashes := make([]string, 0, len(entries))
		for h := range entries {
			hashes = append(hashes, h)
		}
		sort.Strings(hashes)
		for _, h := range hashes {
			e := entries[h]
			fmt.Printf("%s  %-10s  %s  %s\n", h, e.Uploader, e.UploadedAt.Format("2006-01-02 15:04:05"), e.URL)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached upload",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "cache clear")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ClearCache(); err != nil {
			return err
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

var cacheMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade legacy cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "cache migrate")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.MigrateCache()
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %d entries.\n", n)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View intake history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No intakes recorded.")
			return nil
		}

		for _, rec := range records {
			detail := rec.URL
			switch rec.Status {
			case intake.StatusSkipped:
				detail = string(rec.Reason)
			case intake.StatusFailed:
				detail = string(rec.ErrorKind)
			case intake.StatusCopiedLocally:
				detail = rec.LocalPath
			}
			fmt.Printf("%s  %-20s  %-40s  %-8s  %s\n",
				rec.StartedAt.Format("2006-01-02 15:04:05"),
				rec.Status,
				rec.Path,
				rec.FinishedAt.Sub(rec.StartedAt).Truncate(time.Millisecond),
				detail,
			)
		}
		return nil
	},
}

// preset command
var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage upload presets",
}

var presetCreateCmd = &cobra.Command{
	Use:   "create [NAME]",
	Short: "Create an unsigned upload preset and save it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		a, err := newApp(cmd.Context(), "preset create")
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.CreatePreset(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Printf("Upload preset %q saved to the configuration.\n", created)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the intake history database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.MigrateDatabase(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSecretCmd)

	// cache subcommands
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheMigrateCmd)

	presetCmd.AddCommand(presetCreateCmd)
	dbCmd.AddCommand(dbMigrateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of intakes to show")
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(dbCmd)
}
