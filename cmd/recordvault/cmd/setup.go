package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/scheduler"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for first-run configuration",
	Long: `Interactive setup wizard to configure recordvault for first use.

This command helps you:
  1. Choose where the vault keeps its data
  2. Generate an API key for the HTTP API
  3. Optionally set up a watch directory for automatic imports

Run this once after installing recordvault to get started quickly.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println("Welcome to recordvault setup!")
	fmt.Println()

	if err := cfg.EnsureHomeDir(); err != nil {
		return fmt.Errorf("create home directory: %w", err)
	}

	dataDir := cfg.Storage.DataDir
	generateKey := cfg.API.Key == ""
	watchDir := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("vault.db and stored media live here").
				Value(&dataDir).
				Validate(validateDataDir),
			huh.NewConfirm().
				Title("Generate an API key?").
				Description("Locks the HTTP API down before it ever starts").
				Value(&generateKey),
			huh.NewInput().
				Title("Watch directory (optional)").
				Description("Archives dropped here are imported automatically by 'serve'").
				Value(&watchDir).
				Validate(validateWatchDir),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}

	cfg.Storage.DataDir = expandHome(strings.TrimSpace(dataDir))

	var apiKey string
	if generateKey {
		key, err := newAPIKey()
		if err != nil {
			return fmt.Errorf("generate api key: %w", err)
		}
		apiKey = key
		cfg.API.Key = apiKey
	}

	watchDir = expandHome(strings.TrimSpace(watchDir))
	var watchCase, watchSchedule string
	if watchDir != "" {
		watchCase, watchSchedule = "", "*/15 * * * *"
		watchForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Case for watched archives").
					Description("Archives found in the watch directory are imported into this case").
					Value(&watchCase).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("name a case")
						}
						return nil
					}),
				huh.NewSelect[string]().
					Title("Scan schedule").
					Options(
						huh.NewOption("every 15 minutes", "*/15 * * * *"),
						huh.NewOption("hourly", "0 * * * *"),
						huh.NewOption("daily at 02:00", "0 2 * * *"),
					).
					Value(&watchSchedule),
			),
		)
		if err := watchForm.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Setup cancelled.")
				return nil
			}
			return fmt.Errorf("setup form: %w", err)
		}

		if err := scheduler.ValidateCronExpr(watchSchedule); err != nil {
			return err
		}
		addWatch(cfg, config.WatchEntry{
			Dir:      watchDir,
			Case:     strings.TrimSpace(watchCase),
			Schedule: watchSchedule,
			Enabled:  true,
		})
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Configuration saved to %s\n", filepath.Join(cfg.HomeDir, "config.toml"))

	if apiKey != "" {
		fmt.Println()
		fmt.Println("API key (also stored in config.toml):")
		fmt.Printf("  %s\n", apiKey)
	}

	fmt.Println()
	fmt.Println("Setup complete! Next steps:")
	fmt.Println()
	fmt.Println("  1. Create a case:")
	fmt.Println("     recordvault case create smith-2020 --subject jdoe_2020")
	fmt.Println()
	fmt.Println("  2. Import an export archive:")
	fmt.Println("     recordvault import smith-2020 ~/evidence/records.zip")
	fmt.Println()
	fmt.Println("  3. Browse it:")
	fmt.Println("     recordvault tui smith-2020")
	if watchDir != "" {
		fmt.Println()
		fmt.Println("  4. Start the daemon so the watch directory is scanned:")
		fmt.Println("     recordvault serve")
	}
	fmt.Println()
	fmt.Println("For more help: recordvault --help")

	return nil
}

func validateDataDir(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("enter a directory")
	}
	return nil
}

// validateWatchDir accepts empty (watch is optional) but an entered
// directory must exist.
func validateWatchDir(s string) error {
	s = expandHome(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("directory not found")
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}
	return nil
}

// addWatch appends a watch entry, replacing an existing entry for the
// same directory instead of duplicating it.
func addWatch(c *config.Config, entry config.WatchEntry) {
	for i, w := range c.Watch {
		if w.Dir == entry.Dir {
			c.Watch[i] = entry
			return
		}
	}
	c.Watch = append(c.Watch, entry)
}

// newAPIKey returns a 64-character hex key from 32 random bytes.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
