package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/config"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "recordvault",
	Short: "Offline vault for Meta Business Record exports",
	Long: `recordvault is an offline evidence vault for Meta Business Record
exports. It parses the records.html document inside an export ZIP,
stores conversations, media, and account metadata in a local SQLite
database, and provides browse, search, export, and serving tools on top.

Nothing leaves the machine: no network access is needed except for the
optional self-update check.`,
	// Errors are printed by ExecuteContext so they can carry eris
	// context in verbose runs.
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "update" {
			return nil
		}

		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like RECORDVAULT_HOME).
		var err error
		cfg, err = config.Load(homeDir, cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Ensure home directory exists on first use
		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		startUpdateCheck(cmd)
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context, enabling
// graceful shutdown when the context is cancelled. Command failures are
// printed here rather than by cobra so verbose runs can include the
// eris trace of the root cause.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	printUpdateNotice()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %s\n", formatError(err))
	}
	return err
}

// formatError renders a command failure for the terminal. Verbose runs
// include the eris stack trace so the failing call site is visible;
// otherwise only the wrap chain is shown.
func formatError(err error) string {
	return strings.TrimSpace(eris.ToString(err, verbose))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.recordvault/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides RECORDVAULT_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
