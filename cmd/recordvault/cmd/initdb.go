package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the vault database schema",
	Long: `Initialize the recordvault database with the required schema.

This command creates all tables for storing cases, imports,
conversations, messages, attachments, and account metadata. It is safe
to run multiple times - tables are only created if they don't already
exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := cfg.DatabasePath()
		logger.Info("initializing database", "path", dbPath)

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("database initialized successfully")

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		printVaultStats(dbPath, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
