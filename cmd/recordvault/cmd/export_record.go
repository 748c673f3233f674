package cmd

import (
	"fmt"
	"os"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/export"
	"github.com/recordvault/recordvault/internal/instagram"
	"github.com/spf13/cobra"
)

var exportRecordOutput string

var exportRecordCmd = &cobra.Command{
	Use:   "record <archive.zip>",
	Short: "Parse an archive and emit the record as JSON",
	Long: `Parse an export archive and write the complete parsed record as JSON,
without touching the vault.

The output carries everything the parser recovered: request
parameters, profile, conversations with messages, device and login
history, photos and the section inventory. Useful for feeding other
tooling or for diffing two productions of the same account.

Examples:
  recordvault export record records.zip > record.json
  recordvault export record records.zip -o record.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex, err := archive.Open(args[0], archive.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}

		parser := instagram.NewParser(instagram.WithLogger(logger))
		rec, err := parser.Parse(cmd.Context(), ex)
		if err != nil {
			return fmt.Errorf("parse record: %w", err)
		}

		if exportRecordOutput == "" || exportRecordOutput == "-" {
			return export.RecordJSON(os.Stdout, rec)
		}

		f, err := os.Create(exportRecordOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		if err := export.RecordJSON(f, rec); err != nil {
			f.Close()
			return fmt.Errorf("write record: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write record: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Wrote %s\n", exportRecordOutput)
		return nil
	},
}

func init() {
	exportRecordCmd.Flags().StringVarP(&exportRecordOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.AddCommand(exportRecordCmd)
}
