package cmd

import (
	"fmt"

	"github.com/recordvault/recordvault/internal/export"
	"github.com/spf13/cobra"
)

var exportEMLOutput string

var exportEMLCmd = &cobra.Command{
	Use:   "eml <conversation>",
	Short: "Export a conversation as .eml files",
	Long: `Export each message of a conversation as a standard .eml (MIME) file.

Stored media is embedded as MIME parts, so the files stand alone and
open in most mail clients and review tools. The thread ID and message
type are carried in X- headers for filtering.

Examples:
  recordvault export eml 42
  recordvault export eml 42 -o ./smith-thread-42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		conv, err := resolveConversation(s, args[0])
		if err != nil {
			return err
		}

		outDir := exportEMLOutput
		if outDir == "" {
			outDir = fmt.Sprintf("eml-%s", conv.ThreadID)
		}

		stats, err := export.EML(cmd.Context(), s, cfg.AttachmentsDir(), conv.ID, outDir)
		if err != nil {
			return fmt.Errorf("export eml: %w", err)
		}

		fmt.Printf("Exported %d message(s) to %s\n", stats.Messages, outDir)
		if stats.Embedded > 0 {
			fmt.Printf("  %d attachment(s) embedded\n", stats.Embedded)
		}
		if stats.Missing > 0 {
			fmt.Printf("  %d attachment(s) have no stored media and were skipped\n", stats.Missing)
		}
		return nil
	},
}

func init() {
	exportEMLCmd.Flags().StringVarP(&exportEMLOutput, "output", "o", "", "output directory (default: eml-<thread>)")
	exportCmd.AddCommand(exportEMLCmd)
}
