package cmd

import (
	"fmt"

	"github.com/recordvault/recordvault/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportAttachmentsOutput string
	exportAttachmentsZip    string
)

var exportAttachmentsCmd = &cobra.Command{
	Use:   "attachments <conversation>",
	Short: "Export a conversation's stored media",
	Long: `Export the stored media of a conversation with the original archive
paths as filenames.

Filenames are sanitized and deduplicated; files are never overwritten,
a numeric suffix is appended on conflict. Attachments the import could
not resolve against archive media are reported but produce no file.

Examples:
  recordvault export attachments 42                  # files → cwd
  recordvault export attachments 42 -o ~/evidence    # files → directory
  recordvault export attachments 42 --zip media.zip  # one zip archive`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportAttachmentsZip != "" && exportAttachmentsOutput != "" {
			return fmt.Errorf("--output and --zip are mutually exclusive")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		conv, err := resolveConversation(s, args[0])
		if err != nil {
			return err
		}

		attachmentsDir := cfg.AttachmentsDir()

		var stats *export.ExportStats
		var dest string
		if exportAttachmentsZip != "" {
			dest = exportAttachmentsZip
			stats, err = export.AttachmentsToZip(cmd.Context(), s, attachmentsDir, conv.ID, dest)
		} else {
			dest = exportAttachmentsOutput
			if dest == "" {
				dest = "."
			}
			stats, err = export.AttachmentsToDir(cmd.Context(), s, attachmentsDir, conv.ID, dest)
		}
		if err != nil {
			return fmt.Errorf("export attachments: %w", err)
		}

		fmt.Println(export.FormatExportResult(stats, dest))

		if len(stats.Errors) > 0 && stats.Count == 0 {
			return fmt.Errorf("all %d attachment(s) failed to export", len(stats.Errors))
		}
		if len(stats.Errors) > 0 {
			return fmt.Errorf("%d attachment(s) failed to export", len(stats.Errors))
		}
		return nil
	},
}

func init() {
	exportAttachmentsCmd.Flags().StringVarP(&exportAttachmentsOutput, "output", "o", "", "output directory (default: current directory)")
	exportAttachmentsCmd.Flags().StringVar(&exportAttachmentsZip, "zip", "", "write a single zip archive instead of loose files")
	exportCmd.AddCommand(exportAttachmentsCmd)
}
