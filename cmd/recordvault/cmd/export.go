package cmd

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversations, media and reports",
	Long: `Export vault contents for review tools and disclosure.

Subcommands:
  eml          one RFC 5322 file per message, media embedded
  attachments  stored media of a conversation, to a directory or zip
  xlsx         spreadsheet report over a whole case
  record       parse an archive and emit the record as JSON`,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
