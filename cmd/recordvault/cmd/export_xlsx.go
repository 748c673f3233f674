package cmd

import (
	"fmt"

	"github.com/recordvault/recordvault/internal/export"
	"github.com/spf13/cobra"
)

var exportXLSXOutput string

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx <case>",
	Short: "Export a case as a spreadsheet report",
	Long: `Export a whole case as an .xlsx workbook.

The workbook has a Summary sheet plus Conversations, Messages and
Logins sheets, one row per record. Message bodies are included, so the
file can get large for busy cases.

Examples:
  recordvault export xlsx smith-2020
  recordvault export xlsx smith-2020 -o ~/reports/smith.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := resolveCase(s, args[0])
		if err != nil {
			return err
		}

		outPath := exportXLSXOutput
		if outPath == "" {
			outPath = c.Name + ".xlsx"
		}

		if err := export.XLSX(cmd.Context(), s, c.ID, outPath); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}

		fmt.Printf("Exported case %s to %s\n", c.Name, outPath)
		return nil
	},
}

func init() {
	exportXLSXCmd.Flags().StringVarP(&exportXLSXOutput, "output", "o", "", "output file (default: <case name>.xlsx)")
	exportCmd.AddCommand(exportXLSXCmd)
}
