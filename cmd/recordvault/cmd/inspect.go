package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/export"
	"github.com/recordvault/recordvault/internal/instagram"
	"github.com/recordvault/recordvault/internal/textutil"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive.zip>",
	Short: "Parse an export archive without importing it",
	Long: `Parse an export archive and summarize what it contains, without
touching the vault.

Use this to triage an archive before deciding which case it belongs
to, or to debug a document the importer complained about. The section
inventory shows which parts of the record were found, which were
served empty by the platform, and which are absent.

With --json the complete parsed record is written to stdout.

Examples:
  recordvault inspect ~/evidence/instagram-78205126.zip
  recordvault inspect records.zip --json > record.json`,
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

		if inspectJSON {
			return export.RecordJSON(os.Stdout, rec)
		}

		printRecordSummary(ex, rec)
		return nil
	},
}

func printRecordSummary(ex *archive.Export, rec *instagram.Record) {
	fmt.Printf("Document: %s (%s layout)\n", ex.DocumentName, rec.Layout)

	rp := rec.RequestParameters
	if rp != (instagram.RequestParameters{}) {
		fmt.Println("\nRequest parameters:")
		printField("Service", rp.Service)
		printField("Target", rp.Target)
		printField("Account", rp.AccountIdentifier)
		printField("Ticket", rp.TicketNumber)
		if rp.GeneratedAt != nil {
			printField("Generated", timestampOrDash(rp.GeneratedAt))
		}
		if rp.RangeStart != nil || rp.RangeEnd != nil {
			printField("Range", fmt.Sprintf("%s - %s",
				dateOrDash(rp.RangeStart), dateOrDash(rp.RangeEnd)))
		}
	}

	if p := rec.Profile; p != nil {
		name := p.Username
		if name == "" {
			name = p.PlatformID
		}
		fmt.Printf("\nProfile: %s", name)
		if p.DisplayName != "" {
			fmt.Printf(" (%s)", p.DisplayName)
		}
		if p.Inferred {
			fmt.Print(" [inferred from conversations]")
		}
		fmt.Println()
		printField("Platform ID", p.PlatformID)
		printField("Emails", strings.Join(p.Emails, ", "))
		printField("Phones", strings.Join(p.PhoneNumbers, ", "))
		printField("Status", p.AccountStatus)
	}

	if len(rec.Sections) > 0 {
		fmt.Println("\nSections:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tSTATE")
		for _, sec := range rec.Sections {
			fmt.Fprintf(w, "  %s\t%s\n", sec.Name, sec.State)
		}
		w.Flush()
	}

	fmt.Println()
	fmt.Printf("Conversations: %d | Messages: %d | Directory: %d participants\n",
		len(rec.Conversations), rec.MessageCount(), len(rec.Directory))
	fmt.Printf("Media: %d resolved, %d missing from archive\n",
		rec.MediaResolved, rec.MediaMissing)
	if n := len(rec.Following) + len(rec.Followers); n > 0 {
		fmt.Printf("Social links: %d following, %d followers\n",
			len(rec.Following), len(rec.Followers))
	}
	if len(rec.Devices) > 0 || len(rec.Logins) > 0 {
		fmt.Printf("Devices: %d | Logins: %d\n", len(rec.Devices), len(rec.Logins))
	}
	if len(rec.Photos) > 0 {
		fmt.Printf("Photos: %d\n", len(rec.Photos))
	}
	if len(rec.CyberTips) > 0 {
		fmt.Printf("CyberTip reports: %d\n", len(rec.CyberTips))
	}

	if len(rec.Diagnostics) > 0 {
		fmt.Printf("\nDiagnostics: %d\n", len(rec.Diagnostics))
		for i, d := range rec.Diagnostics {
			if i == 10 {
				fmt.Printf("  ... and %d more\n", len(rec.Diagnostics)-10)
				break
			}
			loc := d.Section
			if d.Context != "" {
				loc += " " + d.Context
			}
			fmt.Printf("  - [%s] %s\n", loc, textutil.SanitizeTerminal(d.Message))
		}
	}

	if len(ex.Warnings) > 0 {
		fmt.Printf("\nArchive warnings: %d\n", len(ex.Warnings))
		for _, w := range ex.Warnings {
			fmt.Printf("  - %s\n", textutil.SanitizeTerminal(w))
		}
	}
}

func printField(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("  %-12s %s\n", label+":", value)
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "write the full parsed record as JSON to stdout")
	rootCmd.AddCommand(inspectCmd)
}
