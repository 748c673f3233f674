package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Manage investigation cases",
	Long: `Manage the cases that group imported archives.

Every archive is imported into a case, and all browse, search, and
export commands are scoped to one. Cases are addressed by name or ID.`,
}

var (
	caseSubject string
	caseNotes   string
)

var caseCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.CreateCase(args[0], caseSubject, caseNotes)
		if err != nil {
			return fmt.Errorf("create case: %w", err)
		}

		fmt.Printf("Created case %q\n", c.Name)
		fmt.Printf("  ID: %s\n", c.ID)
		if c.Subject.Valid {
			fmt.Printf("  Subject: %s\n", c.Subject.String)
		}
		fmt.Println()
		fmt.Println("Import an export archive with:")
		fmt.Printf("  recordvault import %s <archive.zip>\n", c.Name)
		return nil
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		cases, err := s.ListCases()
		if err != nil {
			return fmt.Errorf("list cases: %w", err)
		}
		if len(cases) == 0 {
			fmt.Println("No cases found. Create one with 'recordvault case create <name>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSUBJECT\tIMPORTS\tCREATED")
		fmt.Fprintln(w, "──\t────\t───────\t───────\t───────")
		for _, c := range cases {
			imports, err := s.ListImports(c.ID)
			if err != nil {
				return fmt.Errorf("list imports for %s: %w", c.Name, err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				shortID(c.ID),
				truncate(c.Name, 30),
				truncate(c.Subject.String, 30),
				len(imports),
				c.CreatedAt.Format("2006-01-02"),
			)
		}
		w.Flush()
		return nil
	},
}

var caseShowCmd = &cobra.Command{
	Use:   "show <case>",
	Short: "Show case details, imports, and totals",
	Args:  cobra.ExactArgs(1),
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

		fmt.Printf("Case: %s\n", c.Name)
		fmt.Printf("  ID:       %s\n", c.ID)
		if c.Subject.Valid {
			fmt.Printf("  Subject:  %s\n", c.Subject.String)
		}
		if c.Notes.Valid {
			fmt.Printf("  Notes:    %s\n", c.Notes.String)
		}
		fmt.Printf("  Created:  %s\n", c.CreatedAt.Format("2006-01-02 15:04"))

		engine := query.NewSQLiteEngine(s)
		totals, err := engine.CaseTotals(cmd.Context(), c.ID)
		if err != nil {
			return fmt.Errorf("case totals: %w", err)
		}
		fmt.Printf("  Conversations: %d | Messages: %d | Attachments: %d | Participants: %d\n",
			totals.Conversations, totals.Messages, totals.Attachments, totals.Participants)
		if totals.FirstMessage != nil && totals.LastMessage != nil {
			fmt.Printf("  Message range: %s - %s\n",
				dateOrDash(totals.FirstMessage), dateOrDash(totals.LastMessage))
		}

		imports, err := s.ListImports(c.ID)
		if err != nil {
			return fmt.Errorf("list imports: %w", err)
		}
		if len(imports) == 0 {
			fmt.Println("\nNo imports yet.")
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IMPORT\tDOCUMENT\tLAYOUT\tMSGS\tMEDIA\tSTATUS\tSTARTED")
		fmt.Fprintln(w, "──────\t────────\t──────\t────\t─────\t──────\t───────")
		for _, imp := range imports {
			media := fmt.Sprintf("%d/%d", imp.MediaResolved, imp.MediaResolved+imp.MediaMissing)
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
				imp.ID,
				truncate(imp.DocumentName.String, 36),
				imp.Layout.String,
				imp.MessageCount,
				media,
				imp.Status,
				imp.StartedAt.Format("2006-01-02"),
			)
		}
		w.Flush()
		return nil
	},
}

var caseRemoveYes bool

var caseRemoveCmd = &cobra.Command{
	Use:   "remove <case>",
	Short: "Remove a case and all its data",
	Long: `Remove a case and all associated imports, conversations, messages,
and attachment rows from the vault. This is irreversible.

Copied media files are content-addressed and may be shared with other
cases, so they are left on disk.

Examples:
  recordvault case remove smith-2020
  recordvault case remove smith-2020 --yes`,
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

		engine := query.NewSQLiteEngine(s)
		totals, err := engine.CaseTotals(cmd.Context(), c.ID)
		if err != nil {
			return fmt.Errorf("case totals: %w", err)
		}

		fmt.Printf("Case:     %s\n", c.Name)
		fmt.Printf("Imports:  %d\n", totals.Imports)
		fmt.Printf("Messages: %s\n", formatCount(totals.Messages))

		if !caseRemoveYes {
			fmt.Print("\nRemove this case and all its data? [y/N] ")
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Scan()
			answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := s.RemoveCase(c.ID); err != nil {
			return fmt.Errorf("remove case: %w", err)
		}

		fmt.Printf("\nCase %s removed.\n", c.Name)
		return nil
	},
}

var caseExtractOutput string

var caseExtractCmd = &cobra.Command{
	Use:   "extract <case>",
	Short: "Copy one case into a standalone vault database",
	Long: `Copy a case and everything it references into a new standalone
database. The extract opens with any recordvault build, so it can be
handed to another party without shipping the whole vault.

Media files are not copied; pass the attachments directory along if
stored content is needed.

Examples:
  recordvault case extract smith-2020 -o smith-2020.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}

		c, err := resolveCase(s, args[0])
		if err != nil {
			s.Close()
			return err
		}
		// ExtractCase opens the source itself; close our handle first so
		// the WAL is checkpointed.
		if err := s.Close(); err != nil {
			return fmt.Errorf("close vault: %w", err)
		}

		dstPath, err := filepath.Abs(caseExtractOutput)
		if err != nil {
			return fmt.Errorf("resolve output path: %w", err)
		}
		if _, err := os.Stat(dstPath); err == nil {
			return fmt.Errorf("output file already exists: %s", dstPath)
		}

		fmt.Fprintf(os.Stderr, "Extracting case %s...\n", c.Name)

		result, err := store.ExtractCase(cfg.DatabasePath(), dstPath, c.ID)
		if err != nil {
			return fmt.Errorf("extract case: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Created extract in %s\n", result.Elapsed.Round(time.Millisecond))
		fmt.Printf("Imports:       %d\n", result.Imports)
		fmt.Printf("Conversations: %d\n", result.Conversations)
		fmt.Printf("Messages:      %d\n", result.Messages)
		fmt.Printf("Participants:  %d\n", result.Participants)
		fmt.Printf("Attachments:   %d\n", result.Attachments)
		fmt.Printf("Database size: %s\n", formatSize(result.DBSize))
		return nil
	},
}

// shortID abbreviates a case UUID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	caseCreateCmd.Flags().StringVar(&caseSubject, "subject", "", "subject account name or identifier")
	caseCreateCmd.Flags().StringVar(&caseNotes, "notes", "", "free-form case notes")
	caseRemoveCmd.Flags().BoolVarP(&caseRemoveYes, "yes", "y", false, "skip confirmation prompt")
	caseExtractCmd.Flags().StringVarP(&caseExtractOutput, "output", "o", "", "destination database file")
	_ = caseExtractCmd.MarkFlagRequired("output")

	caseCmd.AddCommand(caseCreateCmd)
	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseShowCmd)
	caseCmd.AddCommand(caseRemoveCmd)
	caseCmd.AddCommand(caseExtractCmd)
	rootCmd.AddCommand(caseCmd)
}
