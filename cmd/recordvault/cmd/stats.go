package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

var (
	statsEngine string
	statsDaily  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats [case]",
	Short: "Show vault or per-case statistics",
	Long: `Show statistics about the vault, or about one case.

Without arguments the vault-wide row counts are printed. With a case
ID or name, the case totals plus the top senders and message type
breakdown are computed through the selected query engine.

The duckdb engine attaches the vault via sqlite_scan and is worth it
on cases with hundreds of thousands of messages; sqlite is the
default and always available.

Examples:
  recordvault stats
  recordvault stats smith-2020
  recordvault stats smith-2020 --engine duckdb --daily`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 0 {
			stats, err := s.GetStats()
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			printVaultStats(cfg.DatabasePath(), stats)
			return nil
		}

		c, err := resolveCase(s, args[0])
		if err != nil {
			return err
		}

		engine, err := newEngine(s, statsEngine)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx := cmd.Context()
		totals, err := engine.CaseTotals(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("case totals: %w", err)
		}

		fmt.Printf("Case: %s (%s)\n", c.Name, c.ID)
		fmt.Printf("  Imports:        %d\n", totals.Imports)
		fmt.Printf("  Conversations:  %d\n", totals.Conversations)
		fmt.Printf("  Messages:       %d\n", totals.Messages)
		fmt.Printf("  Attachments:    %d\n", totals.Attachments)
		fmt.Printf("  Participants:   %d\n", totals.Participants)
		fmt.Printf("  Social links:   %d\n", totals.SocialLinks)
		fmt.Printf("  Devices:        %d\n", totals.Devices)
		fmt.Printf("  Logins:         %d\n", totals.Logins)
		fmt.Printf("  Photos:         %d\n", totals.Photos)
		if totals.FirstMessage != nil && totals.LastMessage != nil {
			fmt.Printf("  Message range:  %s - %s\n",
				dateOrDash(totals.FirstMessage), dateOrDash(totals.LastMessage))
		}

		senders, err := engine.TopSenders(ctx, c.ID, query.Options{Limit: 10})
		if err != nil {
			return fmt.Errorf("top senders: %w", err)
		}
		if len(senders) > 0 {
			fmt.Println()
			printAggregateTable("Sender", senders)
		}

		types, err := engine.TypeBreakdown(ctx, c.ID, query.Options{})
		if err != nil {
			return fmt.Errorf("type breakdown: %w", err)
		}
		if len(types) > 0 {
			fmt.Println()
			printAggregateTable("Type", types)
		}

		if statsDaily {
			days, err := engine.MessagesByDay(ctx, c.ID, query.Options{})
			if err != nil {
				return fmt.Errorf("messages by day: %w", err)
			}
			if len(days) > 0 {
				fmt.Println()
				printAggregateTable("Day", days)
			}
		}

		return nil
	},
}

// printVaultStats prints the vault-wide overview shared by init-db and
// the no-argument stats form.
func printVaultStats(dbPath string, stats *store.Stats) {
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("  Cases:          %d\n", stats.CaseCount)
	fmt.Printf("  Imports:        %d\n", stats.ImportCount)
	fmt.Printf("  Conversations:  %d\n", stats.ConversationCount)
	fmt.Printf("  Messages:       %d\n", stats.MessageCount)
	fmt.Printf("  Attachments:    %d\n", stats.AttachmentCount)
	fmt.Printf("  Participants:   %d\n", stats.ParticipantCount)
	fmt.Printf("  Size:           %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
}

func printAggregateTable(keyHeader string, rows []query.AggregateRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCOUNT\n", strings.ToUpper(keyHeader))
	fmt.Fprintln(w, strings.Repeat("─", len(keyHeader))+"\t─────")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\n", truncate(row.Key, 40), row.Count)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsEngine, "engine", "sqlite", "query engine: sqlite or duckdb")
	statsCmd.Flags().BoolVar(&statsDaily, "daily", false, "include the per-day message volume table")
}
