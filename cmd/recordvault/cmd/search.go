package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/recordvault/recordvault/internal/search"
	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchOffset int
	searchJSON   bool
	searchEngine string
)

var searchCmd = &cobra.Command{
	Use:   "search <case> <query...>",
	Short: "Search messages in a case",
	Long: `Search the messages of a case with full-text terms and operators.

Bare words match message bodies through the FTS index; "quoted phrases"
match exactly. Operators narrow the scope:

  from:<user>        messages by a sender (username or platform ID)
  thread:<id>        restrict to one thread
  type:<t>           text, image, video, audio, file, share, call
  has:attachment     messages carrying media
  has:share          messages carrying a link share
  has:link           same as has:share
  has:call           call records
  removed:true       only messages the sender unsent
  before:2020-06-01  sent before a date (also 7d, 2w, 1m, 1y)
  after:2020-01-01   sent on or after a date

Examples:
  recordvault search smith-2020 meet tonight
  recordvault search smith-2020 from:alice_w has:attachment after:2020-03-01
  recordvault search smith-2020 "wire the money" removed:true`,
	Args: cobra.MinimumNArgs(2),
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

		q := search.Parse(strings.Join(args[1:], " "))
		if q.IsEmpty() {
			return fmt.Errorf("empty query: give search terms or operators, see 'recordvault search --help'")
		}

		engine, err := newEngine(s, searchEngine)
		if err != nil {
			return err
		}
		defer engine.Close()

		hits, total, err := engine.Search(cmd.Context(), c.ID, q, searchOffset, searchLimit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if searchJSON {
			output := make([]map[string]interface{}, len(hits))
			for i, hit := range hits {
				m := map[string]interface{}{
					"id":              hit.ID,
					"conversation_id": hit.ConversationID,
					"thread_id":       hit.ThreadID,
					"seq":             hit.Seq,
					"author":          hit.Author,
					"type":            hit.Type,
					"snippet":         hit.Snippet,
				}
				if hit.SentAt != nil {
					m["sent_at"] = hit.SentAt.UTC().Format(time.RFC3339)
				}
				if hit.RemovedBySender {
					m["removed_by_sender"] = true
				}
				output[i] = m
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(output)
		}

		if len(hits) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSENT\tAUTHOR\tTYPE\tSNIPPET")
		fmt.Fprintln(w, "──\t────\t──────\t────\t───────")
		for _, hit := range hits {
			sent := "-"
			if hit.SentAt != nil {
				sent = hit.SentAt.UTC().Format("2006-01-02 15:04")
			}
			snippet := hit.Snippet
			if snippet == "" {
				snippet = hit.Body
			}
			snippet = strings.ReplaceAll(snippet, "\n", " ")
			if hit.RemovedBySender {
				snippet = "[removed] " + snippet
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				hit.ID, sent, truncate(hit.Author, 20), hit.Type, truncate(snippet, 60))
		}
		w.Flush()

		fmt.Printf("\nFound %d messages (showing %d)\n", total, len(hits))
		if total > int64(searchOffset+len(hits)) {
			fmt.Printf("Use --offset %d to see more.\n", searchOffset+len(hits))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 50, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "skip first N results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().StringVar(&searchEngine, "engine", "", "query engine: sqlite (default) or duckdb")
	rootCmd.AddCommand(searchCmd)
}
