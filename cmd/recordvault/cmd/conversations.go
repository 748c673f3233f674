package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	convLimit  int
	convOffset int
	convJSON   bool
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations <case>",
	Short: "List the conversations in a case",
	Long: `List the message threads stored for a case, newest activity first.

The ID column is the conversation row ID accepted by 'show' and the
export commands; the thread ID is the platform's own identifier.

Examples:
  recordvault conversations smith-2020
  recordvault conversations smith-2020 --limit 100 --json`,
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

		convs, total, err := s.ListConversations(c.ID, convOffset, convLimit)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(convs) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		if convJSON {
			output := make([]map[string]interface{}, len(convs))
			for i, conv := range convs {
				output[i] = map[string]interface{}{
					"id":               conv.ID,
					"thread_id":        conv.ThreadID,
					"section":          conv.Section,
					"participants":     conv.Participants,
					"message_count":    conv.MessageCount,
					"attachment_count": conv.AttachmentCount,
					"share_count":      conv.ShareCount,
					"call_count":       conv.CallCount,
					"started_at":       conv.StartedAt.Format(time.RFC3339),
					"last_active_at":   conv.LastActiveAt.Format(time.RFC3339),
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(output)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTHREAD\tPARTICIPANTS\tMSGS\tMEDIA\tLAST ACTIVE")
		fmt.Fprintln(w, "──\t──────\t────────────\t────\t─────\t───────────")
		for _, conv := range convs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
				conv.ID,
				truncate(conv.ThreadID, 20),
				truncate(strings.Join(conv.Participants, ", "), 40),
				conv.MessageCount,
				conv.AttachmentCount,
				conv.LastActiveAt.Format("2006-01-02"),
			)
		}
		w.Flush()

		fmt.Printf("\nShowing %d of %d conversations\n", len(convs), total)
		return nil
	},
}

func init() {
	conversationsCmd.Flags().IntVarP(&convLimit, "limit", "n", 50, "maximum number of conversations")
	conversationsCmd.Flags().IntVar(&convOffset, "offset", 0, "skip first N conversations")
	conversationsCmd.Flags().BoolVar(&convJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(conversationsCmd)
}
