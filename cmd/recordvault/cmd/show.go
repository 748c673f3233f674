package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/recordvault/recordvault/internal/store"
	"github.com/spf13/cobra"
)

var (
	showLimit  int
	showOffset int
	showJSON   bool
)

// showBatchSize bounds how many messages are held in memory at once
// when printing a conversation.
const showBatchSize = 500

var showCmd = &cobra.Command{
	Use:   "show <conversation>",
	Short: "Print a conversation transcript",
	Long: `Print the full transcript of a conversation, oldest message first.

The conversation may be given as the row ID from 'conversations' or as
the platform thread ID. Removed messages are kept in place and marked;
attachments, link shares and calls appear under the message that
carried them.

Examples:
  recordvault show 42
  recordvault show 340282366841710300949128123012354985 --json`,
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

		if showJSON {
			return outputConversationJSON(s, conv)
		}
		return outputConversationText(s, conv)
	},
}

func outputConversationText(s *store.Store, conv *store.ConversationSummary) error {
	fmt.Println("═══════════════════════════════════════════════════════════════════════════════")
	fmt.Printf("Conversation %d (thread %s)\n", conv.ID, conv.ThreadID)
	fmt.Println("───────────────────────────────────────────────────────────────────────────────")
	if conv.Section != "" {
		fmt.Printf("Section:      %s\n", conv.Section)
	}
	fmt.Printf("Participants: %s\n", strings.Join(conv.Participants, ", "))
	fmt.Printf("Messages:     %d", conv.MessageCount)
	var extras []string
	if conv.AttachmentCount > 0 {
		extras = append(extras, fmt.Sprintf("%d attachments", conv.AttachmentCount))
	}
	if conv.ShareCount > 0 {
		extras = append(extras, fmt.Sprintf("%d shares", conv.ShareCount))
	}
	if conv.CallCount > 0 {
		extras = append(extras, fmt.Sprintf("%d calls", conv.CallCount))
	}
	if len(extras) > 0 {
		fmt.Printf(" (%s)", strings.Join(extras, ", "))
	}
	fmt.Println()
	fmt.Printf("Active:       %s to %s\n",
		conv.StartedAt.Format("2006-01-02"), conv.LastActiveAt.Format("2006-01-02"))
	fmt.Println("═══════════════════════════════════════════════════════════════════════════════")

	printed := 0
	offset := showOffset
	for {
		batch := showBatchSize
		if showLimit > 0 && showLimit-printed < batch {
			batch = showLimit - printed
		}
		if batch <= 0 {
			break
		}

		messages, total, err := s.ListMessages(conv.ID, offset, batch)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			printMessage(msg)
		}

		printed += len(messages)
		offset += len(messages)
		if int64(offset) >= total {
			break
		}
	}

	if printed == 0 {
		fmt.Println("(no messages)")
	}
	return nil
}

func printMessage(msg store.MessageView) {
	sentAt := "(no timestamp)"
	if msg.SentAt != nil {
		sentAt = msg.SentAt.UTC().Format("2006-01-02 15:04:05")
	}
	author := msg.Author
	if author == "" {
		author = "(unknown)"
	}
	fmt.Printf("\n[%d] %s  %s\n", msg.Seq, sentAt, author)

	if msg.RemovedBySender {
		fmt.Println("      [removed by sender]")
	}
	if msg.Body != "" {
		for _, line := range strings.Split(msg.Body, "\n") {
			fmt.Printf("      %s\n", line)
		}
	}
	for _, att := range msg.Attachments {
		status := ""
		if !att.Resolved {
			status = " [missing]"
		}
		fmt.Printf("      [attachment] %s (%s, %s)%s\n",
			att.SourcePath, att.MIMEType, formatSize(att.Size), status)
	}
	if msg.Share != nil {
		line := fmt.Sprintf("      [share] %s", msg.Share.URL)
		if msg.Share.Text != "" {
			line += fmt.Sprintf(" (%s)", truncate(msg.Share.Text, 60))
		}
		fmt.Println(line)
	}
	if msg.Call != nil {
		desc := msg.Call.Type
		if msg.Call.Missed {
			desc += ", missed"
		} else if msg.Call.DurationSeconds > 0 {
			desc += ", " + formatDuration(time.Duration(msg.Call.DurationSeconds)*time.Second)
		}
		fmt.Printf("      [call] %s\n", desc)
	}
}

func outputConversationJSON(s *store.Store, conv *store.ConversationSummary) error {
	var messages []map[string]interface{}
	offset := showOffset
	for {
		batch := showBatchSize
		if showLimit > 0 && showLimit-len(messages) < batch {
			batch = showLimit - len(messages)
		}
		if batch <= 0 {
			break
		}

		page, total, err := s.ListMessages(conv.ID, offset, batch)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, msg := range page {
			messages = append(messages, messageJSON(msg))
		}
		offset += len(page)
		if int64(offset) >= total {
			break
		}
	}

	output := map[string]interface{}{
		"id":             conv.ID,
		"thread_id":      conv.ThreadID,
		"section":        conv.Section,
		"participants":   conv.Participants,
		"message_count":  conv.MessageCount,
		"started_at":     conv.StartedAt.Format(time.RFC3339),
		"last_active_at": conv.LastActiveAt.Format(time.RFC3339),
		"messages":       messages,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func messageJSON(msg store.MessageView) map[string]interface{} {
	m := map[string]interface{}{
		"id":     msg.ID,
		"seq":    msg.Seq,
		"author": msg.Author,
		"body":   msg.Body,
		"type":   msg.Type,
	}
	if msg.SentAt != nil {
		m["sent_at"] = msg.SentAt.UTC().Format(time.RFC3339)
	}
	if msg.RemovedBySender {
		m["removed_by_sender"] = true
	}
	if len(msg.Attachments) > 0 {
		attachments := make([]map[string]interface{}, len(msg.Attachments))
		for i, att := range msg.Attachments {
			attachments[i] = map[string]interface{}{
				"source_path":  att.SourcePath,
				"mime_type":    att.MIMEType,
				"size":         att.Size,
				"content_hash": att.ContentHash,
				"resolved":     att.Resolved,
			}
		}
		m["attachments"] = attachments
	}
	if msg.Share != nil {
		share := map[string]interface{}{
			"url":  msg.Share.URL,
			"text": msg.Share.Text,
		}
		if msg.Share.DateCreated != nil {
			share["date_created"] = msg.Share.DateCreated.UTC().Format(time.RFC3339)
		}
		m["share"] = share
	}
	if msg.Call != nil {
		m["call"] = map[string]interface{}{
			"type":             msg.Call.Type,
			"missed":           msg.Call.Missed,
			"duration_seconds": msg.Call.DurationSeconds,
		}
	}
	return m
}

func init() {
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "maximum number of messages (0 = all)")
	showCmd.Flags().IntVar(&showOffset, "offset", 0, "skip first N messages")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(showCmd)
}
