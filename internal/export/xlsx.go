package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/textutil"
)

const (
	xlsxTimeLayout = "2006-01-02 15:04:05"

	// Excel rejects cell text beyond 32767 characters; message bodies are
	// cut well below that.
	xlsxMaxBody = 32000

	conversationPageSize = 200
)

// XLSX writes a case report workbook: Summary, Conversations, Messages,
// and Logins sheets.
func XLSX(ctx context.Context, st *store.Store, caseID, outPath string) error {
	c, err := st.GetCase(caseID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("case %q not found", caseID)
	}

	imports, err := st.ListImports(caseID)
	if err != nil {
		return err
	}
	logins, err := st.ListLogins(caseID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return err
	}
	for _, sheet := range []string{"Conversations", "Messages", "Logins"} {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}

	setHeaders(f, "Conversations", []string{
		"Thread ID", "Section", "Participants", "Started", "Last active",
		"Messages", "Attachments", "Shares", "Calls",
	})
	setHeaders(f, "Messages", []string{
		"Thread ID", "Seq", "Sent", "Author", "Type", "Body",
		"Attachments", "Share URL", "Call seconds", "Removed",
	})
	setHeaders(f, "Logins", []string{"Import", "Time", "IP address", "Action"})

	var convTotal int64
	var msgCount, attCount int
	convRow, msgRow := 1, 1

	for offset := 0; ; offset += conversationPageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		convs, total, err := st.ListConversations(caseID, offset, conversationPageSize)
		if err != nil {
			return err
		}
		convTotal = total

		for i := range convs {
			conv := &convs[i]
			convRow++
			f.SetCellValue("Conversations", fmt.Sprintf("A%d", convRow), conv.ThreadID)
			f.SetCellValue("Conversations", fmt.Sprintf("B%d", convRow), conv.Section)
			f.SetCellValue("Conversations", fmt.Sprintf("C%d", convRow), strings.Join(conv.Participants, ", "))
			f.SetCellValue("Conversations", fmt.Sprintf("D%d", convRow), formatXLSXTime(conv.StartedAt))
			f.SetCellValue("Conversations", fmt.Sprintf("E%d", convRow), formatXLSXTime(conv.LastActiveAt))
			f.SetCellValue("Conversations", fmt.Sprintf("F%d", convRow), conv.MessageCount)
			f.SetCellValue("Conversations", fmt.Sprintf("G%d", convRow), conv.AttachmentCount)
			f.SetCellValue("Conversations", fmt.Sprintf("H%d", convRow), conv.ShareCount)
			f.SetCellValue("Conversations", fmt.Sprintf("I%d", convRow), conv.CallCount)

			if err := writeMessageRows(ctx, f, st, conv, &msgRow, &msgCount, &attCount); err != nil {
				return err
			}
		}
		if len(convs) == 0 || int64(offset+len(convs)) >= total {
			break
		}
	}

	for i, l := range logins {
		row := i + 2
		f.SetCellValue("Logins", fmt.Sprintf("A%d", row), l.ImportID)
		if l.OccurredAt != nil {
			f.SetCellValue("Logins", fmt.Sprintf("B%d", row), l.OccurredAt.Format(xlsxTimeLayout))
		}
		f.SetCellValue("Logins", fmt.Sprintf("C%d", row), l.IPAddress)
		f.SetCellValue("Logins", fmt.Sprintf("D%d", row), l.Action)
	}

	summary := [][2]interface{}{
		{"Case", c.Name},
		{"Case ID", c.ID},
		{"Subject", c.Subject.String},
		{"Generated", time.Now().UTC().Format(xlsxTimeLayout)},
		{"Imports", len(imports)},
		{"Conversations", convTotal},
		{"Messages", msgCount},
		{"Attachments", attCount},
		{"Login events", len(logins)},
	}
	for i, kv := range summary {
		row := i + 1
		f.SetCellValue("Summary", fmt.Sprintf("A%d", row), kv[0])
		f.SetCellValue("Summary", fmt.Sprintf("B%d", row), kv[1])
	}

	if idx, err := f.GetSheetIndex("Summary"); err == nil {
		f.SetActiveSheet(idx)
	}

	return f.SaveAs(outPath)
}

func writeMessageRows(ctx context.Context, f *excelize.File, st *store.Store, conv *store.ConversationSummary, row, msgCount, attCount *int) error {
	for offset := 0; ; offset += messagePageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, total, err := st.ListMessages(conv.ID, offset, messagePageSize)
		if err != nil {
			return err
		}
		for i := range msgs {
			m := &msgs[i]
			*row++
			*msgCount++
			*attCount += len(m.Attachments)

			f.SetCellValue("Messages", fmt.Sprintf("A%d", *row), conv.ThreadID)
			f.SetCellValue("Messages", fmt.Sprintf("B%d", *row), m.Seq)
			if m.SentAt != nil {
				f.SetCellValue("Messages", fmt.Sprintf("C%d", *row), m.SentAt.Format(xlsxTimeLayout))
			}
			f.SetCellValue("Messages", fmt.Sprintf("D%d", *row), m.Author)
			f.SetCellValue("Messages", fmt.Sprintf("E%d", *row), m.Type)
			f.SetCellValue("Messages", fmt.Sprintf("F%d", *row), textutil.TruncateRunes(m.Body, xlsxMaxBody))
			f.SetCellValue("Messages", fmt.Sprintf("G%d", *row), len(m.Attachments))
			if m.Share != nil {
				f.SetCellValue("Messages", fmt.Sprintf("H%d", *row), m.Share.URL)
			}
			if m.Call != nil {
				f.SetCellValue("Messages", fmt.Sprintf("I%d", *row), m.Call.DurationSeconds)
			}
			if m.RemovedBySender {
				f.SetCellValue("Messages", fmt.Sprintf("J%d", *row), "yes")
			}
		}
		if len(msgs) == 0 || int64(offset+len(msgs)) >= total {
			return nil
		}
	}
}

func setHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			continue
		}
		f.SetCellValue(sheet, cell, h)
	}
}

func formatXLSXTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(xlsxTimeLayout)
}
