package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/recordvault/recordvault/internal/fileutil"
	"github.com/recordvault/recordvault/internal/store"
)

// emlDomain is the synthetic domain for message addresses. Instagram
// records carry usernames, not mailboxes; .invalid keeps the generated
// addresses undeliverable by construction.
const emlDomain = "instagram.invalid"

// EMLStats reports what an EML export wrote.
type EMLStats struct {
	Messages int
	Embedded int // attachments embedded into messages
	Missing  int // attachments with no stored content
}

// EML writes each message of a conversation as an RFC 5322 file under
// outDir. Stored attachments are embedded; the thread identifier and
// message type ride along as X- headers so mail tooling can filter on
// them.
func EML(ctx context.Context, st *store.Store, attachmentsDir string, conversationID int64, outDir string) (*EMLStats, error) {
	conv, err := st.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %d not found", conversationID)
	}

	if err := fileutil.SecureMkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	stats := &EMLStats{}
	for offset := 0; ; offset += messagePageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, total, err := st.ListMessages(conversationID, offset, messagePageSize)
		if err != nil {
			return nil, err
		}
		for i := range msgs {
			if err := writeEML(&msgs[i], conv, attachmentsDir, outDir, stats); err != nil {
				return nil, err
			}
			stats.Messages++
		}
		if len(msgs) == 0 || int64(offset+len(msgs)) >= total {
			return stats, nil
		}
	}
}

func writeEML(m *store.MessageView, conv *store.ConversationSummary, attachmentsDir, outDir string, stats *EMLStats) error {
	author := m.Author
	if author == "" {
		author = "unknown"
	}

	b := enmime.Builder().
		From(author, syntheticAddress(author)).
		Subject(fmt.Sprintf("Instagram thread %s [%d]", conv.ThreadID, m.Seq)).
		Header("X-Thread-ID", conv.ThreadID).
		Header("X-Message-Type", m.Type).
		Text([]byte(emlBody(m)))

	recipients := 0
	for _, p := range conv.Participants {
		if p == m.Author {
			continue
		}
		b = b.To(p, syntheticAddress(p))
		recipients++
	}
	if recipients == 0 {
		b = b.To("", "thread-"+conv.ThreadID+"@"+emlDomain)
	}

	if m.SentAt != nil {
		b = b.Date(*m.SentAt)
	}

	for _, att := range m.Attachments {
		if !att.Resolved || att.StoragePath == "" {
			stats.Missing++
			continue
		}
		data, err := readBlob(attachmentsDir, att.StoragePath)
		if err != nil {
			stats.Missing++
			continue
		}
		name := SanitizeFilename(path.Base(att.SourcePath))
		if name == "" || name == "." {
			name = att.ContentHash
		}
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		b = b.AddAttachment(data, mimeType, name)
		stats.Embedded++
	}

	part, err := b.Build()
	if err != nil {
		return fmt.Errorf("build message %d: %w", m.Seq, err)
	}

	name := fmt.Sprintf("%s-%05d.eml", conv.ThreadID, m.Seq)
	f, err := os.OpenFile(filepath.Join(outDir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := part.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.Close()
}

// emlBody picks readable text for an exported message.
func emlBody(m *store.MessageView) string {
	switch {
	case m.Body != "":
		return m.Body
	case m.RemovedBySender:
		return "[message removed by sender]"
	case m.Share != nil:
		if m.Share.URL != "" {
			return m.Share.URL
		}
		return m.Share.Text
	case m.Call != nil:
		return fmt.Sprintf("[%s call, %d seconds]", m.Call.Type, m.Call.DurationSeconds)
	case len(m.Attachments) > 0:
		return fmt.Sprintf("[%s attachment]", m.Type)
	default:
		return "[" + m.Type + "]"
	}
}

// syntheticAddress turns a participant name into an address local part.
func syntheticAddress(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '+':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	local := sb.String()
	if local == "" {
		local = "unknown"
	}
	return local + "@" + emlDomain
}
