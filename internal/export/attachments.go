// Package export writes vault contents out as files an investigator can
// hand off: attachment dumps, per-message EML files, spreadsheet reports,
// and raw record JSON.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/recordvault/recordvault/internal/fileutil"
	"github.com/recordvault/recordvault/internal/store"
)

// ExportStats reports what an attachment export wrote.
type ExportStats struct {
	Count   int      // files written
	Bytes   int64    // bytes written
	Missing int      // attachments with no stored content
	Errors  []string // per-attachment failures
}

const messagePageSize = 500

// conversationAttachments pages through a conversation's messages and
// collects the attachments that have stored content. Attachments that were
// never resolved against archive media are counted, not returned.
func conversationAttachments(ctx context.Context, st *store.Store, conversationID int64) ([]store.AttachmentView, int, error) {
	var stored []store.AttachmentView
	missing := 0
	for offset := 0; ; offset += messagePageSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		msgs, total, err := st.ListMessages(conversationID, offset, messagePageSize)
		if err != nil {
			return nil, 0, err
		}
		for _, m := range msgs {
			for _, att := range m.Attachments {
				if att.Resolved && att.StoragePath != "" {
					stored = append(stored, att)
				} else {
					missing++
				}
			}
		}
		if len(msgs) == 0 || int64(offset+len(msgs)) >= total {
			return stored, missing, nil
		}
	}
}

// AttachmentsToZip exports a conversation's stored attachments into a zip
// archive. The zip is removed again when nothing could be written.
func AttachmentsToZip(ctx context.Context, st *store.Store, attachmentsDir string, conversationID int64, zipPath string) (*ExportStats, error) {
	conv, err := st.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %d not found", conversationID)
	}

	atts, missing, err := conversationAttachments(ctx, st, conversationID)
	if err != nil {
		return nil, err
	}
	stats := &ExportStats{Missing: missing}

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	zw := zip.NewWriter(zipFile)

	used := make(map[string]bool)
	for _, att := range atts {
		name, ok := uniqueFilename(att, used)
		if !ok {
			continue // same name, same content: already in the archive
		}
		data, err := readBlob(attachmentsDir, att.StoragePath)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		w, err := zw.Create(name)
		if err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			zw.Close()
			zipFile.Close()
			os.Remove(zipPath)
			return nil, fmt.Errorf("write zip entry %s: %w", name, err)
		}
		stats.Count++
		stats.Bytes += int64(len(data))
	}

	if err := zw.Close(); err != nil {
		zipFile.Close()
		os.Remove(zipPath)
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		os.Remove(zipPath)
		return nil, fmt.Errorf("close zip: %w", err)
	}

	if stats.Count == 0 {
		os.Remove(zipPath)
	}
	return stats, nil
}

// AttachmentsToDir exports a conversation's stored attachments as files
// under outDir.
func AttachmentsToDir(ctx context.Context, st *store.Store, attachmentsDir string, conversationID int64, outDir string) (*ExportStats, error) {
	conv, err := st.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %d not found", conversationID)
	}

	atts, missing, err := conversationAttachments(ctx, st, conversationID)
	if err != nil {
		return nil, err
	}
	stats := &ExportStats{Missing: missing}
	if len(atts) == 0 {
		return stats, nil
	}

	if err := fileutil.SecureMkdirAll(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	used := make(map[string]bool)
	for _, att := range atts {
		name, ok := uniqueFilename(att, used)
		if !ok {
			continue
		}
		data, err := readBlob(attachmentsDir, att.StoragePath)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if err := fileutil.SecureWriteFile(filepath.Join(outDir, name), data, 0o600); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		stats.Count++
		stats.Bytes += int64(len(data))
	}
	return stats, nil
}

// uniqueFilename picks an output name for an attachment. Colliding names
// get a content-hash suffix; a second collision means the same content
// under the same name, which is skipped.
func uniqueFilename(att store.AttachmentView, used map[string]bool) (string, bool) {
	name := SanitizeFilename(path.Base(att.SourcePath))
	if name == "" || name == "." || name == ".." {
		name = att.ContentHash
		if len(name) > 16 {
			name = name[:16]
		}
	}
	if used[name] {
		ext := filepath.Ext(name)
		hash := att.ContentHash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		name = strings.TrimSuffix(name, ext) + "-" + hash + ext
		if used[name] {
			return "", false
		}
	}
	used[name] = true
	return name, true
}

// readBlob loads a content-addressed blob without following a symlink
// planted at its final path.
func readBlob(attachmentsDir, storagePath string) ([]byte, error) {
	clean := path.Clean(storagePath)
	if clean == "." || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage path %q", storagePath)
	}
	f, err := openNoFollow(filepath.Join(attachmentsDir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// SanitizeFilename replaces characters that are invalid in filenames.
func SanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	return string(result)
}

// FormatExportResult formats ExportStats into a human-readable string.
func FormatExportResult(stats *ExportStats, dest string) string {
	if stats.Count == 0 {
		msg := "No attachments exported."
		if stats.Missing > 0 {
			msg += fmt.Sprintf(" %d attachment(s) have no stored media.", stats.Missing)
		}
		if len(stats.Errors) > 0 {
			msg += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
		}
		return msg
	}

	result := fmt.Sprintf("Exported %d attachment(s) (%s) to %s",
		stats.Count, FormatBytesLong(stats.Bytes), dest)
	if stats.Missing > 0 {
		result += fmt.Sprintf("\n%d attachment(s) skipped: no stored media", stats.Missing)
	}
	if len(stats.Errors) > 0 {
		result += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
	}
	return result
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
