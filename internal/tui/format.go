package tui

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// highlightTerms applies highlight styling to all occurrences of search terms
// in text. Terms are extracted from the query string with search.Parse, so
// operators like from: and type: do not leak into the highlight set.
// Matching is case-insensitive.
func highlightTerms(text, searchQuery string) string {
	if searchQuery == "" || text == "" {
		return text
	}
	terms := extractSearchTerms(searchQuery)
	if len(terms) == 0 {
		return text
	}
	return applyHighlight(text, terms)
}

func extractSearchTerms(queryStr string) []string {
	q := search.Parse(queryStr)
	var terms []string
	terms = append(terms, q.TextTerms...)
	terms = append(terms, q.Senders...)
	seen := make(map[string]bool, len(terms))
	filtered := terms[:0]
	for _, t := range terms {
		lower := strings.ToLower(t)
		if t != "" && !seen[lower] {
			seen[lower] = true
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// applyHighlight wraps all case-insensitive occurrences of any term in text
// with highlightStyle. It operates on runes to avoid byte-offset mismatches
// when strings.ToLower changes byte length (e.g., İ).
func applyHighlight(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}
	textRunes := []rune(text)
	lowerRunes := []rune(strings.ToLower(text))
	type interval struct{ start, end int }
	var intervals []interval
	for _, term := range terms {
		termLowerRunes := []rune(strings.ToLower(term))
		tLen := len(termLowerRunes)
		if tLen == 0 {
			continue
		}
		for i := 0; i <= len(lowerRunes)-tLen; i++ {
			match := true
			for j := 0; j < tLen; j++ {
				if lowerRunes[i+j] != termLowerRunes[j] {
					match = false
					break
				}
			}
			if match {
				intervals = append(intervals, interval{i, i + tLen})
				i += tLen - 1
			}
		}
	}
	if len(intervals) == 0 {
		return text
	}
	// Sort and merge overlapping intervals. Insertion sort is fine for the
	// handful of terms a query carries.
	for i := 1; i < len(intervals); i++ {
		for j := i; j > 0 && intervals[j].start < intervals[j-1].start; j-- {
			intervals[j], intervals[j-1] = intervals[j-1], intervals[j]
		}
	}
	merged := []interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
		} else {
			merged = append(merged, iv)
		}
	}
	var sb strings.Builder
	prev := 0
	for _, iv := range merged {
		sb.WriteString(string(textRunes[prev:iv.start]))
		sb.WriteString(highlightStyle.Render(string(textRunes[iv.start:iv.end])))
		prev = iv.end
	}
	sb.WriteString(string(textRunes[prev:]))
	return sb.String()
}

// renderTranscript renders messages as a flat transcript for the viewport:
// a timestamp/author line, the wrapped body, then one line per payload
// (attachments, shares, calls).
func renderTranscript(messages []store.MessageView, width int) string {
	if width <= 0 {
		width = 80
	}
	bodyWidth := width - 2
	if bodyWidth < 20 {
		bodyWidth = 20
	}

	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		if i > 0 {
			b.WriteString("\n")
		}

		author := msg.Author
		if author == "" {
			author = "(unknown)"
		}
		b.WriteString(metaStyle.Render(formatTimestampPtr(msg.SentAt)))
		b.WriteString("  ")
		b.WriteString(authorStyle.Render(author))
		b.WriteString("\n")

		if msg.RemovedBySender {
			b.WriteString("  " + metaStyle.Render("[message removed by sender]") + "\n")
		}
		if msg.Body != "" {
			for _, line := range wrapText(msg.Body, bodyWidth) {
				b.WriteString("  " + line + "\n")
			}
		}
		for j := range msg.Attachments {
			b.WriteString("  " + metaStyle.Render(formatAttachmentLine(&msg.Attachments[j])) + "\n")
		}
		if msg.Share != nil {
			b.WriteString("  " + metaStyle.Render(truncateRunes(formatShareLine(msg.Share), bodyWidth)) + "\n")
		}
		if msg.Call != nil {
			b.WriteString("  " + metaStyle.Render(formatCallLine(msg.Call)) + "\n")
		}
	}
	return b.String()
}

func formatAttachmentLine(att *store.AttachmentView) string {
	name := path.Base(att.SourcePath)
	if name == "" || name == "." || name == "/" {
		name = att.ExternalURL
	}
	if name == "" {
		name = fmt.Sprintf("attachment-%d", att.ID)
	}
	s := "[attachment " + name
	if att.MIMEType != "" || att.Size > 0 {
		s += fmt.Sprintf(" (%s, %s)", att.MIMEType, formatBytes(att.Size))
	}
	if !att.Resolved {
		s += " — not in archive"
	}
	return s + "]"
}

func formatShareLine(share *store.ShareView) string {
	s := "[share] " + share.URL
	if share.Text != "" {
		s += " — " + share.Text
	}
	return s
}

func formatCallLine(call *store.CallView) string {
	kind := call.Type
	if kind == "" {
		kind = "call"
	} else {
		kind += " call"
	}
	if call.Missed {
		return "[missed " + kind + "]"
	}
	return fmt.Sprintf("[%s, %s]", kind, formatDuration(call.DurationSeconds))
}

// formatBytes formats a byte count as a human-readable string (e.g., "1.5 KB").
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatCount formats a count as a human-readable string (e.g., "1.5K", "2.3M").
func formatCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatTimestampPtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes truncates a string to fit within maxWidth terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
// that occupy 2 terminal cells but count as 1 rune. Also strips newlines and
// tabs that would break the table layout.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	width := runewidth.StringWidth(s)
	if width <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// wrapText wraps text to fit within width terminal cells.
// Uses runewidth to correctly handle full-width characters (CJK, emoji, etc.)
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 80
	}

	var result []string
	lines := strings.Split(text, "\n")

	for _, line := range lines {
		lineWidth := runewidth.StringWidth(line)
		if lineWidth <= width {
			result = append(result, line)
			continue
		}

		runes := []rune(line)
		for len(runes) > 0 {
			currentWidth := 0
			breakAt := 0
			lastSpace := -1

			for i, r := range runes {
				rw := runewidth.RuneWidth(r)
				if currentWidth+rw > width {
					break
				}
				currentWidth += rw
				breakAt = i + 1
				if r == ' ' {
					lastSpace = i
				}
			}

			// Prefer breaking at a space if we found one in the latter half.
			if lastSpace > breakAt/2 && breakAt < len(runes) {
				breakAt = lastSpace
			}

			if breakAt == 0 {
				// Single character too wide, take it anyway.
				breakAt = 1
			}

			result = append(result, string(runes[:breakAt]))
			runes = runes[breakAt:]

			for len(runes) > 0 && runes[0] == ' ' {
				runes = runes[1:]
			}
		}
	}

	return result
}
