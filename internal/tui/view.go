package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// chromeLines is the fixed vertical overhead around list bodies: title,
// context line, column header, separator, footer.
const chromeLines = 5

// Monochrome theme, adaptive for light and dark terminals.
var (
	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	contextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true)

	separatorStyle = lipgloss.NewStyle().Faint(true)

	cursorRowStyle = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"})

	authorStyle = lipgloss.NewStyle().Bold(true)

	metaStyle = lipgloss.NewStyle().Faint(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Padding(0, 1)

	highlightStyle = lipgloss.NewStyle().Reverse(true)

	errorStyle = lipgloss.NewStyle().Bold(true)

	loadingStyle = lipgloss.NewStyle().Italic(true)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(m.renderTitle(width))
	b.WriteString("\n")
	b.WriteString(m.renderContext(width))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(" Error: "+m.err.Error()) + "\n")
	case m.loading:
		b.WriteString(" " + spinnerFrames[m.spinnerFrame] + loadingStyle.Render(" Loading...") + "\n")
	default:
		switch m.level {
		case levelConversations:
			b.WriteString(m.renderConversationList(width))
		case levelTranscript:
			b.WriteString(m.transcript.View() + "\n")
		case levelSearch:
			b.WriteString(m.renderSearchResults(width))
		}
	}

	b.WriteString(m.renderFooter(width))
	return b.String()
}

func (m Model) renderTitle(width int) string {
	left := "recordvault"
	if m.caseName != "" {
		left += " — " + m.caseName
	}
	right := m.version
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return titleBarStyle.Render(padRight(left+strings.Repeat(" ", gap)+right, width-2))
}

func (m Model) renderContext(width int) string {
	if m.searchActive {
		return contextStyle.Render("/ " + m.searchInput.View())
	}

	var s string
	switch m.level {
	case levelConversations:
		s = fmt.Sprintf("%s conversations", formatCount(m.convTotal))
	case levelTranscript:
		s = m.conv.ThreadID
		if len(m.conv.Participants) > 0 {
			s += " — " + strings.Join(m.conv.Participants, ", ")
		}
		s += fmt.Sprintf(" · %s messages", formatCount(m.msgTotal))
		if m.truncated {
			s += fmt.Sprintf(" · showing first %d", len(m.messages))
		}
	case levelSearch:
		s = fmt.Sprintf("search %q · %s matches", m.searchQuery, formatCount(m.hitsTotal))
	}
	return contextStyle.Render(truncateRunes(s, width-2))
}

func (m Model) renderConversationList(width int) string {
	const threadW, msgsW, dateW = 20, 6, 10
	partsW := width - threadW - msgsW - dateW - 8
	if partsW < 10 {
		partsW = 10
	}

	var b strings.Builder
	header := fmt.Sprintf(" %s  %s  %s  %s",
		padRight("THREAD", threadW),
		padRight("PARTICIPANTS", partsW),
		padRight("MSGS", msgsW),
		"LAST ACTIVE")
	b.WriteString(tableHeaderStyle.Render(truncateRunes(header, width)) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n")

	if len(m.convs) == 0 {
		b.WriteString(metaStyle.Render(" no conversations") + "\n")
		return b.String()
	}

	end := m.scrollOffset + m.pageSize
	if end > len(m.convs) {
		end = len(m.convs)
	}
	for i := m.scrollOffset; i < end; i++ {
		c := &m.convs[i]
		row := fmt.Sprintf(" %s  %s  %s  %s",
			padRight(truncateRunes(c.ThreadID, threadW), threadW),
			padRight(truncateRunes(strings.Join(c.Participants, ", "), partsW), partsW),
			padRight(formatCount(c.MessageCount), msgsW),
			formatDate(c.LastActiveAt))
		if i == m.cursor {
			b.WriteString(cursorRowStyle.Render(padRight(row, width)) + "\n")
		} else {
			b.WriteString(row + "\n")
		}
	}
	return b.String()
}

func (m Model) renderSearchResults(width int) string {
	const dateW, authorW, typeW = 16, 14, 6
	snippetW := width - dateW - authorW - typeW - 8
	if snippetW < 10 {
		snippetW = 10
	}

	var b strings.Builder
	header := fmt.Sprintf(" %s  %s  %s  %s",
		padRight("SENT", dateW),
		padRight("AUTHOR", authorW),
		padRight("TYPE", typeW),
		"MESSAGE")
	b.WriteString(tableHeaderStyle.Render(truncateRunes(header, width)) + "\n")
	b.WriteString(separatorStyle.Render(strings.Repeat("─", width)) + "\n")

	if len(m.hits) == 0 {
		b.WriteString(metaStyle.Render(" no matches") + "\n")
		return b.String()
	}

	end := m.hitScroll + m.pageSize
	if end > len(m.hits) {
		end = len(m.hits)
	}
	for i := m.hitScroll; i < end; i++ {
		h := &m.hits[i]
		text := h.Snippet
		if text == "" {
			text = h.Body
		}
		text = truncateRunes(text, snippetW)
		if i == m.hitCursor {
			row := fmt.Sprintf(" %s  %s  %s  %s",
				padRight(formatTimestampPtr(h.SentAt), dateW),
				padRight(truncateRunes(h.Author, authorW), authorW),
				padRight(h.Type, typeW),
				text)
			b.WriteString(cursorRowStyle.Render(padRight(row, width)) + "\n")
		} else {
			// Highlight only unselected rows; nested ANSI resets would
			// break the cursor row background.
			row := fmt.Sprintf(" %s  %s  %s  %s",
				padRight(formatTimestampPtr(h.SentAt), dateW),
				padRight(truncateRunes(h.Author, authorW), authorW),
				padRight(h.Type, typeW),
				highlightTerms(text, m.searchQuery))
			b.WriteString(row + "\n")
		}
	}
	return b.String()
}

func (m Model) renderFooter(width int) string {
	if m.searchActive {
		return footerStyle.Render("enter run · esc cancel")
	}

	var hints, pos string
	switch m.level {
	case levelConversations:
		hints = "↑/↓ move · enter open · / search · r reload · q quit"
		if len(m.convs) > 0 {
			pos = fmt.Sprintf("%d of %d", m.cursor+1, len(m.convs))
		}
	case levelTranscript:
		hints = "↑/↓ scroll · g/G top/bottom · / search · esc back"
		pos = fmt.Sprintf("%3.f%%", m.transcript.ScrollPercent()*100)
	case levelSearch:
		hints = "↑/↓ move · enter open thread · / new search · esc back"
		if len(m.hits) > 0 {
			pos = fmt.Sprintf("%d of %d", m.hitCursor+1, len(m.hits))
		}
	}

	gap := width - lipgloss.Width(hints) - lipgloss.Width(pos) - 2
	if gap < 1 {
		gap = 1
	}
	return footerStyle.Render(truncateRunes(hints+strings.Repeat(" ", gap)+pos, width-2))
}
