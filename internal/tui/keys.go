package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// handleKeyPress routes keyboard input by view level. The search input,
// when open, captures everything first.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchActive {
		return m.handleSearchInputKeys(msg)
	}
	switch m.level {
	case levelConversations:
		return m.handleConversationKeys(msg)
	case levelTranscript:
		return m.handleTranscriptKeys(msg)
	case levelSearch:
		return m.handleSearchResultKeys(msg)
	}
	return m, nil
}

// handleSearchInputKeys handles keys while the search bar is open.
func (m Model) handleSearchInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		queryStr := m.searchInput.Value()
		m.searchActive = false
		m.searchInput.Blur()
		if queryStr == "" {
			return m, nil
		}
		m.searchQuery = queryStr
		m.level = levelSearch
		m.hits = nil
		m.hitsTotal = 0
		m.loading = true
		m.err = nil
		m.searchRequestID++
		return m, tea.Batch(m.startSpinner(), m.loadSearch(queryStr))

	case "esc":
		m.searchActive = false
		m.searchInput.Blur()
		return m, nil

	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
}

func (m Model) handleConversationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "/":
		return m.openSearchInput()

	case "r":
		m.loading = true
		m.err = nil
		m.convRequestID++
		return m, tea.Batch(m.startSpinner(), m.loadConversations())

	case "enter":
		if m.cursor < len(m.convs) {
			return m.openTranscript(m.convs[m.cursor], levelConversations)
		}
		return m, nil
	}

	m.navigateList(key, len(m.convs), &m.cursor, &m.scrollOffset)
	return m, nil
}

func (m Model) handleTranscriptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q", "esc":
		m.level = m.cameFrom
		m.err = nil
		m.loading = false
		return m, nil

	case "/":
		return m.openSearchInput()

	case "g", "home":
		m.transcript.GotoTop()
		return m, nil

	case "G", "end":
		m.transcript.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	return m, cmd
}

func (m Model) handleSearchResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q", "esc":
		m.level = levelConversations
		m.err = nil
		return m, nil

	case "/":
		return m.openSearchInput()

	case "enter":
		if m.hitCursor < len(m.hits) {
			return m.openTranscript(m.conversationForHit(m.hits[m.hitCursor]), levelSearch)
		}
		return m, nil
	}

	m.navigateList(key, len(m.hits), &m.hitCursor, &m.hitScroll)
	return m, nil
}

func (m Model) openSearchInput() (Model, tea.Cmd) {
	m.searchActive = true
	m.searchInput.SetValue("")
	m.searchInput.Focus()
	return m, textinput.Blink
}

// navigateList moves a cursor through an item list, keeping it visible
// within the page. Returns false when the key is not a navigation key.
func (m *Model) navigateList(key string, itemCount int, cursor, offset *int) bool {
	changed := false

	switch key {
	case "up", "k":
		if *cursor > 0 {
			*cursor--
			changed = true
		}
	case "down", "j":
		if *cursor < itemCount-1 {
			*cursor++
			changed = true
		}
	case "pgup", "ctrl+u":
		*cursor -= m.pageSize
		if *cursor < 0 {
			*cursor = 0
		}
		changed = true
	case "pgdown", "ctrl+d":
		*cursor += m.pageSize
		if *cursor >= itemCount {
			*cursor = itemCount - 1
		}
		if *cursor < 0 {
			*cursor = 0
		}
		changed = true
	case "home":
		*cursor = 0
		*offset = 0
		return true
	case "end", "G":
		*cursor = itemCount - 1
		if *cursor < 0 {
			*cursor = 0
		}
		changed = true
	default:
		return false
	}

	if changed {
		*offset = calculateScrollOffset(*cursor, *offset, m.pageSize)
	}
	return true
}

// calculateScrollOffset computes the scroll offset that keeps cursor
// visible within pageSize rows.
func calculateScrollOffset(cursor, currentOffset, pageSize int) int {
	if cursor < currentOffset {
		return cursor
	}
	if cursor >= currentOffset+pageSize {
		return cursor - pageSize + 1
	}
	return currentOffset
}
