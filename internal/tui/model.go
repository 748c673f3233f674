// Package tui is the terminal browser for a case: a conversation list,
// a scrollable transcript view, and message search, all read-only over
// the query engine.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/search"
	"github.com/recordvault/recordvault/internal/store"
)

// viewLevel represents the current navigation depth.
type viewLevel int

const (
	levelConversations viewLevel = iota
	levelTranscript
	levelSearch
)

const (
	// conversationLimit caps how many conversations are loaded for the
	// list. Real records rarely exceed a few hundred threads.
	conversationLimit = 1000

	// transcriptPageSize is the engine page size when assembling a
	// transcript; transcriptLimit caps the assembled length and flags
	// the view as truncated beyond it.
	transcriptPageSize = 500
	transcriptLimit    = 5000

	// searchLimit caps search results shown in the hit list.
	searchLimit = 200
)

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is how fast the spinner animates.
const spinnerInterval = 80 * time.Millisecond

// Options configures the TUI.
type Options struct {
	CaseID   string
	CaseName string
	Version  string
}

// Model is the main TUI model following the Elm architecture.
type Model struct {
	engine query.Engine

	caseID   string
	caseName string
	version  string

	level  viewLevel
	width  int
	height int

	// Rows visible per page in list views.
	pageSize int

	// Conversation list.
	convs        []store.ConversationSummary
	convTotal    int64
	cursor       int
	scrollOffset int

	// Transcript.
	conv       store.ConversationSummary
	messages   []store.MessageView
	msgTotal   int64
	truncated  bool
	transcript viewport.Model
	// Level to return to on esc: conversations or search results.
	cameFrom viewLevel

	// Search.
	searchInput  textinput.Model
	searchActive bool
	searchQuery  string
	hits         []query.MessageHit
	hitsTotal    int64
	hitCursor    int
	hitScroll    int

	// Loading state.
	loading       bool
	err           error
	spinnerFrame  int
	spinnerActive bool

	// Request tracking to ignore stale async results.
	convRequestID       uint64
	transcriptRequestID uint64
	searchRequestID     uint64

	quitting bool
}

// New creates a TUI model browsing one case through the given engine.
func New(engine query.Engine, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "from:user type:image pier"
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		engine:      engine,
		caseID:      opts.CaseID,
		caseName:    opts.CaseName,
		version:     opts.Version,
		level:       levelConversations,
		pageSize:    20,
		loading:     true,
		searchInput: ti,
		transcript:  viewport.New(0, 0),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadConversations(), spinnerTick())
}

// convsLoadedMsg is sent when the conversation list is loaded.
type convsLoadedMsg struct {
	convs     []store.ConversationSummary
	total     int64
	err       error
	requestID uint64
}

// transcriptLoadedMsg is sent when a conversation transcript is assembled.
type transcriptLoadedMsg struct {
	conv      store.ConversationSummary
	messages  []store.MessageView
	total     int64
	truncated bool
	err       error
	requestID uint64
}

// hitsLoadedMsg is sent when search results are loaded.
type hitsLoadedMsg struct {
	hits      []query.MessageHit
	total     int64
	err       error
	requestID uint64
}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner marks the spinner active and returns its tick command,
// or nil if it is already running.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

// loadConversations fetches the conversation list for the case.
func (m Model) loadConversations() tea.Cmd {
	requestID := m.convRequestID
	return func() (msg tea.Msg) {
		// Recover from panics so a backend fault cannot wedge the UI.
		defer func() {
			if r := recover(); r != nil {
				msg = convsLoadedMsg{err: fmt.Errorf("query panic: %v", r), requestID: requestID}
			}
		}()

		convs, total, err := m.engine.ListConversations(context.Background(), m.caseID, 0, conversationLimit)
		return convsLoadedMsg{convs: convs, total: total, err: err, requestID: requestID}
	}
}

// loadTranscript assembles the full transcript of one conversation, up
// to transcriptLimit messages.
func (m Model) loadTranscript(conv store.ConversationSummary) tea.Cmd {
	requestID := m.transcriptRequestID
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = transcriptLoadedMsg{err: fmt.Errorf("query panic: %v", r), requestID: requestID}
			}
		}()

		ctx := context.Background()
		var all []store.MessageView
		var total int64
		for offset := 0; ; offset += transcriptPageSize {
			page, n, err := m.engine.ListMessages(ctx, conv.ID, offset, transcriptPageSize)
			if err != nil {
				return transcriptLoadedMsg{err: err, requestID: requestID}
			}
			total = n
			all = append(all, page...)
			if len(page) == 0 || int64(len(all)) >= total || len(all) >= transcriptLimit {
				break
			}
		}
		return transcriptLoadedMsg{
			conv:      conv,
			messages:  all,
			total:     total,
			truncated: int64(len(all)) < total,
			requestID: requestID,
		}
	}
}

// loadSearch runs a parsed search query against the case.
func (m Model) loadSearch(queryStr string) tea.Cmd {
	requestID := m.searchRequestID
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = hitsLoadedMsg{err: fmt.Errorf("query panic: %v", r), requestID: requestID}
			}
		}()

		hits, total, err := m.engine.Search(context.Background(), m.caseID, search.Parse(queryStr), 0, searchLimit)
		return hitsLoadedMsg{hits: hits, total: total, err: err, requestID: requestID}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pageSize = msg.Height - chromeLines
		if m.pageSize < 3 {
			m.pageSize = 3
		}
		m.transcript.Width = msg.Width
		m.transcript.Height = m.pageSize
		if m.level == levelTranscript {
			m.transcript.SetContent(renderTranscript(m.messages, m.width))
		}
		return m, nil

	case convsLoadedMsg:
		if msg.requestID != m.convRequestID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.convs = msg.convs
		m.convTotal = msg.total
		if m.cursor >= len(m.convs) {
			m.cursor = 0
			m.scrollOffset = 0
		}
		return m, nil

	case transcriptLoadedMsg:
		if msg.requestID != m.transcriptRequestID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.conv = msg.conv
		m.messages = msg.messages
		m.msgTotal = msg.total
		m.truncated = msg.truncated
		m.transcript.SetContent(renderTranscript(m.messages, m.width))
		m.transcript.GotoTop()
		return m, nil

	case hitsLoadedMsg:
		if msg.requestID != m.searchRequestID {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.hits = msg.hits
		m.hitsTotal = msg.total
		m.hitCursor = 0
		m.hitScroll = 0
		return m, nil

	case spinnerTickMsg:
		if m.loading {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
			return m, spinnerTick()
		}
		m.spinnerActive = false
		return m, nil
	}

	return m, nil
}

// openTranscript switches to the transcript view for conv, remembering
// the level to return to.
func (m Model) openTranscript(conv store.ConversationSummary, from viewLevel) (Model, tea.Cmd) {
	m.level = levelTranscript
	m.cameFrom = from
	m.messages = nil
	m.msgTotal = 0
	m.truncated = false
	m.loading = true
	m.err = nil
	m.transcriptRequestID++
	return m, tea.Batch(m.startSpinner(), m.loadTranscript(conv))
}

// conversationForHit finds the loaded conversation row behind a search
// hit, or synthesizes a minimal one when the list was truncated.
func (m Model) conversationForHit(hit query.MessageHit) store.ConversationSummary {
	for i := range m.convs {
		if m.convs[i].ID == hit.ConversationID {
			return m.convs[i]
		}
	}
	return store.ConversationSummary{ID: hit.ConversationID, ThreadID: hit.ThreadID}
}
