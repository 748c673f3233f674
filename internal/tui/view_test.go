package tui

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/recordvault/recordvault/internal/store"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output. It acquires colorProfileMu to prevent data races with
// parallel tests and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// openedTranscript is a model showing the transcript of the first conversation.
func openedTranscript(t *testing.T) Model {
	t.Helper()
	m := loadedModel(t)
	m, _ = sendKey(t, m, keyEnter())
	msgs := testMessages()
	m, _ = sendMsg(t, m, transcriptLoadedMsg{
		conv:      testConversations()[0],
		messages:  msgs,
		total:     int64(len(msgs)),
		requestID: m.transcriptRequestID,
	})
	return m
}

func TestViewConversations(t *testing.T) {
	forceColorProfile(t)
	m := loadedModel(t)

	raw := m.View()
	if !strings.Contains(raw, ansiStart) {
		t.Error("expected styled output")
	}

	v := stripANSI(raw)
	for _, want := range []string{
		"recordvault — operation swordfish",
		"v1.2.3",
		"3 conversations",
		"THREAD",
		"PARTICIPANTS",
		"MSGS",
		"LAST ACTIVE",
		"111222333444555666",
		"janedoe, rex_t",
		"2020-05-03",
		"1 of 3",
		"enter open",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}

func TestViewLoading(t *testing.T) {
	m := newTestModel(t, nil)

	v := stripANSI(m.View())
	if !strings.Contains(v, "Loading...") {
		t.Errorf("expected loading indicator:\n%s", v)
	}
	if !strings.Contains(v, spinnerFrames[0]) {
		t.Errorf("expected spinner frame:\n%s", v)
	}
}

func TestViewError(t *testing.T) {
	m := loadedModel(t)
	m.err = errors.New("database is locked")

	v := stripANSI(m.View())
	if !strings.Contains(v, "Error: database is locked") {
		t.Errorf("expected error line:\n%s", v)
	}
}

func TestViewTranscript(t *testing.T) {
	forceColorProfile(t)
	m := openedTranscript(t)

	v := stripANSI(m.View())
	for _, want := range []string{
		"111222333444555666",
		"5 messages",
		"2020-05-01 12:00",
		"janedoe",
		"meet at the pier",
		"[attachment pic.jpg (image/jpeg, 10 B)]",
		"[attachment clip.mp4 (video/mp4, -) — not in archive]",
		"[share] https://example.com/post/9 — check this",
		"[video call, 1m33s]",
		"[message removed by sender]",
		"esc back",
		"100%",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("transcript view missing %q:\n%s", want, v)
		}
	}
}

func TestViewTranscriptTruncatedNote(t *testing.T) {
	m := loadedModel(t)
	m, _ = sendKey(t, m, keyEnter())
	m, _ = sendMsg(t, m, transcriptLoadedMsg{
		conv:      testConversations()[0],
		messages:  testMessages(),
		total:     9000,
		truncated: true,
		requestID: m.transcriptRequestID,
	})

	v := stripANSI(m.View())
	if !strings.Contains(v, "showing first 5") {
		t.Errorf("expected truncation note:\n%s", v)
	}
}

func TestViewSearchResults(t *testing.T) {
	forceColorProfile(t)
	m := loadedModel(t)
	m, _ = sendKey(t, m, key('/'))
	for _, r := range "pier" {
		m, _ = sendKey(t, m, key(r))
	}
	m, _ = sendKey(t, m, keyEnter())
	m, _ = sendMsg(t, m, hitsLoadedMsg{hits: testHits(), total: 2, requestID: m.searchRequestID})

	raw := m.View()
	// The matched term is highlighted in unselected rows.
	if !strings.Contains(raw, ansiStart+"7m") {
		t.Error("expected reverse-video highlight in results")
	}

	v := stripANSI(raw)
	for _, want := range []string{
		`search "pier" · 2 matches`,
		"SENT",
		"AUTHOR",
		"TYPE",
		"MESSAGE",
		"meet at the pier",
		"ghost_99",
		"pier tonight",
		"1 of 2",
		"enter open thread",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("search view missing %q:\n%s", want, v)
		}
	}
}

func TestViewSearchInputBar(t *testing.T) {
	m := loadedModel(t)
	m, _ = sendKey(t, m, key('/'))

	v := stripANSI(m.View())
	if !strings.Contains(v, "from:user type:image pier") {
		t.Errorf("expected placeholder in input bar:\n%s", v)
	}
	if !strings.Contains(v, "enter run · esc cancel") {
		t.Errorf("expected input footer hints:\n%s", v)
	}
}

func TestViewQuitting(t *testing.T) {
	m := loadedModel(t)
	m.quitting = true
	if got := m.View(); got != "" {
		t.Errorf("expected empty view when quitting, got %q", got)
	}
}

func TestRenderTranscriptUnknownAuthor(t *testing.T) {
	out := stripANSI(renderTranscript([]store.MessageView{{Body: "orphan line"}}, 80))
	if !strings.Contains(out, "(unknown)") {
		t.Errorf("expected unknown author placeholder:\n%s", out)
	}
	if !strings.Contains(out, "orphan line") {
		t.Errorf("expected body:\n%s", out)
	}
}

func TestHighlightTerms(t *testing.T) {
	forceColorProfile(t)

	out := highlightTerms("meet at the pier", "pier")
	if out == "meet at the pier" {
		t.Error("expected highlight to change the string")
	}
	if stripANSI(out) != "meet at the pier" {
		t.Errorf("highlight altered text: %q", stripANSI(out))
	}

	// Case-insensitive.
	out = highlightTerms("Pier tonight", "pier")
	if out == "Pier tonight" {
		t.Error("expected case-insensitive highlight")
	}
	if stripANSI(out) != "Pier tonight" {
		t.Errorf("highlight altered text: %q", stripANSI(out))
	}

	// Operator-only queries leave text alone.
	if out := highlightTerms("no match here", "type:image"); out != "no match here" {
		t.Errorf("operator query should not highlight, got %q", out)
	}

	// Sender filters highlight the username where it appears.
	if out := highlightTerms("rex_t said hi", "from:rex_t"); out == "rex_t said hi" {
		t.Error("expected sender term highlight")
	}

	if out := highlightTerms("text", ""); out != "text" {
		t.Errorf("empty query should be a no-op, got %q", out)
	}
}

func TestFormatAttachmentLine(t *testing.T) {
	got := formatAttachmentLine(&store.AttachmentView{
		SourcePath: "linked_media/pic.jpg", MIMEType: "image/jpeg", Size: 10, Resolved: true,
	})
	if got != "[attachment pic.jpg (image/jpeg, 10 B)]" {
		t.Errorf("unexpected line: %q", got)
	}

	got = formatAttachmentLine(&store.AttachmentView{
		SourcePath: "linked_media/clip.mp4", MIMEType: "video/mp4",
	})
	if got != "[attachment clip.mp4 (video/mp4, -) — not in archive]" {
		t.Errorf("unexpected line: %q", got)
	}

	got = formatAttachmentLine(&store.AttachmentView{ExternalURL: "https://cdn.example.com/x"})
	if got != "[attachment https://cdn.example.com/x — not in archive]" {
		t.Errorf("unexpected line: %q", got)
	}
}

func TestFormatCallLine(t *testing.T) {
	tests := []struct {
		call store.CallView
		want string
	}{
		{store.CallView{Type: "video", DurationSeconds: 93}, "[video call, 1m33s]"},
		{store.CallView{Type: "audio", Missed: true}, "[missed audio call]"},
		{store.CallView{DurationSeconds: 5}, "[call, 5s]"},
	}
	for _, tt := range tests {
		if got := formatCallLine(&tt.call); got != tt.want {
			t.Errorf("formatCallLine(%+v) = %q, want %q", tt.call, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "-"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{2048, "2.0 KB"},
		{5242880, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2300000, "2.3M"},
	}
	for _, tt := range tests {
		if got := formatCount(tt.in); got != tt.want {
			t.Errorf("formatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{93, "1m33s"},
		{3661, "1h1m1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	if got := formatDate(time.Time{}); got != "-" {
		t.Errorf("expected placeholder for zero time, got %q", got)
	}
	if got := formatDate(ts("2020-05-03 09:30")); got != "2020-05-03" {
		t.Errorf("unexpected date: %q", got)
	}

	if got := formatTimestampPtr(nil); got != "-" {
		t.Errorf("expected placeholder for nil time, got %q", got)
	}
	if got := formatTimestampPtr(tsPtr("2020-05-03 09:30")); got != "2020-05-03 09:30" {
		t.Errorf("unexpected timestamp: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxWidth int
		want     string
	}{
		{"fits", "hello", 10, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"cjk width", "日本語テキスト", 8, "日本..."},
		{"newline sanitized", "a\nb", 10, "a b"},
		{"tab sanitized", "a\tb", 10, "a b"},
		{"tiny width", "ab", 1, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateRunes(tt.in, tt.maxWidth); got != tt.want {
				t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.maxWidth, got, tt.want)
			}
		})
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 5); got != "ab   " {
		t.Errorf("padRight = %q", got)
	}
	// Full-width characters count as two cells.
	if got := padRight("日本", 6); got != "日本  " {
		t.Errorf("padRight cjk = %q", got)
	}
	// Overlong input is cut to fit.
	if got := padRight("hello", 3); got != "hel" {
		t.Errorf("padRight overlong = %q", got)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	// A single long token is hard-broken.
	got = wrapText("abcdefghijkl", 5)
	want = []string{"abcde", "fghij", "kl"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	// Short input passes through.
	got = wrapText("fits", 10)
	if len(got) != 1 || got[0] != "fits" {
		t.Errorf("unexpected wrap: %v", got)
	}
}
