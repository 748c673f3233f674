package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/instagram"
	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and
// returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON
// result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return r
}

func mcpTimePtr(t time.Time) *time.Time { return &t }

// mcpRecord builds one conversation: two texts from janedoe on separate
// days and one image from rex_t with a stored and a missing attachment.
func mcpRecord() *instagram.Record {
	jane := instagram.Participant{Username: "janedoe", PlatformID: "1000000000000000001"}
	rex := instagram.Participant{Username: "rex_t", PlatformID: "1000000000000000002"}

	conv := instagram.Conversation{
		ThreadID:     "444555666777888999",
		Section:      "unified_messages",
		Participants: []instagram.Participant{jane, rex},
		Messages: []instagram.Message{
			{
				ThreadID: "444555666777888999",
				Author:   &jane,
				Sent:     mcpTimePtr(time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)),
				Body:     "meet at the pier",
				Type:     instagram.TypeText,
			},
			{
				ThreadID: "444555666777888999",
				Author:   &rex,
				Sent:     mcpTimePtr(time.Date(2020, 5, 2, 10, 0, 0, 0, time.UTC)),
				Type:     instagram.TypeImage,
				Attachments: []instagram.Attachment{
					{MIME: "image/jpeg", Size: 10, SourcePath: "linked_media/pic.jpg",
						Blob: &archive.Blob{
							Path: "linked_media/pic.jpg",
							Name: "pic.jpg",
							MIME: "image/jpeg",
							Kind: archive.KindImage,
							Data: []byte("jpeg-bytes"),
						}},
					{MIME: "video/mp4", Size: -1, SourcePath: "linked_media/clip.mp4"},
				},
			},
			{
				ThreadID: "444555666777888999",
				Author:   &jane,
				Sent:     mcpTimePtr(time.Date(2020, 5, 3, 9, 0, 0, 0, time.UTC)),
				Body:     "second note",
				Type:     instagram.TypeText,
			},
		},
		MessageCount:    3,
		AttachmentCount: 2,
		StartedAt:       time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC),
		LastActiveAt:    time.Date(2020, 5, 3, 9, 0, 0, 0, time.UTC),
	}

	return &instagram.Record{
		Layout:        instagram.LayoutStructuralID,
		Conversations: []instagram.Conversation{conv},
		Directory:     []instagram.Participant{jane, rex},
		ParsedAt:      time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newVaultHandlers seeds a vault and returns handlers over a real store
// and SQLite engine, plus the conversation row ID.
func newVaultHandlers(t *testing.T) (*handlers, int64) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	c, err := st.CreateCase("mcp-case", "subject person", "")
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	importID, err := st.StartImport(c.ID, "/evidence/mcp.zip", "sha-mcp")
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	rec := mcpRecord()
	if _, err := st.SaveRecord(context.Background(), importID, "records.html", rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := st.CompleteImport(importID); err != nil {
		t.Fatalf("CompleteImport: %v", err)
	}

	attachmentsDir := t.TempDir()
	if _, err := store.CopyBlobs(rec, attachmentsDir); err != nil {
		t.Fatalf("CopyBlobs: %v", err)
	}

	convs, _, err := st.ListConversations(c.ID, 0, 10)
	if err != nil || len(convs) != 1 {
		t.Fatalf("ListConversations: %v, %d rows", err, len(convs))
	}

	h := &handlers{store: st, engine: query.NewSQLiteEngine(st), attachmentsDir: attachmentsDir}
	return h, convs[0].ID
}

func TestListCases(t *testing.T) {
	h, _ := newVaultHandlers(t)

	cases := runTool[[]caseInfo](t, "list_cases", h.listCases, map[string]any{})
	if len(cases) != 1 {
		t.Fatalf("cases = %d, want 1", len(cases))
	}
	if cases[0].Name != "mcp-case" || cases[0].Subject != "subject person" {
		t.Errorf("case = %+v", cases[0])
	}
	if cases[0].ID == "" || cases[0].CreatedAt == "" {
		t.Errorf("missing id or created_at: %+v", cases[0])
	}
}

func TestListConversations(t *testing.T) {
	h, _ := newVaultHandlers(t)

	type page struct {
		Conversations []conversationInfo `json:"conversations"`
		Total         int64              `json:"total"`
	}

	t.Run("by case name", func(t *testing.T) {
		resp := runTool[page](t, "list_conversations", h.listConversations, map[string]any{"case": "mcp-case"})
		if resp.Total != 1 || len(resp.Conversations) != 1 {
			t.Fatalf("total %d, rows %d", resp.Total, len(resp.Conversations))
		}
		conv := resp.Conversations[0]
		if conv.ThreadID != "444555666777888999" {
			t.Errorf("thread_id = %q", conv.ThreadID)
		}
		if conv.Messages != 3 || conv.Attachments != 2 {
			t.Errorf("counts = %d messages, %d attachments", conv.Messages, conv.Attachments)
		}
		if len(conv.Participants) != 2 {
			t.Errorf("participants = %v", conv.Participants)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"missing case", map[string]any{}},
		{"unknown case", map[string]any{"case": "nope"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, "list_conversations", h.listConversations, tt.args)
		})
	}
}

func TestGetConversation(t *testing.T) {
	h, convID := newVaultHandlers(t)

	type page struct {
		Conversation conversationInfo `json:"conversation"`
		Messages     []messageInfo    `json:"messages"`
		Total        int64            `json:"total"`
	}

	t.Run("found", func(t *testing.T) {
		resp := runTool[page](t, "get_conversation", h.getConversation, map[string]any{"conversation_id": float64(convID)})
		if resp.Conversation.ThreadID != "444555666777888999" {
			t.Errorf("thread_id = %q", resp.Conversation.ThreadID)
		}
		if resp.Total != 3 || len(resp.Messages) != 3 {
			t.Fatalf("total %d, rows %d", resp.Total, len(resp.Messages))
		}
		if resp.Messages[0].Body != "meet at the pier" || resp.Messages[0].Author != "janedoe" {
			t.Errorf("first message = %+v", resp.Messages[0])
		}
		if resp.Messages[0].SentAt != "2020-05-01T12:00:00Z" {
			t.Errorf("sent_at = %q", resp.Messages[0].SentAt)
		}

		atts := resp.Messages[1].Attachments
		if len(atts) != 2 {
			t.Fatalf("attachments = %d, want 2", len(atts))
		}
		if !atts[0].Stored || atts[0].Filename != "pic.jpg" {
			t.Errorf("stored attachment = %+v", atts[0])
		}
		if atts[1].Stored {
			t.Errorf("missing attachment reported as stored: %+v", atts[1])
		}
	})

	t.Run("paged", func(t *testing.T) {
		resp := runTool[page](t, "get_conversation", h.getConversation, map[string]any{
			"conversation_id": float64(convID),
			"limit":           float64(1),
			"offset":          float64(1),
		})
		if resp.Total != 3 || len(resp.Messages) != 1 {
			t.Fatalf("total %d, rows %d", resp.Total, len(resp.Messages))
		}
		if resp.Messages[0].Type != "image" {
			t.Errorf("type = %q", resp.Messages[0].Type)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"not found", map[string]any{"conversation_id": float64(99999)}},
		{"missing id", map[string]any{}},
		{"non-integer id", map[string]any{"conversation_id": float64(1.9)}},
		{"negative id", map[string]any{"conversation_id": float64(-1)}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, "get_conversation", h.getConversation, tt.args)
		})
	}
}

func TestSearchMessages(t *testing.T) {
	h, _ := newVaultHandlers(t)

	type page struct {
		Hits  []searchHit `json:"hits"`
		Total int64       `json:"total"`
	}

	t.Run("free text", func(t *testing.T) {
		resp := runTool[page](t, "search_messages", h.searchMessages, map[string]any{
			"case": "mcp-case", "query": "pier",
		})
		if resp.Total != 1 || len(resp.Hits) != 1 {
			t.Fatalf("total %d, hits %d", resp.Total, len(resp.Hits))
		}
		hit := resp.Hits[0]
		if hit.Author != "janedoe" || hit.Type != "text" {
			t.Errorf("hit = %+v", hit)
		}
		if hit.Snippet == "" {
			t.Error("empty snippet")
		}
	})

	t.Run("operator", func(t *testing.T) {
		resp := runTool[page](t, "search_messages", h.searchMessages, map[string]any{
			"case": "mcp-case", "query": "from:rex_t",
		})
		if resp.Total != 1 || resp.Hits[0].Type != "image" {
			t.Fatalf("unexpected result: %+v", resp)
		}
		if resp.Hits[0].AttachmentCount != 2 {
			t.Errorf("attachment_count = %d", resp.Hits[0].AttachmentCount)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"missing query", map[string]any{"case": "mcp-case"}},
		{"missing case", map[string]any{"query": "pier"}},
		{"unknown case", map[string]any{"case": "nope", "query": "pier"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, "search_messages", h.searchMessages, tt.args)
		})
	}
}

func TestCaseStats(t *testing.T) {
	h, _ := newVaultHandlers(t)

	resp := runTool[struct {
		Case          caseInfo `json:"case"`
		Imports       int64    `json:"imports"`
		Conversations int64    `json:"conversations"`
		Messages      int64    `json:"messages"`
		Attachments   int64    `json:"attachments"`
		FirstMessage  string   `json:"first_message"`
		LastMessage   string   `json:"last_message"`
	}](t, "case_stats", h.caseStats, map[string]any{"case": "mcp-case"})

	if resp.Case.Name != "mcp-case" {
		t.Errorf("case = %+v", resp.Case)
	}
	if resp.Imports != 1 || resp.Conversations != 1 || resp.Messages != 3 || resp.Attachments != 2 {
		t.Errorf("totals = %+v", resp)
	}
	if resp.FirstMessage != "2020-05-01T12:00:00Z" {
		t.Errorf("first_message = %q", resp.FirstMessage)
	}
	if resp.LastMessage != "2020-05-03T09:00:00Z" {
		t.Errorf("last_message = %q", resp.LastMessage)
	}

	runToolExpectError(t, "case_stats", h.caseStats, map[string]any{"case": "nope"})
}

func TestAggregate(t *testing.T) {
	h, _ := newVaultHandlers(t)

	t.Run("sender", func(t *testing.T) {
		rows := runTool[[]aggregateRow](t, "aggregate", h.aggregate, map[string]any{
			"case": "mcp-case", "group_by": "sender",
		})
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(rows))
		}
		if rows[0].Key != "janedoe" || rows[0].Count != 2 {
			t.Errorf("top sender = %+v", rows[0])
		}
	})

	t.Run("day", func(t *testing.T) {
		rows := runTool[[]aggregateRow](t, "aggregate", h.aggregate, map[string]any{
			"case": "mcp-case", "group_by": "day",
		})
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want 3", len(rows))
		}
		if rows[0].Key != "2020-05-01" {
			t.Errorf("first day = %q", rows[0].Key)
		}
	})

	t.Run("type", func(t *testing.T) {
		rows := runTool[[]aggregateRow](t, "aggregate", h.aggregate, map[string]any{
			"case": "mcp-case", "group_by": "type",
		})
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(rows))
		}
		if rows[0].Key != "text" || rows[0].Count != 2 {
			t.Errorf("top type = %+v", rows[0])
		}
	})

	t.Run("date window", func(t *testing.T) {
		rows := runTool[[]aggregateRow](t, "aggregate", h.aggregate, map[string]any{
			"case": "mcp-case", "group_by": "day", "after": "2020-05-02", "before": "2020-05-03",
		})
		if len(rows) != 1 || rows[0].Key != "2020-05-02" {
			t.Fatalf("rows = %+v", rows)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"invalid group_by", map[string]any{"case": "mcp-case", "group_by": "invalid"}},
		{"missing group_by", map[string]any{"case": "mcp-case"}},
		{"missing case", map[string]any{"group_by": "sender"}},
		{"invalid after", map[string]any{"case": "mcp-case", "group_by": "sender", "after": "bad"}},
		{"invalid before", map[string]any{"case": "mcp-case", "group_by": "sender", "before": "2020/05/01"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, "aggregate", h.aggregate, tt.args)
		})
	}
}

func TestGetAttachment(t *testing.T) {
	h, convID := newVaultHandlers(t)

	type page struct {
		Messages []messageInfo `json:"messages"`
	}
	conv := runTool[page](t, "get_conversation", h.getConversation, map[string]any{"conversation_id": float64(convID)})
	atts := conv.Messages[1].Attachments
	if len(atts) != 2 {
		t.Fatalf("fixture attachments = %d", len(atts))
	}
	storedID, missingID := atts[0].ID, atts[1].ID

	t.Run("valid", func(t *testing.T) {
		resp := runTool[struct {
			Filename      string `json:"filename"`
			MimeType      string `json:"mime_type"`
			Size          int64  `json:"size"`
			ContentBase64 string `json:"content_base64"`
		}](t, "get_attachment", h.getAttachment, map[string]any{"attachment_id": float64(storedID)})

		if resp.Filename != "pic.jpg" {
			t.Errorf("filename = %q", resp.Filename)
		}
		if resp.MimeType != "image/jpeg" {
			t.Errorf("mime_type = %q", resp.MimeType)
		}
		decoded, err := base64.StdEncoding.DecodeString(resp.ContentBase64)
		if err != nil {
			t.Fatal(err)
		}
		if string(decoded) != "jpeg-bytes" {
			t.Errorf("content = %q", decoded)
		}
	})

	t.Run("content missing", func(t *testing.T) {
		r := runToolExpectError(t, "get_attachment", h.getAttachment, map[string]any{"attachment_id": float64(missingID)})
		if txt := resultText(t, r); txt != "attachment content was not present in the archive" {
			t.Errorf("unexpected error: %s", txt)
		}
	})

	errorCases := []struct {
		name string
		args map[string]any
	}{
		{"missing attachment_id", map[string]any{}},
		{"non-integer id", map[string]any{"attachment_id": float64(1.5)}},
		{"not found", map[string]any{"attachment_id": float64(99999)}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, "get_attachment", h.getAttachment, tt.args)
		})
	}

	t.Run("attachmentsDir not configured", func(t *testing.T) {
		h2 := &handlers{store: h.store, engine: h.engine, attachmentsDir: ""}
		runToolExpectError(t, "get_attachment", h2.getAttachment, map[string]any{"attachment_id": float64(storedID)})
	})

	t.Run("file not on disk", func(t *testing.T) {
		h2 := &handlers{store: h.store, engine: h.engine, attachmentsDir: t.TempDir()}
		runToolExpectError(t, "get_attachment", h2.getAttachment, map[string]any{"attachment_id": float64(storedID)})
	})
}

func TestIntArgClamping(t *testing.T) {
	tests := []struct {
		name string
		val  float64
		want int
	}{
		{"negative clamped to 0", -5, 0},
		{"zero stays zero", 0, 0},
		{"normal value", 50, 50},
		{"above max clamped", 5000, maxLimit},
		{"huge float clamped", 1e18, maxLimit},
		{"NaN clamped to 0", math.NaN(), 0},
		{"Inf clamped", math.Inf(1), maxLimit},
		{"negative Inf clamped to 0", math.Inf(-1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := intArg(map[string]any{"x": tt.val}, "x", 20)
			if got != tt.want {
				t.Fatalf("intArg(%v) = %d, want %d", tt.val, got, tt.want)
			}
		})
	}
}
