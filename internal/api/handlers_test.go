package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/instagram"
	"github.com/recordvault/recordvault/internal/query"
	"github.com/recordvault/recordvault/internal/store"
)

func timePtr(t time.Time) *time.Time { return &t }

// apiFixtureRecord builds a record with one conversation: a text message,
// an image message carrying one stored and one unresolved attachment, and
// a link share.
func apiFixtureRecord() *instagram.Record {
	jane := instagram.Participant{Username: "janedoe", PlatformID: "1000000000000000001"}
	rex := instagram.Participant{Username: "rex_t", PlatformID: "1000000000000000002"}

	sent1 := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	sent2 := time.Date(2020, 5, 2, 10, 0, 0, 0, time.UTC)
	sent3 := time.Date(2020, 5, 3, 9, 0, 0, 0, time.UTC)

	blob := &archive.Blob{
		Path: "linked_media/pic.jpg",
		Name: "pic.jpg",
		MIME: "image/jpeg",
		Kind: archive.KindImage,
		Data: []byte("jpeg-bytes"),
	}

	conv := instagram.Conversation{
		ThreadID:     "777888999000111222",
		Section:      "unified_messages",
		Participants: []instagram.Participant{jane, rex},
		Messages: []instagram.Message{
			{
				ThreadID: "777888999000111222",
				Author:   &jane,
				Sent:     timePtr(sent1),
				Body:     "meet at the pier",
				Type:     instagram.TypeText,
			},
			{
				ThreadID: "777888999000111222",
				Author:   &rex,
				Sent:     timePtr(sent2),
				Type:     instagram.TypeImage,
				Attachments: []instagram.Attachment{
					{MIME: "image/jpeg", Size: 10, SourcePath: "linked_media/pic.jpg", Blob: blob},
					{MIME: "video/mp4", Size: -1, SourcePath: "linked_media/clip.mp4"},
				},
			},
			{
				ThreadID: "777888999000111222",
				Author:   &jane,
				Sent:     timePtr(sent3),
				Type:     instagram.TypeShare,
				Share:    &instagram.Share{URL: "https://example.com/x", Text: "see", DateCreated: timePtr(sent3)},
			},
		},
		MessageCount:    3,
		AttachmentCount: 2,
		ShareCount:      1,
		StartedAt:       sent1,
		LastActiveAt:    sent3,
	}

	return &instagram.Record{
		Layout:        instagram.LayoutStructuralID,
		Conversations: []instagram.Conversation{conv},
		Directory:     []instagram.Participant{jane, rex},
		ParsedAt:      time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newVaultServer seeds a real vault and returns a server over it.
func newVaultServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.Default(t.TempDir())

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	c, err := st.CreateCase("alpha", "", "")
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	importID, err := st.StartImport(c.ID, "/evidence/alpha.zip", "sha-alpha")
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	rec := apiFixtureRecord()
	if _, err := st.SaveRecord(context.Background(), importID, "records.html", rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := st.CompleteImport(importID); err != nil {
		t.Fatalf("CompleteImport: %v", err)
	}
	if _, err := store.CopyBlobs(rec, cfg.AttachmentsDir()); err != nil {
		t.Fatalf("CopyBlobs: %v", err)
	}

	engine := query.NewSQLiteEngine(st)
	return NewServer(cfg, st, engine, nil, nil, testLogger()), c.ID
}

func getJSON(t *testing.T, srv *Server, path string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	if out != nil && w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w.Code
}

func TestListCasesEndpoint(t *testing.T) {
	srv, _ := newVaultServer(t)

	var resp struct {
		Cases []CaseResponse `json:"cases"`
	}
	if code := getJSON(t, srv, "/api/v1/cases", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Cases) != 1 || resp.Cases[0].Name != "alpha" {
		t.Errorf("cases = %+v", resp.Cases)
	}
	if resp.Cases[0].ID == "" || resp.Cases[0].CreatedAt == "" {
		t.Errorf("case missing ID or timestamp: %+v", resp.Cases[0])
	}
}

func TestGetCaseEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)

	var resp CaseResponse
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.ID != caseID || resp.Name != "alpha" {
		t.Errorf("case = %+v", resp)
	}

	if code := getJSON(t, srv, "/api/v1/cases/missing", nil); code != http.StatusNotFound {
		t.Errorf("unknown case status = %d, want 404", code)
	}
}

func TestCreateCaseEndpoint(t *testing.T) {
	srv, _ := newVaultServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v1/cases", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		srv.Router().ServeHTTP(w, r)
		return w
	}

	w := post(`{"name": "fresh", "subject": "person of interest"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var created CaseResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Name != "fresh" || created.Subject != "person of interest" {
		t.Errorf("created = %+v", created)
	}

	if w := post(`{"name": "alpha"}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate name status = %d, want 409", w.Code)
	}
	if w := post(`{"name": "  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", w.Code)
	}
	if w := post(`{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", w.Code)
	}
}

func TestListImportsEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)

	var resp struct {
		Imports []ImportResponse `json:"imports"`
	}
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/imports", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Imports) != 1 {
		t.Fatalf("imports = %d, want 1", len(resp.Imports))
	}
	imp := resp.Imports[0]
	if imp.Status != "completed" || imp.Messages != 3 || imp.DocumentName != "records.html" {
		t.Errorf("import = %+v", imp)
	}
	if imp.CompletedAt == "" {
		t.Error("completed import missing completed_at")
	}
}

func TestListConversationsEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)

	var resp struct {
		Total         int64                  `json:"total"`
		Conversations []ConversationResponse `json:"conversations"`
	}
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/conversations", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 1 || len(resp.Conversations) != 1 {
		t.Fatalf("total = %d, conversations = %d", resp.Total, len(resp.Conversations))
	}
	conv := resp.Conversations[0]
	if conv.ThreadID != "777888999000111222" || conv.Messages != 3 || conv.Shares != 1 {
		t.Errorf("conversation = %+v", conv)
	}
	found := false
	for _, p := range conv.Participants {
		if p == "janedoe" {
			found = true
		}
	}
	if !found {
		t.Errorf("participants = %v, want janedoe", conv.Participants)
	}
}

// conversationID fetches the seeded conversation's row ID through the API.
func conversationID(t *testing.T, srv *Server, caseID string) int64 {
	t.Helper()
	var resp struct {
		Conversations []ConversationResponse `json:"conversations"`
	}
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/conversations", &resp); code != http.StatusOK {
		t.Fatalf("list conversations status = %d", code)
	}
	if len(resp.Conversations) == 0 {
		t.Fatal("no conversations seeded")
	}
	return resp.Conversations[0].ID
}

func TestListMessagesEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)
	convID := conversationID(t, srv, caseID)

	var resp struct {
		Total    int64             `json:"total"`
		Messages []MessageResponse `json:"messages"`
	}
	path := "/api/v1/conversations/" + strconv.FormatInt(convID, 10) + "/messages"
	if code := getJSON(t, srv, path, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 3 || len(resp.Messages) != 3 {
		t.Fatalf("total = %d, messages = %d", resp.Total, len(resp.Messages))
	}

	first := resp.Messages[0]
	if first.Body != "meet at the pier" || first.Author != "janedoe" || first.Type != "text" {
		t.Errorf("first message = %+v", first)
	}

	image := resp.Messages[1]
	if len(image.Attachments) != 2 {
		t.Fatalf("image attachments = %d, want 2", len(image.Attachments))
	}
	stored := image.Attachments[0]
	if !stored.Resolved || stored.URL == "" || stored.Filename != "pic.jpg" {
		t.Errorf("stored attachment = %+v", stored)
	}
	missing := image.Attachments[1]
	if missing.Resolved || missing.URL != "" {
		t.Errorf("unresolved attachment = %+v", missing)
	}

	shareMsg := resp.Messages[2]
	if shareMsg.Share == nil || shareMsg.Share.URL != "https://example.com/x" {
		t.Errorf("share message = %+v", shareMsg)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/conversations/abc/messages", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad conversation ID status = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)

	var resp SearchResult
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/search?q=pier", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Total != 1 || len(resp.Hits) != 1 {
		t.Fatalf("total = %d, hits = %d", resp.Total, len(resp.Hits))
	}
	if resp.Hits[0].Author != "janedoe" || resp.Hits[0].Snippet == "" {
		t.Errorf("hit = %+v", resp.Hits[0])
	}
	if resp.Query != "pier" || resp.Page != 1 {
		t.Errorf("result meta = %+v", resp)
	}

	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/search", nil); code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", code)
	}

	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/search?q=from:rex_t", &resp); code != http.StatusOK {
		t.Fatalf("operator search status = %d", code)
	}
	if resp.Total != 1 || resp.Hits[0].Type != "image" {
		t.Errorf("operator search = %+v", resp.Hits)
	}
}

func TestCaseStatsEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)

	var resp CaseStatsResponse
	if code := getJSON(t, srv, "/api/v1/cases/"+caseID+"/stats", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Totals.Messages != 3 || resp.Totals.Conversations != 1 || resp.Totals.Attachments != 2 {
		t.Errorf("totals = %+v", resp.Totals)
	}
	if resp.Totals.FirstMessage != "2020-05-01T12:00:00Z" {
		t.Errorf("first message = %q", resp.Totals.FirstMessage)
	}
	if len(resp.TopSenders) == 0 || resp.TopSenders[0].Key != "janedoe" || resp.TopSenders[0].Count != 2 {
		t.Errorf("top senders = %+v", resp.TopSenders)
	}
	if len(resp.ByDay) != 3 {
		t.Errorf("by day = %+v", resp.ByDay)
	}

	if code := getJSON(t, srv, "/api/v1/cases/missing/stats", nil); code != http.StatusNotFound {
		t.Errorf("unknown case status = %d, want 404", code)
	}
}

func TestGetAttachmentEndpoint(t *testing.T) {
	srv, caseID := newVaultServer(t)
	convID := conversationID(t, srv, caseID)

	var msgs struct {
		Messages []MessageResponse `json:"messages"`
	}
	path := "/api/v1/conversations/" + strconv.FormatInt(convID, 10) + "/messages"
	if code := getJSON(t, srv, path, &msgs); code != http.StatusOK {
		t.Fatalf("list messages status = %d", code)
	}
	atts := msgs.Messages[1].Attachments

	// Stored attachment streams with download headers.
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", atts[0].URL, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "jpeg-bytes" {
		t.Errorf("body = %q, want stored blob bytes", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "pic.jpg") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// Unresolved attachment has no stored content.
	w = httptest.NewRecorder()
	unresolvedPath := "/api/v1/attachments/" + strconv.FormatInt(atts[1].ID, 10)
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", unresolvedPath, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unresolved attachment status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/attachments/99999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown attachment status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/attachments/abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad attachment ID status = %d, want 400", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newVaultServer(t)

	var resp StatsResponse
	if code := getJSON(t, srv, "/api/v1/stats", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.TotalCases != 1 || resp.TotalMessages != 3 || resp.TotalConversations != 1 {
		t.Errorf("stats = %+v", resp)
	}
}
