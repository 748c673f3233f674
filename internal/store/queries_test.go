package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestListConversations(t *testing.T) {
	s := newTestStore(t)
	caseID, _, res := saveSampleRecord(t, s)

	convs, total, err := s.ListConversations(caseID, 0, 10)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if total != 2 || len(convs) != 2 {
		t.Fatalf("got %d conversations (total %d), want 2", len(convs), total)
	}
	// Most recently active first: conv1 runs to 2020-05-03.
	if convs[0].ThreadID != "1234567890123456789" {
		t.Errorf("first conversation = %q", convs[0].ThreadID)
	}
	if diff := cmp.Diff([]string{"janedoe", "rex_t"}, convs[0].Participants); diff != "" {
		t.Errorf("participants mismatch (-want +got):\n%s", diff)
	}
	if convs[0].MessageCount != 4 || convs[0].AttachmentCount != 1 {
		t.Errorf("conv1 counts = %d/%d", convs[0].MessageCount, convs[0].AttachmentCount)
	}
	if convs[1].CallCount != 1 {
		t.Errorf("conv2 CallCount = %d, want 1", convs[1].CallCount)
	}
	if convs[0].ID != res.ConversationIDs["1234567890123456789"] {
		t.Errorf("conversation ID %d does not match SaveResult map", convs[0].ID)
	}

	page, total, err := s.ListConversations(caseID, 1, 1)
	if err != nil {
		t.Fatalf("ListConversations page: %v", err)
	}
	if total != 2 || len(page) != 1 || page[0].ThreadID != "9876543210987654321" {
		t.Errorf("page = %+v (total %d)", page, total)
	}
}

func TestListConversationsEmptyCase(t *testing.T) {
	s := newTestStore(t)
	c, err := s.CreateCase("empty", "", "")
	if err != nil {
		t.Fatal(err)
	}
	convs, total, err := s.ListConversations(c.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if total != 0 || len(convs) != 0 {
		t.Errorf("got %d conversations (total %d), want none", len(convs), total)
	}
}

func TestGetConversation(t *testing.T) {
	s := newTestStore(t)
	_, _, res := saveSampleRecord(t, s)

	id := res.ConversationIDs["9876543210987654321"]
	c, err := s.GetConversation(id)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if c == nil {
		t.Fatal("GetConversation returned nil")
	}
	if c.ThreadID != "9876543210987654321" || c.Section != "unified_messages" {
		t.Errorf("conversation = %+v", c)
	}
	if len(c.Participants) != 2 {
		t.Errorf("participants = %v", c.Participants)
	}

	missing, err := s.GetConversation(999999)
	if err != nil {
		t.Fatalf("GetConversation(miss): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown conversation, got %+v", missing)
	}
}

func TestListMessages(t *testing.T) {
	s := newTestStore(t)
	_, _, res := saveSampleRecord(t, s)
	convID := res.ConversationIDs["1234567890123456789"]

	msgs, total, err := s.ListMessages(convID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 4 || len(msgs) != 4 {
		t.Fatalf("got %d messages (total %d), want 4", len(msgs), total)
	}

	if msgs[0].Body != "hello from the record" || msgs[0].Author != "janedoe" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[0].SentAt == nil || !msgs[0].SentAt.Equal(time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("msgs[0].SentAt = %v", msgs[0].SentAt)
	}

	if len(msgs[1].Attachments) != 1 {
		t.Fatalf("msgs[1].Attachments = %+v", msgs[1].Attachments)
	}
	att := msgs[1].Attachments[0]
	if att.MIMEType != "image/jpeg" || att.Size != 2048 || !att.Resolved {
		t.Errorf("attachment = %+v", att)
	}
	if att.ContentHash == "" || att.StoragePath == "" {
		t.Errorf("resolved attachment missing hash/storage: %+v", att)
	}

	if msgs[2].Share == nil || msgs[2].Share.URL != "https://example.com/post" {
		t.Errorf("msgs[2].Share = %+v", msgs[2].Share)
	}
	if msgs[3].SentAt != nil {
		t.Errorf("undated message SentAt = %v", msgs[3].SentAt)
	}
	if !msgs[3].RemovedBySender {
		t.Error("msgs[3].RemovedBySender = false")
	}

	page, total, err := s.ListMessages(convID, 2, 2)
	if err != nil {
		t.Fatalf("ListMessages page: %v", err)
	}
	if total != 4 || len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Errorf("page seqs = %+v (total %d)", page, total)
	}
}

func TestGetMessage(t *testing.T) {
	s := newTestStore(t)
	saveSampleRecord(t, s)

	insp, err := s.InspectMessage("9876543210987654321", 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := s.GetMessage(insp.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m == nil {
		t.Fatal("GetMessage returned nil")
	}
	if m.ThreadID != "9876543210987654321" || m.Type != "call" {
		t.Errorf("message = %+v", m)
	}
	if m.Call == nil || m.Call.Type != "video" || m.Call.DurationSeconds != 130 {
		t.Errorf("call payload = %+v", m.Call)
	}

	missing, err := s.GetMessage(999999)
	if err != nil {
		t.Fatalf("GetMessage(miss): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown message, got %+v", missing)
	}
}

func TestGetAttachment(t *testing.T) {
	s := newTestStore(t)
	_, _, res := saveSampleRecord(t, s)

	msgs, _, err := s.ListMessages(res.ConversationIDs["1234567890123456789"], 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := msgs[1].Attachments[0]
	got, err := s.GetAttachment(want.ID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if got == nil {
		t.Fatal("GetAttachment returned nil")
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("attachment mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchMessages(t *testing.T) {
	s := newTestStore(t)
	caseID, _, _ := saveSampleRecord(t, s)

	msgs, total, err := s.SearchMessages(caseID, "hello", 0, 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("got %d hits (total %d), want 1", len(msgs), total)
	}
	if msgs[0].Body != "hello from the record" {
		t.Errorf("hit = %+v", msgs[0])
	}

	msgs, total, err = s.SearchMessages(caseID, "nothing-matches-this", 0, 10)
	if err != nil {
		t.Fatalf("SearchMessages(no hits): %v", err)
	}
	if total != 0 || len(msgs) != 0 {
		t.Errorf("got %d hits (total %d), want none", len(msgs), total)
	}
}

// A query FTS5 cannot parse must fall back to LIKE instead of erroring.
func TestSearchMessagesMalformedQuery(t *testing.T) {
	s := newTestStore(t)
	caseID, _, _ := saveSampleRecord(t, s)

	if _, _, err := s.SearchMessages(caseID, `"unterminated`, 0, 10); err != nil {
		t.Errorf("malformed query errored: %v", err)
	}
	if _, _, err := s.SearchMessages(caseID, "hello AND", 0, 10); err != nil {
		t.Errorf("dangling operator errored: %v", err)
	}
}

func TestSearchMessagesLike(t *testing.T) {
	s := newTestStore(t)
	caseID, _, _ := saveSampleRecord(t, s)

	msgs, total, err := s.searchMessagesLike(caseID, "undated", 0, 10)
	if err != nil {
		t.Fatalf("searchMessagesLike: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("got %d hits (total %d), want 1", len(msgs), total)
	}
	if msgs[0].Body != "undated trailer" {
		t.Errorf("hit = %+v", msgs[0])
	}

	// Author usernames are searchable too.
	_, total, err = s.searchMessagesLike(caseID, "janedoe", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("author hits = %d, want 2", total)
	}
}

func TestSearchMessagesScopedToCase(t *testing.T) {
	s := newTestStore(t)
	caseID, _, _ := saveSampleRecord(t, s)

	other, err := s.CreateCase("other", "", "")
	if err != nil {
		t.Fatal(err)
	}
	impID, err := s.StartImport(other.ID, "/tmp/other.zip", "beefcafe")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveRecord(context.Background(), impID, "records.html", sampleRecord()); err != nil {
		t.Fatalf("SaveRecord(other): %v", err)
	}

	_, total, err := s.SearchMessages(caseID, "hello", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("search crossed case boundary: total = %d, want 1", total)
	}
}
