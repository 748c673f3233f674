package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/testutil/record"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func testCase(t *testing.T, s *store.Store) string {
	t.Helper()
	c, err := s.CreateCase("case-"+t.Name(), "", "")
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return c.ID
}

// exportZip builds a small but complete export: profile, one thread with
// a text message and a resolved image attachment.
func exportZip(t *testing.T) string {
	t.Helper()
	b := record.New().
		RequestParam("Service", "Instagram").
		RequestParam("Target", "janedoe").
		Name("Jane Doe").
		Vanity("janedoe").
		Emails("jane@example.com")

	th := b.Thread("1234567890123456789").
		Participants("janedoe (Instagram: 1234567)", "friend (Instagram: 7654321)")
	th.Message().
		Author("friend (Instagram: 7654321)").
		Sent("2020-03-01 12:00:05 UTC").
		Body("hey, look at this")
	th.Message().
		Author("janedoe (Instagram: 1234567)").
		Sent("2020-03-01 12:01:00 UTC").
		Attachment("image/jpeg", "2048", "linked_media/pic.jpg")

	return record.BuildZip(t, b.HTML(), map[string][]byte{
		"linked_media/pic.jpg": []byte("jpeg-bytes"),
	})
}

func TestImportEndToEnd(t *testing.T) {
	s := newTestStore(t)
	caseID := testCase(t, s)
	attachments := t.TempDir()

	imp := New(s, nil, nil)
	summary, err := imp.Import(context.Background(), caseID, exportZip(t), Options{
		AttachmentsDir: attachments,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if summary.Conversations != 1 || summary.Messages != 2 || summary.Attachments != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.DocumentName != "records.html" {
		t.Errorf("DocumentName = %q", summary.DocumentName)
	}
	if summary.MediaCopied != 1 {
		t.Errorf("MediaCopied = %d, want 1", summary.MediaCopied)
	}
	if summary.Duration <= 0 {
		t.Error("Duration not set")
	}

	got, err := s.GetImport(summary.ImportID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "completed" {
		t.Errorf("import status = %q", got.Status)
	}
	if got.ArchiveSHA256 == "" {
		t.Error("archive hash not stored")
	}

	// The stored attachment's blob is on disk under its content path.
	msgs, _, err := s.ListMessages(mustConversationID(t, s, caseID), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	att := msgs[1].Attachments[0]
	if !att.Resolved || att.StoragePath == "" {
		t.Fatalf("attachment = %+v", att)
	}
	data, err := store.OpenBlob(attachments, att.StoragePath)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("blob = %q", data)
	}
}

func mustConversationID(t *testing.T, s *store.Store, caseID string) int64 {
	t.Helper()
	convs, _, err := s.ListConversations(caseID, 0, 1)
	if err != nil || len(convs) == 0 {
		t.Fatalf("ListConversations: %v (%d rows)", err, len(convs))
	}
	return convs[0].ID
}

func TestImportDuplicateArchive(t *testing.T) {
	s := newTestStore(t)
	caseID := testCase(t, s)
	zipPath := exportZip(t)
	imp := New(s, nil, nil)

	if _, err := imp.Import(context.Background(), caseID, zipPath, Options{}); err != nil {
		t.Fatalf("first import: %v", err)
	}

	_, err := imp.Import(context.Background(), caseID, zipPath, Options{})
	if !errors.Is(err, ErrDuplicateArchive) {
		t.Fatalf("second import error = %v, want ErrDuplicateArchive", err)
	}

	// Force bypasses the guard.
	if _, err := imp.Import(context.Background(), caseID, zipPath, Options{Force: true}); err != nil {
		t.Fatalf("forced import: %v", err)
	}

	imports, err := s.ListImports(caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(imports) != 2 {
		t.Errorf("got %d imports, want 2", len(imports))
	}
}

func TestImportSameArchiveOtherCase(t *testing.T) {
	s := newTestStore(t)
	zipPath := exportZip(t)
	imp := New(s, nil, nil)

	first := testCase(t, s)
	if _, err := imp.Import(context.Background(), first, zipPath, Options{}); err != nil {
		t.Fatal(err)
	}

	second, err := s.CreateCase("second", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := imp.Import(context.Background(), second.ID, zipPath, Options{}); err != nil {
		t.Errorf("import into second case blocked: %v", err)
	}
}

func TestImportRejectsNonArchive(t *testing.T) {
	s := newTestStore(t)
	caseID := testCase(t, s)

	path := filepath.Join(t.TempDir(), "not-a-zip.zip")
	if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
		t.Fatal(err)
	}

	imp := New(s, nil, nil)
	if _, err := imp.Import(context.Background(), caseID, path, Options{}); err == nil {
		t.Fatal("Import accepted a non-zip file")
	}

	// Nothing was started: opening failed before the run was created.
	imports, err := s.ListImports(caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(imports) != 0 {
		t.Errorf("found %d import rows after failed open", len(imports))
	}
}

func TestImportNoDocument(t *testing.T) {
	s := newTestStore(t)
	caseID := testCase(t, s)

	zipPath := record.WriteZip(t, map[string][]byte{
		"linked_media/pic.jpg": []byte("jpeg-bytes"),
	})

	imp := New(s, nil, nil)
	_, err := imp.Import(context.Background(), caseID, zipPath, Options{})
	if !errors.Is(err, archive.ErrNoRecordDocument) {
		t.Fatalf("error = %v, want ErrNoRecordDocument", err)
	}
}

// recordingProgress captures callback order.
type recordingProgress struct {
	events []string
}

func (r *recordingProgress) OnStart(string)                { r.events = append(r.events, "start") }
func (r *recordingProgress) OnDocumentFound(string, int)   { r.events = append(r.events, "document") }
func (r *recordingProgress) OnParsed(int, int)             { r.events = append(r.events, "parsed") }
func (r *recordingProgress) OnStored(*store.SaveResult)    { r.events = append(r.events, "stored") }
func (r *recordingProgress) OnMediaCopied(int, int, int64) { r.events = append(r.events, "media") }
func (r *recordingProgress) OnComplete(*Summary)           { r.events = append(r.events, "complete") }
func (r *recordingProgress) OnError(error)                 { r.events = append(r.events, "error") }

func TestImportProgressOrder(t *testing.T) {
	s := newTestStore(t)
	caseID := testCase(t, s)

	prog := &recordingProgress{}
	imp := New(s, prog, nil)
	if _, err := imp.Import(context.Background(), caseID, exportZip(t), Options{
		AttachmentsDir: t.TempDir(),
	}); err != nil {
		t.Fatal(err)
	}

	want := []string{"start", "document", "parsed", "media", "stored", "complete"}
	if len(prog.events) != len(want) {
		t.Fatalf("events = %v, want %v", prog.events, want)
	}
	for i := range want {
		if prog.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", prog.events, want)
		}
	}
}
