package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/testutil/record"
)

func newScanVault(t *testing.T) (*store.Store, *Scanner) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	imp := importer.New(s, nil, nil)
	return s, NewScanner(s, imp, t.TempDir(), nil)
}

// dropArchive writes a small record export into dir. The body carries the
// file name so every drop has a distinct content hash.
func dropArchive(t *testing.T, dir, name string) {
	t.Helper()
	b := record.New().
		RequestParam("Service", "Instagram").
		RequestParam("Target", "janedoe").
		Vanity("janedoe")
	th := b.Thread("1234567890123456789").
		Participants("janedoe (Instagram: 1234567)")
	th.Message().
		Author("janedoe (Instagram: 1234567)").
		Sent("2020-03-01 12:00:05 UTC").
		Body("dropped from " + name)

	data, err := os.ReadFile(record.BuildZip(t, b.HTML(), nil))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
}

func TestScan(t *testing.T) {
	s, sc := newScanVault(t)
	if _, err := s.CreateCase("op-north", "", ""); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	dir := t.TempDir()
	dropArchive(t, dir, "drop1.zip")
	dropArchive(t, dir, "drop2.ZIP") // extension match is case-insensitive

	// Non-archives and nested directories are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	watch := config.WatchEntry{Dir: dir, Case: "op-north", Schedule: "*/15 * * * *"}
	imported, err := sc.Scan(context.Background(), watch)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2", imported)
	}

	// A second pass finds nothing new: both archives hash-match previous
	// imports.
	imported, err = sc.Scan(context.Background(), watch)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if imported != 0 {
		t.Errorf("second scan imported = %d, want 0", imported)
	}

	c, err := s.GetCaseByName("op-north")
	if err != nil || c == nil {
		t.Fatalf("GetCaseByName: %v, %v", c, err)
	}
	imports, err := s.ListImports(c.ID)
	if err != nil {
		t.Fatalf("ListImports: %v", err)
	}
	if len(imports) != 2 {
		t.Errorf("stored imports = %d, want 2", len(imports))
	}
}

func TestScanUnknownCase(t *testing.T) {
	_, sc := newScanVault(t)

	watch := config.WatchEntry{Dir: t.TempDir(), Case: "ghost", Schedule: "*/15 * * * *"}
	if _, err := sc.Scan(context.Background(), watch); err == nil {
		t.Error("Scan with unknown case = nil, want error")
	}
}

func TestScanMissingDir(t *testing.T) {
	s, sc := newScanVault(t)
	if _, err := s.CreateCase("op-north", "", ""); err != nil {
		t.Fatal(err)
	}

	watch := config.WatchEntry{Dir: filepath.Join(t.TempDir(), "gone"), Case: "op-north"}
	if _, err := sc.Scan(context.Background(), watch); err == nil {
		t.Error("Scan with missing dir = nil, want error")
	}
}

func TestScanContinuesPastBadArchive(t *testing.T) {
	s, sc := newScanVault(t)
	if _, err := s.CreateCase("op-north", "", ""); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	// Sorted first, so the good archive after it proves the scan goes on.
	if err := os.WriteFile(filepath.Join(dir, "aa-corrupt.zip"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	dropArchive(t, dir, "bb-good.zip")

	watch := config.WatchEntry{Dir: dir, Case: "op-north"}
	imported, err := sc.Scan(context.Background(), watch)
	if err == nil {
		t.Error("Scan with corrupt archive = nil, want error")
	}
	if imported != 1 {
		t.Errorf("imported = %d, want 1", imported)
	}
}

func TestScanCancelled(t *testing.T) {
	s, sc := newScanVault(t)
	if _, err := s.CreateCase("op-north", "", ""); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	dropArchive(t, dir, "drop1.zip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	imported, err := sc.Scan(ctx, config.WatchEntry{Dir: dir, Case: "op-north"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if imported != 0 {
		t.Errorf("imported = %d, want 0", imported)
	}
}

func TestScannerDrivesScheduler(t *testing.T) {
	s, sc := newScanVault(t)
	if _, err := s.CreateCase("op-north", "", ""); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	dropArchive(t, dir, "drop1.zip")

	sched := New(sc.Scan)
	if err := sched.AddWatch(config.WatchEntry{Dir: dir, Case: "op-north", Schedule: "0 0 1 1 *", Enabled: true}); err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if err := sched.TriggerScan(); err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		statuses := sched.Status()
		if len(statuses) == 1 && !statuses[0].LastRun.IsZero() {
			if statuses[0].LastImported != 1 {
				t.Errorf("LastImported = %d, want 1", statuses[0].LastImported)
			}
			if statuses[0].LastError != "" {
				t.Errorf("LastError = %q", statuses[0].LastError)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan did not complete, status = %+v", statuses)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
