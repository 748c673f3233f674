package record

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// BuildZip writes a record export archive into a temp directory: the
// rendered document as records.html plus the given media entries. Entries
// are written in sorted order so archive order is deterministic.
func BuildZip(t *testing.T, html string, media map[string][]byte) string {
	t.Helper()

	entries := map[string][]byte{"records.html": []byte(html)}
	for name, data := range media {
		entries[name] = data
	}
	return WriteZip(t, entries)
}

// WriteZip writes arbitrary entries into a temp zip and returns its path.
func WriteZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", name, err)
		}
		if _, err := w.Write(entries[name]); err != nil {
			t.Fatalf("write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}
