package store

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/recordvault/recordvault/internal/archive"
)

func TestBlobKey(t *testing.T) {
	b := &archive.Blob{Name: "Photo.JPG", Data: []byte("jpeg-bytes")}
	hash, rel := blobKey(b)

	sum := sha256.Sum256([]byte("jpeg-bytes"))
	want := hex.EncodeToString(sum[:])
	if hash != want {
		t.Errorf("hash = %q, want %q", hash, want)
	}
	if rel != want[:2]+"/"+want+".jpg" {
		t.Errorf("rel = %q", rel)
	}

	// Same bytes, different name: same hash, extension follows the name.
	_, rel2 := blobKey(&archive.Blob{Name: "copy.png", Data: []byte("jpeg-bytes")})
	if rel2 != want[:2]+"/"+want+".png" {
		t.Errorf("rel2 = %q", rel2)
	}

	_, noExt := blobKey(&archive.Blob{Name: "README", Data: []byte("jpeg-bytes")})
	if noExt != want[:2]+"/"+want {
		t.Errorf("noExt = %q", noExt)
	}
}

func TestCopyBlobs(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()

	stats, err := CopyBlobs(rec, dir)
	if err != nil {
		t.Fatalf("CopyBlobs: %v", err)
	}
	// Message attachment blob and profile picture; the photo is unresolved.
	if stats.Copied != 2 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 2 copied", stats)
	}
	if stats.Bytes != int64(len("jpeg-bytes")+len("profile-bytes")) {
		t.Errorf("Bytes = %d", stats.Bytes)
	}

	_, rel := blobKey(rec.Conversations[0].Messages[1].Attachments[0].Blob)
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read stored blob: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("stored blob = %q", data)
	}

	// Second pass is a no-op.
	stats, err = CopyBlobs(rec, dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Copied != 0 || stats.Skipped != 2 {
		t.Errorf("second pass stats = %+v, want all skipped", stats)
	}
}

func TestCopyBlobsMatchesStoredPaths(t *testing.T) {
	s := newTestStore(t)
	_, _, res := saveSampleRecord(t, s)

	dir := t.TempDir()
	if _, err := CopyBlobs(sampleRecord(), dir); err != nil {
		t.Fatal(err)
	}

	msgs, _, err := s.ListMessages(res.ConversationIDs["1234567890123456789"], 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	att := msgs[1].Attachments[0]
	data, err := OpenBlob(dir, att.StoragePath)
	if err != nil {
		t.Fatalf("OpenBlob(%q): %v", att.StoragePath, err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("blob = %q", data)
	}
}

func TestOpenBlobRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{
		"",
		"..",
		"../etc/passwd",
		"ab/../../etc/passwd",
		"/etc/passwd",
	} {
		if _, err := OpenBlob(dir, p); err == nil {
			t.Errorf("OpenBlob(%q) succeeded", p)
		}
	}
}
