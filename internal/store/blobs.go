package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/fileutil"
	"github.com/recordvault/recordvault/internal/instagram"
)

// blobKey returns the content hash of a media blob and its content-addressed
// relative storage path ("ab/abcd....jpg"). SaveRecord writes the same path
// into attachment rows that CopyBlobs materializes on disk, so the two stay
// in agreement without coordination.
func blobKey(b *archive.Blob) (hash, rel string) {
	sum := sha256.Sum256(b.Data)
	hash = hex.EncodeToString(sum[:])
	ext := strings.ToLower(path.Ext(b.Name))
	return hash, hash[:2] + "/" + hash + ext
}

// BlobStats reports what CopyBlobs wrote.
type BlobStats struct {
	Copied  int
	Skipped int // already present (content-addressed dedup)
	Bytes   int64
}

// CopyBlobs writes every resolved media blob of a record into dir using
// content-addressed paths. Blobs already present are skipped, so repeated
// imports of overlapping archives store each file once.
func CopyBlobs(rec *instagram.Record, dir string) (*BlobStats, error) {
	stats := &BlobStats{}
	copyOne := func(b *archive.Blob) error {
		if b == nil {
			return nil
		}
		_, rel := blobKey(b)
		dest := filepath.Join(dir, filepath.FromSlash(rel))
		if _, err := os.Stat(dest); err == nil {
			stats.Skipped++
			return nil
		}
		if err := fileutil.SecureMkdirAll(filepath.Dir(dest), 0o700); err != nil {
			return fmt.Errorf("create blob directory: %w", err)
		}
		if err := fileutil.SecureWriteFile(dest, b.Data, 0o600); err != nil {
			return fmt.Errorf("write blob %s: %w", rel, err)
		}
		stats.Copied++
		stats.Bytes += int64(len(b.Data))
		return nil
	}

	for ci := range rec.Conversations {
		conv := &rec.Conversations[ci]
		for mi := range conv.Messages {
			for ai := range conv.Messages[mi].Attachments {
				if err := copyOne(conv.Messages[mi].Attachments[ai].Blob); err != nil {
					return stats, err
				}
			}
		}
	}
	for i := range rec.Photos {
		if err := copyOne(rec.Photos[i].Blob); err != nil {
			return stats, err
		}
	}
	if rec.Profile != nil && rec.Profile.Picture != nil {
		if err := copyOne(rec.Profile.Picture.Blob); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// OpenBlob returns the stored bytes for a content-addressed storage path.
// The path must be one previously written by SaveRecord; anything that
// escapes dir is rejected.
func OpenBlob(dir, storagePath string) ([]byte, error) {
	clean := path.Clean(storagePath)
	if clean == "." || strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage path %q", storagePath)
	}
	return os.ReadFile(filepath.Join(dir, filepath.FromSlash(clean)))
}
