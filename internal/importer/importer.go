// Package importer drives the full ingestion pipeline for one export
// archive: hash, open, parse, persist, copy media, finish the import run.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/recordvault/recordvault/internal/archive"
	"github.com/recordvault/recordvault/internal/instagram"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/textutil"
)

// ErrDuplicateArchive is returned when an archive with the same content
// hash has already been imported into the case. Bypass with Options.Force.
var ErrDuplicateArchive = errors.New("archive already imported")

// Importer ingests export archives into the vault.
type Importer struct {
	store    *store.Store
	progress Progress
	log      *slog.Logger
}

// New creates an importer. progress may be nil for silent operation and
// log may be nil for the default logger.
func New(s *store.Store, progress Progress, log *slog.Logger) *Importer {
	if progress == nil {
		progress = NullProgress{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: s, progress: progress, log: log}
}

// Options controls a single import run.
type Options struct {
	// AttachmentsDir is the root directory for content-addressed media
	// storage. Empty skips media copying; attachment rows are still
	// written with their content hashes.
	AttachmentsDir string

	// Force imports the archive even when its hash matches a previous
	// completed import of the case.
	Force bool

	// Archive tunes extraction limits. Zero values use the defaults.
	Archive archive.Options
}

// Summary reports what one import run did.
type Summary struct {
	ImportID     int64
	CaseID       string
	DocumentName string
	Layout       string
	Duration     time.Duration

	Conversations int
	Messages      int
	Attachments   int
	Participants  int
	Diagnostics   int

	MediaResolved int
	MediaMissing  int
	MediaCopied   int
	MediaSkipped  int
	MediaBytes    int64

	// Warnings lists non-fatal archive problems (skipped oversize
	// entries, extra documents). The import still completed.
	Warnings []string
}

// Progress receives callbacks during an import run. Implementations must
// not block; they run inline with the pipeline.
type Progress interface {
	OnStart(archivePath string)
	OnDocumentFound(documentName string, mediaCount int)
	OnParsed(conversations, messages int)
	OnStored(result *store.SaveResult)
	OnMediaCopied(copied, skipped int, bytes int64)
	OnComplete(summary *Summary)
	OnError(err error)
}

// NullProgress is a no-op Progress.
type NullProgress struct{}

func (NullProgress) OnStart(string)                {}
func (NullProgress) OnDocumentFound(string, int)   {}
func (NullProgress) OnParsed(int, int)             {}
func (NullProgress) OnStored(*store.SaveResult)    {}
func (NullProgress) OnMediaCopied(int, int, int64) {}
func (NullProgress) OnComplete(*Summary)           {}
func (NullProgress) OnError(error)                 {}

// Import ingests the archive at archivePath into the case. On success the
// import run is marked completed; on any failure it is marked failed and
// no record rows remain.
func (imp *Importer) Import(ctx context.Context, caseID, archivePath string, opts Options) (*Summary, error) {
	start := time.Now()
	imp.progress.OnStart(archivePath)

	absPath, err := filepath.Abs(archivePath)
	if err != nil {
		absPath = archivePath
	}

	hash, err := hashFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("hash archive: %w", err)
	}

	if !opts.Force {
		prev, err := imp.store.FindImportBySHA256(caseID, hash)
		if err != nil {
			return nil, fmt.Errorf("check for duplicate archive: %w", err)
		}
		if prev != nil {
			return nil, fmt.Errorf("%w as import %d on %s",
				ErrDuplicateArchive, prev.ID, prev.StartedAt.Format("2006-01-02"))
		}
	}

	if opts.Archive.Logger == nil {
		opts.Archive.Logger = imp.log
	}
	ex, err := archive.Open(archivePath, opts.Archive)
	if err != nil {
		imp.progress.OnError(err)
		return nil, err
	}
	for _, w := range ex.Warnings {
		imp.log.Warn("archive warning", "archive", filepath.Base(archivePath), "warning", w)
	}
	imp.progress.OnDocumentFound(ex.DocumentName, ex.Media.Len())

	parser := instagram.NewParser(instagram.WithLogger(imp.log))
	rec, err := parser.Parse(ctx, ex)
	if err != nil {
		imp.progress.OnError(err)
		return nil, err
	}
	imp.progress.OnParsed(len(rec.Conversations), rec.MessageCount())

	importID, err := imp.store.StartImport(caseID, absPath, hash)
	if err != nil {
		return nil, fmt.Errorf("start import: %w", err)
	}

	// From here on a failure must mark the run failed so the case never
	// shows a phantom "running" import.
	var runErr error
	defer func() {
		if runErr != nil {
			if ferr := imp.store.FailImport(importID, textutil.FirstLine(runErr.Error())); ferr != nil {
				imp.log.Error("mark import failed", "import", importID, "error", ferr)
			}
			imp.progress.OnError(runErr)
		}
	}()

	summary := &Summary{
		ImportID:      importID,
		CaseID:        caseID,
		DocumentName:  ex.DocumentName,
		Layout:        rec.Layout.String(),
		MediaResolved: rec.MediaResolved,
		MediaMissing:  rec.MediaMissing,
		Warnings:      ex.Warnings,
	}

	// Media goes to disk before the rows land so that a completed import
	// always has its blobs in place. Orphans from a failed run are
	// content-addressed and get reused on retry.
	if opts.AttachmentsDir != "" {
		stats, err := store.CopyBlobs(rec, opts.AttachmentsDir)
		if err != nil {
			runErr = fmt.Errorf("copy media: %w", err)
			return nil, runErr
		}
		summary.MediaCopied = stats.Copied
		summary.MediaSkipped = stats.Skipped
		summary.MediaBytes = stats.Bytes
		imp.progress.OnMediaCopied(stats.Copied, stats.Skipped, stats.Bytes)
	}

	res, err := imp.store.SaveRecord(ctx, importID, ex.DocumentName, rec)
	if err != nil {
		runErr = fmt.Errorf("save record: %w", err)
		return nil, runErr
	}
	imp.progress.OnStored(res)

	if err := imp.store.CompleteImport(importID); err != nil {
		runErr = fmt.Errorf("complete import: %w", err)
		return nil, runErr
	}

	summary.Conversations = res.Conversations
	summary.Messages = res.Messages
	summary.Attachments = res.Attachments
	summary.Participants = res.Participants
	summary.Diagnostics = res.Diagnostics
	summary.Duration = time.Since(start)

	imp.log.Info("import complete",
		"case", caseID,
		"import", importID,
		"document", ex.DocumentName,
		"conversations", summary.Conversations,
		"messages", summary.Messages,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	imp.progress.OnComplete(summary)
	return summary, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
