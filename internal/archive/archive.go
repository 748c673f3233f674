// Package archive opens Meta Business Record export ZIPs entirely in
// memory: it selects the record HTML document, normalizes it to UTF-8,
// and materializes every linked media file into an indexed MediaMap.
//
// Nothing is written to disk and no entry is ever executed or fetched;
// the export is treated as hostile input throughout.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/recordvault/recordvault/internal/textutil"
)

var (
	// ErrNoRecordDocument is returned when the archive contains no HTML
	// document that could serve as the record.
	ErrNoRecordDocument = errors.New("archive contains no record document")

	// ErrLimitExceeded is returned when the record document itself exceeds
	// the configured extraction limit. Oversized media files are skipped
	// with a warning instead.
	ErrLimitExceeded = errors.New("archive extraction limit exceeded")
)

// These are deliberately generous defaults; they exist to stop zip-bomb
// style resource exhaustion, not to constrain real-world exports.
const (
	DefaultMaxDocumentBytes   int64 = 64 << 20  // 64 MiB record document
	DefaultMaxMediaFileBytes  int64 = 256 << 20 // 256 MiB per media file
	DefaultMaxTotalMediaBytes int64 = 2 << 30   // 2 GiB of media overall

	defaultMediaWorkers = 4
)

// Options controls archive loading. The zero value uses the defaults above.
type Options struct {
	MaxDocumentBytes   int64
	MaxMediaFileBytes  int64
	MaxTotalMediaBytes int64

	// MediaWorkers bounds concurrent media decompression. All media is
	// fully materialized before Open returns.
	MediaWorkers int

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if o.MaxMediaFileBytes <= 0 {
		o.MaxMediaFileBytes = DefaultMaxMediaFileBytes
	}
	if o.MaxTotalMediaBytes <= 0 {
		o.MaxTotalMediaBytes = DefaultMaxTotalMediaBytes
	}
	if o.MediaWorkers <= 0 {
		o.MediaWorkers = defaultMediaWorkers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Export is a fully materialized Meta Business Record archive.
type Export struct {
	// DocumentName is the archive-relative path of the chosen record
	// document, e.g. "records.html" or "instagram-123/records.html".
	DocumentName string

	// DocumentHTML is the record document as UTF-8 text.
	DocumentHTML string

	// Media indexes every materialized media blob by path, de-prefixed
	// path, and basename.
	Media *MediaMap

	// Warnings lists non-fatal problems encountered while loading:
	// skipped oversize entries, ignored extra HTML documents, undecodable
	// entry names. They never abort the load.
	Warnings []string
}

// Open loads the export ZIP at path.
func Open(pathname string, opts Options) (*Export, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return FromReader(f, st.Size(), opts)
}

// FromReader loads an export ZIP from an in-memory or seekable source.
func FromReader(r io.ReaderAt, size int64, opts Options) (*Export, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return fromZip(zr, opts.withDefaults())
}

// documentPriority ranks record document candidates. Lower is better.
func documentPriority(base string) int {
	switch strings.ToLower(base) {
	case "records.html":
		return 0
	case "preservation.html":
		return 1
	case "index.html":
		return 2
	}
	if ext := strings.ToLower(path.Ext(base)); ext == ".html" || ext == ".htm" {
		return 3
	}
	return -1
}

// entryName normalizes a zip entry name to a clean slash path, or returns
// "" for names that cannot identify a file (absolute, traversal, junk).
func entryName(raw string) string {
	name := strings.ReplaceAll(raw, "\\", "/")
	name = path.Clean(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.HasPrefix(name, "../") {
		return ""
	}
	// Archive junk that is never record content.
	if strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store" {
		return ""
	}
	return name
}

// pathDepth counts directory levels above the base name.
func pathDepth(name string) int {
	return strings.Count(name, "/")
}

type mediaResult struct {
	blob *Blob
	warn string
}

func fromZip(zr *zip.Reader, opts Options) (*Export, error) {
	var warnings []string

	// Pass 1: classify entries and pick the record document.
	type docCandidate struct {
		file     *zip.File
		name     string
		priority int
		depth    int
	}
	var docs []docCandidate
	var mediaFiles []*zip.File
	var mediaNames []string

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := entryName(zf.Name)
		if name == "" {
			continue
		}
		if p := documentPriority(path.Base(name)); p >= 0 {
			docs = append(docs, docCandidate{file: zf, name: name, priority: p, depth: pathDepth(name)})
			continue
		}
		if _, ok := mediaTypeFor(name); ok {
			mediaFiles = append(mediaFiles, zf)
			mediaNames = append(mediaNames, name)
		}
	}

	if len(docs) == 0 {
		return nil, ErrNoRecordDocument
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].priority != docs[j].priority {
			return docs[i].priority < docs[j].priority
		}
		if docs[i].depth != docs[j].depth {
			return docs[i].depth < docs[j].depth
		}
		return docs[i].name < docs[j].name
	})
	chosen := docs[0]
	for _, d := range docs[1:] {
		warnings = append(warnings, fmt.Sprintf("ignoring additional HTML document %q", d.name))
	}

	if int64(chosen.file.UncompressedSize64) > opts.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: record document %q is %d bytes (limit %d)",
			ErrLimitExceeded, chosen.name, chosen.file.UncompressedSize64, opts.MaxDocumentBytes)
	}
	docBytes, err := readEntry(chosen.file, opts.MaxDocumentBytes)
	if err != nil {
		return nil, fmt.Errorf("record document %q: %w", chosen.name, err)
	}
	docText := textutil.DecodeHTML(docBytes)

	// Pass 2: materialize media concurrently, then apply limits in archive
	// order so warnings and the kept set are deterministic.
	results := make([]mediaResult, len(mediaFiles))
	g := new(errgroup.Group)
	g.SetLimit(opts.MediaWorkers)
	for i, zf := range mediaFiles {
		g.Go(func() error {
			name := mediaNames[i]
			if int64(zf.UncompressedSize64) > opts.MaxMediaFileBytes {
				results[i] = mediaResult{warn: fmt.Sprintf("skipping oversize media %q (%d bytes)", name, zf.UncompressedSize64)}
				return nil
			}
			data, err := readEntry(zf, opts.MaxMediaFileBytes)
			if err != nil {
				results[i] = mediaResult{warn: fmt.Sprintf("skipping unreadable media %q: %v", name, err)}
				return nil
			}
			mt, _ := mediaTypeFor(name)
			results[i] = mediaResult{blob: &Blob{
				Path: name,
				Name: path.Base(name),
				MIME: mt.mime,
				Kind: mt.kind,
				Data: data,
			}}
			return nil
		})
	}
	// Workers only record per-entry results; they never return errors.
	_ = g.Wait()

	var blobs []*Blob
	var totalMedia int64
	for _, res := range results {
		if res.warn != "" {
			warnings = append(warnings, res.warn)
			continue
		}
		if res.blob == nil {
			continue
		}
		if totalMedia+int64(len(res.blob.Data)) > opts.MaxTotalMediaBytes {
			warnings = append(warnings, fmt.Sprintf("skipping media %q: total media limit reached (%d bytes)", res.blob.Path, opts.MaxTotalMediaBytes))
			continue
		}
		totalMedia += int64(len(res.blob.Data))
		blobs = append(blobs, res.blob)
	}

	opts.Logger.Debug("archive loaded",
		"document", chosen.name,
		"media_files", len(blobs),
		"media_bytes", totalMedia,
		"warnings", len(warnings))

	return &Export{
		DocumentName: chosen.name,
		DocumentHTML: docText,
		Media:        newMediaMap(blobs),
		Warnings:     warnings,
	}, nil
}

// readEntry decompresses a single entry, enforcing limit even when the zip
// header understates the true size.
func readEntry(zf *zip.File, limit int64) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: entry exceeds %d bytes", ErrLimitExceeded, limit)
	}
	return data, nil
}
