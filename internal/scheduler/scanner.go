package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/recordvault/recordvault/internal/config"
	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/store"
)

// Scanner imports record archives dropped into watch directories. Its Scan
// method is the ScanFunc a Scheduler drives: it picks up every *.zip in the
// watch directory and runs it through the importer, which skips archives
// whose content hash was already imported into the case.
type Scanner struct {
	store          *store.Store
	importer       *importer.Importer
	attachmentsDir string
	logger         *slog.Logger
}

// NewScanner creates a scanner over an open vault.
func NewScanner(st *store.Store, imp *importer.Importer, attachmentsDir string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{store: st, importer: imp, attachmentsDir: attachmentsDir, logger: logger}
}

// Scan imports the new archives in one watch directory and returns how
// many were imported. Archives that fail to import are reported but do
// not stop the remaining files from being tried.
func (sc *Scanner) Scan(ctx context.Context, watch config.WatchEntry) (int, error) {
	c, err := sc.store.ResolveCase(watch.Case)
	if err != nil {
		return 0, fmt.Errorf("watch %s: %w", watch.Dir, err)
	}

	entries, err := os.ReadDir(watch.Dir)
	if err != nil {
		return 0, fmt.Errorf("watch %s: %w", watch.Dir, err)
	}

	imported := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		path := filepath.Join(watch.Dir, entry.Name())
		sum, err := sc.importer.Import(ctx, c.ID, path, importer.Options{
			AttachmentsDir: sc.attachmentsDir,
		})
		switch {
		case errors.Is(err, importer.ErrDuplicateArchive):
			sc.logger.Debug("archive already imported", "path", path, "case", c.Name)
		case err != nil:
			sc.logger.Error("archive import failed", "path", path, "case", c.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
		default:
			imported++
			sc.logger.Info("archive imported",
				"path", path,
				"case", c.Name,
				"conversations", sum.Conversations,
				"messages", sum.Messages,
				"attachments", sum.Attachments)
		}
	}

	return imported, errors.Join(errs...)
}
