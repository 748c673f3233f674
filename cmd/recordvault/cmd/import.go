package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/recordvault/recordvault/internal/importer"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/textutil"
)

var (
	importForce   bool
	importNoMedia bool
)

var importCmd = &cobra.Command{
	Use:   "import <case> <archive.zip>",
	Short: "Import an export archive into a case",
	Long: `Import a Meta Business Record export ZIP into a case.

The archive is hashed, its records.html parsed, and the conversations,
messages, and account metadata stored in the vault. Media referenced by
the record is copied into content-addressed storage unless --no-media
is given.

Re-importing an archive whose content hash is already in the case is
refused; use --force to import it again anyway.

Examples:
  recordvault import smith-2020 ~/evidence/instagram-78205126.zip
  recordvault import smith-2020 records.zip --force`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		caseRef, archivePath := args[0], args[1]

		if _, err := os.Stat(archivePath); err != nil {
			return fmt.Errorf("archive not found: %w", err)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := resolveCase(s, caseRef)
		if err != nil {
			return err
		}

		opts := importer.Options{Force: importForce}
		if !importNoMedia {
			opts.AttachmentsDir = cfg.AttachmentsDir()
		}

		imp := importer.New(s, &ImportCLIProgress{}, logger)

		summary, err := imp.Import(cmd.Context(), c.ID, archivePath, opts)
		if err != nil {
			if errors.Is(err, importer.ErrDuplicateArchive) {
				return fmt.Errorf("%w\n\nUse --force to import it again.", err)
			}
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Println()
		fmt.Println("Import complete!")
		fmt.Printf("  Import ID:     %d\n", summary.ImportID)
		fmt.Printf("  Document:      %s (%s layout)\n", summary.DocumentName, summary.Layout)
		fmt.Printf("  Duration:      %s\n", formatDuration(summary.Duration))
		fmt.Printf("  Conversations: %d\n", summary.Conversations)
		fmt.Printf("  Messages:      %d\n", summary.Messages)
		fmt.Printf("  Attachments:   %d resolved, %d missing from archive\n",
			summary.MediaResolved, summary.MediaMissing)
		if summary.MediaCopied > 0 || summary.MediaSkipped > 0 {
			fmt.Printf("  Media:         %d files copied (%s), %d already stored\n",
				summary.MediaCopied, formatSize(summary.MediaBytes), summary.MediaSkipped)
		}
		fmt.Printf("  Participants:  %d\n", summary.Participants)
		if summary.Diagnostics > 0 {
			fmt.Printf("  Diagnostics:   %d (see 'recordvault case show' or --verbose)\n", summary.Diagnostics)
		}
		for _, w := range summary.Warnings {
			fmt.Printf("  Warning:       %s\n", textutil.SanitizeTerminal(w))
		}

		if summary.Messages > 0 && summary.Duration.Seconds() >= 1 {
			rate := float64(summary.Messages) / summary.Duration.Seconds()
			fmt.Printf("  Rate:          %.0f messages/sec\n", rate)
		}

		fmt.Println()
		fmt.Println("Browse it with:")
		fmt.Printf("  recordvault tui %s\n", c.Name)
		return nil
	},
}

// ImportCLIProgress implements importer.Progress for terminal output.
// Stages print as they complete; the final summary is printed by the
// command itself.
type ImportCLIProgress struct {
	startTime time.Time
}

func (p *ImportCLIProgress) elapsed() time.Duration {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	return time.Since(p.startTime)
}

func (p *ImportCLIProgress) OnStart(archivePath string) {
	p.startTime = time.Now()
	fmt.Fprintf(os.Stderr, "Importing %s\n", filepath.Base(archivePath))
}

func (p *ImportCLIProgress) OnDocumentFound(documentName string, mediaCount int) {
	fmt.Fprintf(os.Stderr, "  Document: %s | %d media entries | %s\n",
		textutil.SanitizeTerminal(documentName), mediaCount, formatDuration(p.elapsed()))
}

func (p *ImportCLIProgress) OnParsed(conversations, messages int) {
	fmt.Fprintf(os.Stderr, "  Parsed: %d conversations | %d messages | %s\n",
		conversations, messages, formatDuration(p.elapsed()))
}

func (p *ImportCLIProgress) OnMediaCopied(copied, skipped int, bytes int64) {
	fmt.Fprintf(os.Stderr, "  Media: %d copied (%s) | %d already stored | %s\n",
		copied, formatSize(bytes), skipped, formatDuration(p.elapsed()))
}

func (p *ImportCLIProgress) OnStored(result *store.SaveResult) {
	fmt.Fprintf(os.Stderr, "  Stored: import %d | %d rows committed | %s\n",
		result.ImportID, result.Messages, formatDuration(p.elapsed()))
}

func (p *ImportCLIProgress) OnComplete(*importer.Summary) {}

// OnError stays quiet: the pipeline returns the same error to the
// command, and the top-level printer reports it once.
func (p *ImportCLIProgress) OnError(err error) {}

func init() {
	importCmd.Flags().BoolVar(&importForce, "force", false, "import even if this archive was already imported")
	importCmd.Flags().BoolVar(&importNoMedia, "no-media", false, "skip copying media into attachment storage")
	rootCmd.AddCommand(importCmd)
}
