package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Import represents one archive ingestion, in progress or completed.
type Import struct {
	ID            int64
	CaseID        string
	ArchivePath   string
	ArchiveSHA256 string
	DocumentName  sql.NullString
	Layout        sql.NullString

	Service           sql.NullString
	Target            sql.NullString
	AccountIdentifier sql.NullString
	TicketNumber      sql.NullString
	GeneratedAt       sql.NullTime
	RangeStart        sql.NullTime
	RangeEnd          sql.NullTime

	ConversationCount int64
	MessageCount      int64
	AttachmentCount   int64
	MediaResolved     int64
	MediaMissing      int64
	DiagnosticCount   int64

	Status       string // "running", "completed", "failed"
	ErrorMessage sql.NullString
	StartedAt    time.Time
	CompletedAt  sql.NullTime
}

// StartImport creates a new import run and returns its ID. Any previous
// run still marked running for the same case is marked failed first.
func (s *Store) StartImport(caseID, archivePath, archiveSHA256 string) (int64, error) {
	_, err := s.db.Exec(`
		UPDATE imports
		SET status = 'failed',
		    error_message = 'superseded by new import',
		    completed_at = datetime('now')
		WHERE case_id = ? AND status = 'running'
	`, caseID)
	if err != nil {
		return 0, fmt.Errorf("mark old imports failed: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO imports (case_id, archive_path, archive_sha256, started_at, status)
		VALUES (?, ?, ?, datetime('now'), 'running')
	`, caseID, archivePath, archiveSHA256)
	if err != nil {
		return 0, fmt.Errorf("insert import: %w", err)
	}

	return result.LastInsertId()
}

// CompleteImport marks an import as successfully completed.
func (s *Store) CompleteImport(importID int64) error {
	_, err := s.db.Exec(`
		UPDATE imports
		SET status = 'completed',
		    completed_at = datetime('now')
		WHERE id = ?
	`, importID)
	return err
}

// FailImport marks an import as failed with an error message.
func (s *Store) FailImport(importID int64, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE imports
		SET status = 'failed',
		    completed_at = datetime('now'),
		    error_message = ?
		WHERE id = ?
	`, errMsg, importID)
	return err
}

const importColumns = `
	id, case_id, archive_path, archive_sha256, document_name, layout,
	service, target, account_identifier, ticket_number,
	generated_at, range_start, range_end,
	conversation_count, message_count, attachment_count,
	media_resolved, media_missing, diagnostic_count,
	status, error_message, started_at, completed_at`

func scanImport(row interface{ Scan(...interface{}) error }) (*Import, error) {
	var imp Import
	var generatedAt, rangeStart, rangeEnd sql.NullString
	var startedAt string
	var completedAt sql.NullString

	err := row.Scan(
		&imp.ID, &imp.CaseID, &imp.ArchivePath, &imp.ArchiveSHA256,
		&imp.DocumentName, &imp.Layout,
		&imp.Service, &imp.Target, &imp.AccountIdentifier, &imp.TicketNumber,
		&generatedAt, &rangeStart, &rangeEnd,
		&imp.ConversationCount, &imp.MessageCount, &imp.AttachmentCount,
		&imp.MediaResolved, &imp.MediaMissing, &imp.DiagnosticCount,
		&imp.Status, &imp.ErrorMessage, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	imp.GeneratedAt = parseNullTime(generatedAt)
	imp.RangeStart = parseNullTime(rangeStart)
	imp.RangeEnd = parseNullTime(rangeEnd)
	imp.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
	imp.CompletedAt = parseNullTime(completedAt)
	return &imp, nil
}

func parseNullTime(ns sql.NullString) sql.NullTime {
	if !ns.Valid {
		return sql.NullTime{}
	}
	t, err := time.Parse("2006-01-02 15:04:05", ns.String)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// GetImport returns an import by ID, or nil if it does not exist.
func (s *Store) GetImport(importID int64) (*Import, error) {
	imp, err := scanImport(s.db.QueryRow(
		`SELECT`+importColumns+` FROM imports WHERE id = ?`, importID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return imp, err
}

// ListImports returns all imports for a case, most recent first.
func (s *Store) ListImports(caseID string) ([]*Import, error) {
	rows, err := s.db.Query(
		`SELECT`+importColumns+` FROM imports WHERE case_id = ? ORDER BY started_at DESC, id DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var imports []*Import
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// FindImportBySHA256 returns the most recent completed import of an archive
// with the given content hash, or nil. Used as the duplicate-archive guard.
func (s *Store) FindImportBySHA256(caseID, archiveSHA256 string) (*Import, error) {
	imp, err := scanImport(s.db.QueryRow(
		`SELECT`+importColumns+` FROM imports
		 WHERE case_id = ? AND archive_sha256 = ? AND status = 'completed'
		 ORDER BY completed_at DESC, id DESC
		 LIMIT 1`,
		caseID, archiveSHA256))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return imp, err
}
