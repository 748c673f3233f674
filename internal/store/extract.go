package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ExtractResult holds the summary of a case extraction.
type ExtractResult struct {
	Imports       int64
	Conversations int64
	Messages      int64
	Participants  int64
	Attachments   int64
	DBSize        int64
	Elapsed       time.Duration
}

// ExtractCase copies one case and everything it references from srcDBPath
// into a new standalone database at dstDBPath. The destination schema is
// initialized from the embedded store schema, so the extract opens with any
// recordvault build. Used to hand a single case to another party without
// shipping the whole vault.
//
// Security: validates srcDBPath for control characters and canonicalizes
// it before use in SQL. Callers must validate path containment.
func ExtractCase(srcDBPath, dstDBPath, caseID string) (*ExtractResult, error) {
	if caseID == "" {
		return nil, fmt.Errorf("case ID is required")
	}

	start := time.Now()

	if _, err := os.Stat(dstDBPath); err == nil {
		return nil, fmt.Errorf("destination database already exists: %s", dstDBPath)
	}

	cleanup := func() {
		_ = os.Remove(dstDBPath)
		_ = os.Remove(dstDBPath + "-wal")
		_ = os.Remove(dstDBPath + "-shm")
	}

	// Phase 1: create destination DB with schema
	st, err := Open(dstDBPath)
	if err != nil {
		return nil, fmt.Errorf("create destination database: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		_ = st.Close()
		cleanup()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := st.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close schema database: %w", err)
	}

	// Validate source path before opening destination DB, so
	// ATTACH doesn't silently create an empty file for a bad path.
	srcDBPath, err = filepath.Abs(filepath.Clean(srcDBPath))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("canonicalize source path: %w", err)
	}
	for _, r := range srcDBPath {
		if r < 0x20 || r == 0x7F {
			cleanup()
			return nil, fmt.Errorf(
				"source database path contains control character (0x%02X)", r)
		}
	}
	if _, err := os.Stat(srcDBPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("source database not found: %w", err)
	}

	// Phase 2: re-open with foreign keys OFF for bulk copy
	dsn := dstDBPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=OFF"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("reopen database: %w", err)
	}

	// closeAndCleanup closes db before cleanup to ensure WAL/SHM
	// files are released before removal.
	closeAndCleanup := func() {
		_ = db.Close()
		cleanup()
	}

	escapedSrcPath := strings.ReplaceAll(srcDBPath, "'", "''")
	attachSQL := fmt.Sprintf("ATTACH DATABASE '%s' AS src", escapedSrcPath)
	if _, err := db.Exec(attachSQL); err != nil {
		closeAndCleanup()
		return nil, fmt.Errorf("attach source database: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		closeAndCleanup()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	result, err := copyCase(tx, caseID)
	if err != nil {
		_ = tx.Rollback()
		_, _ = db.Exec("DETACH DATABASE src")
		closeAndCleanup()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		_, _ = db.Exec("DETACH DATABASE src")
		closeAndCleanup()
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Detach source before post-copy operations so PRAGMA
	// foreign_key_check only scans the destination database.
	if _, err := db.Exec("DETACH DATABASE src"); err != nil {
		closeAndCleanup()
		return nil, fmt.Errorf("detach source database: %w", err)
	}

	if err := verifyForeignKeys(db); err != nil {
		closeAndCleanup()
		return nil, err
	}

	if ftsErr := populateExtractFTS(db); ftsErr != nil {
		errMsg := ftsErr.Error()
		ftsUnavailable :=
			strings.HasSuffix(errMsg, "no such table: messages_fts") ||
				strings.HasSuffix(errMsg, "no such module: fts5")
		if !ftsUnavailable {
			fmt.Fprintf(os.Stderr,
				"warning: FTS index population failed: %v\n", ftsErr)
		}
	}

	_ = db.Close()

	if info, err := os.Stat(dstDBPath); err == nil {
		result.DBSize = info.Size()
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// verifyForeignKeys runs PRAGMA foreign_key_check and returns an error
// if any violations are found.
func verifyForeignKeys(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	rows, err := db.Query("PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}

	var violations []string
	for rows.Next() {
		var table, rowid, parent, fkid string
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			violations = append(violations,
				fmt.Sprintf("scan error: %v", err))
		} else {
			violations = append(violations,
				fmt.Sprintf("%s(rowid=%s) -> %s", table, rowid, parent))
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate foreign key check: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close foreign key check rows: %w", err)
	}

	if len(violations) > 0 {
		return fmt.Errorf("foreign key violations: %s",
			strings.Join(violations, "; "))
	}
	return nil
}

// copyCase executes INSERT INTO ... SELECT in dependency order. Row IDs
// are preserved verbatim; the destination is empty so they cannot collide.
func copyCase(tx *sql.Tx, caseID string) (*ExtractResult, error) {
	result := &ExtractResult{}

	res, err := tx.Exec(`
		INSERT INTO cases SELECT * FROM src.cases WHERE id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("copy case: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("case rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("case %q not found in source database", caseID)
	}

	res, err = tx.Exec(`
		INSERT INTO imports SELECT * FROM src.imports WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("copy imports: %w", err)
	}
	if result.Imports, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("imports rows affected: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO import_sections SELECT * FROM src.import_sections
		WHERE import_id IN (SELECT id FROM imports)`); err != nil {
		return nil, fmt.Errorf("copy import_sections: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO profiles SELECT * FROM src.profiles
		WHERE import_id IN (SELECT id FROM imports)`); err != nil {
		return nil, fmt.Errorf("copy profiles: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO profile_contacts SELECT * FROM src.profile_contacts
		WHERE profile_id IN (SELECT id FROM profiles)`); err != nil {
		return nil, fmt.Errorf("copy profile_contacts: %w", err)
	}

	res, err = tx.Exec(`
		INSERT INTO participants SELECT * FROM src.participants
		WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("copy participants: %w", err)
	}
	if result.Participants, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("participants rows affected: %w", err)
	}

	res, err = tx.Exec(`
		INSERT INTO conversations SELECT * FROM src.conversations
		WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("copy conversations: %w", err)
	}
	if result.Conversations, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("conversations rows affected: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO conversation_participants
		SELECT * FROM src.conversation_participants
		WHERE conversation_id IN (SELECT id FROM conversations)`); err != nil {
		return nil, fmt.Errorf("copy conversation_participants: %w", err)
	}

	res, err = tx.Exec(`
		INSERT INTO messages SELECT * FROM src.messages
		WHERE conversation_id IN (SELECT id FROM conversations)`)
	if err != nil {
		return nil, fmt.Errorf("copy messages: %w", err)
	}
	if result.Messages, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("messages rows affected: %w", err)
	}

	res, err = tx.Exec(`
		INSERT INTO attachments SELECT * FROM src.attachments
		WHERE message_id IN (SELECT id FROM messages)`)
	if err != nil {
		return nil, fmt.Errorf("copy attachments: %w", err)
	}
	if result.Attachments, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("attachments rows affected: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO shares SELECT * FROM src.shares
		WHERE message_id IN (SELECT id FROM messages)`); err != nil {
		return nil, fmt.Errorf("copy shares: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO call_records SELECT * FROM src.call_records
		WHERE message_id IN (SELECT id FROM messages)`); err != nil {
		return nil, fmt.Errorf("copy call_records: %w", err)
	}

	for _, table := range []string{
		"social_links", "devices", "logins", "photos", "cyber_tips", "diagnostics",
	} {
		if _, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO %s SELECT * FROM src.%s
			WHERE import_id IN (SELECT id FROM imports)`, table, table)); err != nil {
			return nil, fmt.Errorf("copy %s: %w", table, err)
		}
	}

	return result, nil
}

// populateExtractFTS rebuilds the FTS5 index from the copied data.
func populateExtractFTS(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO messages_fts(rowid, message_id, body, author, thread)
		SELECT m.id, m.id, COALESCE(m.body, ''),
			COALESCE((
				SELECT p.username FROM participants p WHERE p.id = m.author_id
			), ''),
			COALESCE((
				SELECT GROUP_CONCAT(p.username, ' ')
				FROM conversation_participants cp
				JOIN participants p ON p.id = cp.participant_id
				WHERE cp.conversation_id = m.conversation_id
			), '')
		FROM messages m`)
	return err
}
